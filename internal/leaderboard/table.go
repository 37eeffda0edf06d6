package leaderboard

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// WriteTable renders entries as a plain-text table with grouped digits.
func WriteTable(w io.Writer, entries []Entry) {
	p := message.NewPrinter(language.English)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Rank", "Name", "Cash", "Total Value", "ROI"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoFormatHeaders(false)

	for _, e := range entries {
		table.Append([]string{
			strconv.Itoa(e.Rank),
			e.Name,
			fmt.Sprintf("$%s", p.Sprintf("%.2f", e.Cash.InexactFloat64())),
			fmt.Sprintf("$%s", p.Sprintf("%.2f", e.TotalValue.InexactFloat64())),
			e.ROI.StringFixed(2) + "%",
		})
	}
	table.Render()
}
