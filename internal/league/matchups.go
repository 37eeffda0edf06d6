package league

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stockleague/league/internal/apperr"
	"github.com/stockleague/league/internal/leaderboard"
	"github.com/stockleague/league/internal/model"
	"github.com/stockleague/league/internal/store"
)

var (
	ErrTitleRequired  = apperr.New(apperr.Validation, "title is required")
	ErrInvalidWindow  = apperr.New(apperr.Validation, "end date must be after start date")
	ErrNotParticipant = apperr.New(apperr.Validation, "only participants can settle a matchup")
	ErrMatchupRunning = apperr.New(apperr.Conflict, "matchup has not ended yet")
	ErrAlreadySettled = apperr.New(apperr.Conflict, "matchup already settled")
	ErrNoParticipants = apperr.New(apperr.Validation, "matchup has no participants")
)

// MatchupInput is the payload of CreateMatchup.
type MatchupInput struct {
	Title     string    `json:"title"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// UnmarshalJSON accepts start_date and end_date as RFC3339 timestamps or as
// bare dates (2006-01-02), which are read as midnight UTC.
func (in *MatchupInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title     string `json:"title"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := parseDate("start_date", raw.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDate("end_date", raw.EndDate)
	if err != nil {
		return err
	}
	*in = MatchupInput{Title: raw.Title, StartDate: start, EndDate: end}
	return nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.Validation, "invalid %s %q", field, s)
	}
	return t, nil
}

// MatchupView is a matchup with participant and winner names resolved.
type MatchupView struct {
	model.Matchup
	ParticipantNames []string `json:"participant_names"`
	WinnerName       string   `json:"winner_name,omitempty"`
}

// ListMatchups returns every matchup with names filled in.
func (s *Service) ListMatchups(ctx context.Context) ([]MatchupView, error) {
	matchups, err := s.store.ListMatchups(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.userNames(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]MatchupView, 0, len(matchups))
	for _, m := range matchups {
		views = append(views, view(m, names))
	}
	return views, nil
}

// CreateMatchup opens a matchup with the creator as first participant.
func (s *Service) CreateMatchup(ctx context.Context, userID string, in MatchupInput) (*MatchupView, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if in.StartDate.IsZero() || !in.EndDate.After(in.StartDate) {
		return nil, ErrInvalidWindow
	}
	creator, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	m := &model.Matchup{
		ID:           uuid.New().String(),
		Title:        title,
		StartDate:    in.StartDate.UTC(),
		EndDate:      in.EndDate.UTC(),
		Participants: []string{creator.ID},
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateMatchup(ctx, m); err != nil {
		return nil, err
	}

	slog.Info("matchup created", "id", m.ID, "title", m.Title, "creator", creator.ID)
	v := view(*m, map[string]string{creator.ID: creator.Name})
	return &v, nil
}

// JoinMatchup adds the caller to a matchup. Joining twice is a no-op.
func (s *Service) JoinMatchup(ctx context.Context, userID, matchupID string) (*MatchupView, error) {
	m, err := s.store.GetMatchup(ctx, matchupID)
	if err != nil {
		return nil, err
	}
	if m.WinnerID != "" {
		return nil, ErrAlreadySettled
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.store.AddParticipant(ctx, matchupID, userID); err != nil {
		return nil, err
	}
	return s.matchupView(ctx, matchupID)
}

// SettleMatchup records the top-ranked participant as winner once the
// matchup has ended. Only a participant may settle.
func (s *Service) SettleMatchup(ctx context.Context, userID, matchupID string) (*MatchupView, error) {
	m, err := s.store.GetMatchup(ctx, matchupID)
	if err != nil {
		return nil, err
	}
	switch {
	case !m.HasParticipant(userID):
		return nil, ErrNotParticipant
	case m.WinnerID != "":
		return nil, ErrAlreadySettled
	case s.now().Before(m.EndDate):
		return nil, ErrMatchupRunning
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users = slices.DeleteFunc(users, func(u model.User) bool { return !m.HasParticipant(u.ID) })
	top := leaderboard.Top(leaderboard.Rank(users, s.initial), 1)
	if len(top) == 0 {
		return nil, ErrNoParticipants
	}
	winner := top[0]

	if err := s.store.SetWinner(ctx, matchupID, winner.UserID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAlreadySettled
		}
		return nil, err
	}

	slog.Info("matchup settled", "id", matchupID, "winner", winner.UserID, "roi", winner.ROI.StringFixed(2))
	return s.matchupView(ctx, matchupID)
}

func (s *Service) matchupView(ctx context.Context, matchupID string) (*MatchupView, error) {
	m, err := s.store.GetMatchup(ctx, matchupID)
	if err != nil {
		return nil, err
	}
	names, err := s.userNames(ctx)
	if err != nil {
		return nil, err
	}
	v := view(*m, names)
	return &v, nil
}

func (s *Service) userNames(ctx context.Context) (map[string]string, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

func view(m model.Matchup, names map[string]string) MatchupView {
	v := MatchupView{Matchup: m, ParticipantNames: make([]string, 0, len(m.Participants))}
	for _, id := range m.Participants {
		v.ParticipantNames = append(v.ParticipantNames, names[id])
	}
	if m.WinnerID != "" {
		v.WinnerName = names[m.WinnerID]
	}
	return v
}
