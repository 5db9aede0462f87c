package reporting

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"calllog-dashboard/internal/calls"
)

// agentLinePrefix marks a transcript line spoken by the voice agent.
const agentLinePrefix = "agent:"

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Implementations must apply the agent scope exactly as given (nil = all, empty = none).
type Repository interface {
	ListCallsForStats(ctx context.Context, agentIDs []string) ([]calls.Record, error)
}

type Service struct {
	repo  Repository
	loc   *time.Location
	clock func() time.Time
}

// NewService returns a stats service. loc decides where "today" starts; nil means UTC.
func NewService(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc, clock: time.Now}
}

// Stats loads the scoped record set once and aggregates it.
func (s *Service) Stats(ctx context.Context, agentIDs []string) (Stats, error) {
	if s.repo == nil {
		return Stats{}, errors.New("reporting: repository not configured")
	}
	rows, err := s.repo.ListCallsForStats(ctx, agentIDs)
	if err != nil {
		return Stats{}, err
	}
	return Aggregate(rows, s.clock(), s.loc), nil
}

// Aggregate computes Stats over rows as of now.
func Aggregate(rows []calls.Record, now time.Time, loc *time.Location) Stats {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	week := now.Add(-7 * 24 * time.Hour)

	var (
		out          Stats
		callers      = make(map[string]struct{})
		withDuration int
		succeeded    int
		criteria     int
	)
	for _, r := range rows {
		out.TotalCalls++
		if !r.Timestamp.Before(today) {
			out.TodayCalls++
		}
		if !r.Timestamp.Before(week) {
			out.WeekCalls++
		}
		if r.CallerNumber != "" {
			callers[r.CallerNumber] = struct{}{}
		}

		if r.Duration != nil && *r.Duration > 0 {
			out.TotalDurationMinutes += int(math.Round(float64(*r.Duration) / 60))
			withDuration++
		}

		out.TotalBotReplies += countAgentLines(r.Transcript)

		if r.IsFlaggedForReview {
			continue
		}
		for _, ev := range r.EvaluationResults {
			if ev.Result == "" {
				continue
			}
			criteria++
			if ev.Result == calls.EvaluationSuccess {
				succeeded++
			}
		}
	}

	out.UniqueCallers = len(callers)
	if withDuration > 0 {
		out.AverageDurationMinutes = float64(out.TotalDurationMinutes) / float64(withDuration)
	}
	if criteria > 0 {
		out.OverallRatingPercent = int(math.Round(float64(succeeded) / float64(criteria) * 100))
	}
	return out
}

func countAgentLines(transcript string) int {
	if transcript == "" {
		return 0
	}
	n := 0
	for _, line := range strings.Split(transcript, "\n") {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), agentLinePrefix) {
			n++
		}
	}
	return n
}
