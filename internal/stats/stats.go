// Package stats derives aggregate request statistics from an owner's history.
package stats

import (
	"context"
	"fmt"
	"math"

	"github.com/serdar/relayd/internal/history"
)

// successThreshold is the exclusive upper bound for a successful status.
// 3xx responses count as successful; this mirrors long-standing observable
// behavior and is part of the contract.
const successThreshold = 400

// Summary is the aggregate view over an owner's history. It is always
// recomputed from the current entry set, never stored.
type Summary struct {
	TotalRequests      int            `json:"totalRequests"`
	SuccessfulRequests int            `json:"successfulRequests"`
	FailedRequests     int            `json:"failedRequests"`
	SuccessRate        float64        `json:"successRate"`
	MethodBreakdown    map[string]int `json:"methodBreakdown"`
	StatusBreakdown    map[int]int    `json:"statusBreakdown"`
}

// Fold computes the summary in a single pass over the outcomes. All derived
// figures come from the same set, so totals and breakdowns always agree.
func Fold(outcomes []history.Outcome) Summary {
	summary := Summary{
		MethodBreakdown: map[string]int{},
		StatusBreakdown: map[int]int{},
	}

	for _, o := range outcomes {
		summary.TotalRequests++

		if o.Status >= 200 && o.Status < successThreshold {
			summary.SuccessfulRequests++
		}

		summary.MethodBreakdown[o.Method]++
		summary.StatusBreakdown[o.Status]++
	}

	summary.FailedRequests = summary.TotalRequests - summary.SuccessfulRequests

	if summary.TotalRequests > 0 {
		rate := float64(summary.SuccessfulRequests) / float64(summary.TotalRequests) * 100
		summary.SuccessRate = math.Round(rate*100) / 100
	}

	return summary
}

// OutcomeSource supplies the full outcome set for an owner in one read.
type OutcomeSource interface {
	Outcomes(ctx context.Context, ownerID string) ([]history.Outcome, error)
}

// Service computes summaries from a history store.
type Service struct {
	source OutcomeSource
}

// NewService creates a stats service over the given source.
func NewService(source OutcomeSource) *Service {
	return &Service{source: source}
}

// Summarize folds the owner's entire history into a summary. An owner with
// no entries gets the all-zero summary, not an error.
func (s *Service) Summarize(ctx context.Context, ownerID string) (Summary, error) {
	outcomes, err := s.source.Outcomes(ctx, ownerID)
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing history: %w", err)
	}

	return Fold(outcomes), nil
}
