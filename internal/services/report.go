package services

import (
	"context"

	"github.com/anonto42/lovesignal/backend/internal/models"
)

// ComputeReportBreakdown counts the signals identityID sent and received per category, in
// the configured category order.
func (l *SignalLedger) ComputeReportBreakdown(ctx context.Context, identityID string) ([]models.CategoryCount, error) {
	sent, err := l.signals.GetSentSignals(ctx, identityID)
	if err != nil {
		return nil, err
	}
	received, err := l.signals.GetReceivedSignals(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return BreakdownFromSignals(identityID, append(sent, received...), l.cfg.Categories), nil
}

// BreakdownFromSignals is the pure core of ComputeReportBreakdown. Signals of a type that is
// not in categories, or that do not involve identityID, are ignored. Each signal is counted
// once even if it appears more than once in signals.
func BreakdownFromSignals(identityID string, signals []models.Signal, categories []string) []models.CategoryCount {
	rows := make([]models.CategoryCount, len(categories))
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		rows[i].Category = c
		if _, dup := index[c]; !dup {
			index[c] = i
		}
	}

	seen := make(map[string]bool, len(signals))
	for _, s := range signals {
		if s.ID != "" {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
		}
		i, ok := index[s.Type]
		if !ok {
			continue
		}
		switch identityID {
		case s.SenderID:
			rows[i].Sent++
		case s.RecipientID:
			rows[i].Received++
		}
	}
	return rows
}
