// Package anomaly rejects implausible charges and flags suspicious usage reports.
package anomaly

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/tokenledger/internal/config"
	ratingdomain "github.com/smallbiznis/tokenledger/internal/rating/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("anomaly",
	fx.Provide(NewGuard),
)

const (
	ReasonCreditCeilingExceeded = "credit_ceiling_exceeded"
	ReasonTokenCeilingExceeded  = "token_ceiling_exceeded"

	WarningSuspectedZeroUsage = "suspected_zero_usage"
)

var (
	ErrCostAnomaly = errors.New("cost_anomaly")
	// ErrSuspectedZeroUsage only ever surfaces as a warning code on an entry.
	ErrSuspectedZeroUsage = errors.New(WarningSuspectedZeroUsage)
)

// AnomalyError carries the ceiling that was breached.
type AnomalyError struct {
	Reason   string
	Observed int64
	Limit    int64
}

func (e *AnomalyError) Error() string {
	return fmt.Sprintf("%s: %s (%d > %d)", ErrCostAnomaly, e.Reason, e.Observed, e.Limit)
}

func (e *AnomalyError) Unwrap() error { return ErrCostAnomaly }

// Hint is what the reporter told us about the originating call.
type Hint struct {
	PaidTier bool
}

type Result struct {
	Warnings []string
}

func (r Result) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w == code {
			return true
		}
	}
	return false
}

type Guard struct {
	metering *config.MeteringConfigHolder
}

func NewGuard(metering *config.MeteringConfigHolder) *Guard {
	return &Guard{metering: metering}
}

// Check applies the hard ceilings first. A ceiling of zero disables it.
// Zero tokens on a paid call is only flagged; token counts are never invented.
func (g *Guard) Check(calc ratingdomain.CostCalculation, hint Hint) (Result, error) {
	limits := g.metering.Get().Anomaly

	if limits.MaxTokensPerEvent > 0 && calc.TotalTokens > limits.MaxTokensPerEvent {
		return Result{}, &AnomalyError{
			Reason:   ReasonTokenCeilingExceeded,
			Observed: calc.TotalTokens,
			Limit:    limits.MaxTokensPerEvent,
		}
	}
	if limits.MaxCreditsPerEvent > 0 && calc.TotalCredits > limits.MaxCreditsPerEvent {
		return Result{}, &AnomalyError{
			Reason:   ReasonCreditCeilingExceeded,
			Observed: calc.TotalCredits,
			Limit:    limits.MaxCreditsPerEvent,
		}
	}

	var result Result
	if calc.TotalTokens == 0 && (hint.PaidTier || calc.IsPaidModel) {
		result.Warnings = append(result.Warnings, WarningSuspectedZeroUsage)
	}
	return result, nil
}

// ReasonOf extracts the anomaly reason from err, if any.
func ReasonOf(err error) (string, bool) {
	var anomalyErr *AnomalyError
	if errors.As(err, &anomalyErr) {
		return anomalyErr.Reason, true
	}
	return "", false
}
