package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientHistory indicates that the available price history does not
// reach back far enough to form the requested lookback window.
var ErrInsufficientHistory = errors.New("insufficient history for lookback window")

// WindowKind distinguishes the short alpha lookback from the longer risk
// lookback.
type WindowKind string

const (
	KindAlpha WindowKind = "alpha"
	KindRisk  WindowKind = "risk"
)

// ObservationWindow is a half-open date interval [Start, End). End is always
// the rebalance date itself, so only data strictly before the rebalance is
// visible through the window.
type ObservationWindow struct {
	Start time.Time
	End   time.Time
	Kind  WindowKind
}

// Contains reports whether date falls inside the window.
func (w ObservationWindow) Contains(date time.Time) bool {
	return !date.Before(w.Start) && date.Before(w.End)
}

// WindowsFor computes the alpha and risk lookback windows for a rebalance
// date. Both windows end exclusively at the rebalance date. It fails with
// ErrInsufficientHistory when the earliest available observation is later
// than rebalance − riskMonths.
func WindowsFor(rebalance time.Time, alphaMonths, riskMonths int, earliest time.Time) (ObservationWindow, ObservationWindow, error) {
	if alphaMonths <= 0 || riskMonths <= 0 {
		return ObservationWindow{}, ObservationWindow{}, fmt.Errorf("lookback months must be positive: alpha=%d risk=%d", alphaMonths, riskMonths)
	}
	if riskMonths < alphaMonths {
		return ObservationWindow{}, ObservationWindow{}, fmt.Errorf("risk lookback (%dm) must be >= alpha lookback (%dm)", riskMonths, alphaMonths)
	}

	riskStart := rebalance.AddDate(0, -riskMonths, 0)
	if earliest.After(riskStart) {
		return ObservationWindow{}, ObservationWindow{}, fmt.Errorf("%w: need data from %s, have from %s",
			ErrInsufficientHistory, riskStart.Format("2006-01-02"), earliest.Format("2006-01-02"))
	}

	alpha := ObservationWindow{
		Start: rebalance.AddDate(0, -alphaMonths, 0),
		End:   rebalance,
		Kind:  KindAlpha,
	}
	risk := ObservationWindow{
		Start: riskStart,
		End:   rebalance,
		Kind:  KindRisk,
	}
	return alpha, risk, nil
}
