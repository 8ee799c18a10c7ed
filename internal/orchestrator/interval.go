package orchestrator

import (
	"time"

	"server/internal/infra"
)

// PollInterval computes the wait before the next status query as a pure
// function of elapsed time since submission and time since the last observed
// provider state change. Young jobs poll fast, old jobs slow down, and a
// recent state change forces the short interval for the boost window because
// a transition often precedes imminent completion.
func PollInterval(p infra.PollingConfig, elapsed, sinceChange time.Duration) time.Duration {
	if sinceChange >= 0 && sinceChange < p.BoostWindow {
		return p.ShortInterval
	}
	switch {
	case elapsed < p.ShortPhase:
		return p.ShortInterval
	case elapsed < p.MediumPhase:
		return p.MediumInterval
	default:
		return p.LongInterval
	}
}
