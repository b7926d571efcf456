package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradechartjp/tradechart/pkg/utils"
)

// Notifier delivers a formatted alert message.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// DefaultScheduleTimes are the JST run times used when none are configured:
// before the Tokyo open and during the lunch break.
var DefaultScheduleTimes = []utils.ClockTime{{Hour: 7, Minute: 0}, {Hour: 12, Minute: 30}}

// Scheduler runs the evaluator at fixed JST wall-clock times and pushes
// matches through the notifier. Evaluation errors are logged, never fatal.
type Scheduler struct {
	evaluator *Evaluator
	notifier  Notifier
	times     []utils.ClockTime
}

// NewScheduler builds a scheduler for the given JST run times. An empty
// schedule falls back to DefaultScheduleTimes.
func NewScheduler(evaluator *Evaluator, notifier Notifier, times []utils.ClockTime) *Scheduler {
	if len(times) == 0 {
		times = DefaultScheduleTimes
	}
	return &Scheduler{evaluator: evaluator, notifier: notifier, times: times}
}

// Run blocks until the context is cancelled, firing RunOnce at each
// scheduled time.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := utils.NowJST()
		runAt := utils.NextRun(now, s.times)
		wait := runAt.Sub(now)
		log.Info().Time("next_run", runAt).Dur("wait", wait).Msg("alert run scheduled")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("alert run failed")
		}
		// Step past the minute boundary so the same slot does not refire.
		time.Sleep(time.Second)
	}
}

// RunOnce evaluates all alerts and sends one combined notification when
// anything matched.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	matches, err := s.evaluator.Run(ctx)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		log.Info().Msg("no rsi alerts triggered")
		return nil
	}

	message := FormatAlertMessage(matches)
	if s.notifier == nil {
		log.Info().Int("matches", len(matches)).Str("message", message).Msg("alerts triggered (no notifier configured)")
		return nil
	}
	if err := s.notifier.Send(ctx, message); err != nil {
		return err
	}
	log.Info().Int("matches", len(matches)).Msg("line notification sent")
	return nil
}
