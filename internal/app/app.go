// Package app wires the capture pipeline to the snapshot store.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"printwatch/internal/capture"
	"printwatch/internal/store"
)

// Service runs captures end to end: fetch the user's listing and
// threads, then persist the result as one immutable snapshot run.
type Service struct {
	store *store.Store
	orch  *capture.Orchestrator
	log   zerolog.Logger
}

// New creates a capture service.
func New(st *store.Store, orch *capture.Orchestrator, log zerolog.Logger) *Service {
	return &Service{store: st, orch: orch, log: log}
}

// Capture performs one full capture for the user and stores it. The
// capture instant is taken before any fetching starts, so the stored
// timestamp marks when the observation began. Returns the instant of
// the stored run.
func (s *Service) Capture(ctx context.Context, userURL string) (time.Time, error) {
	capturedAt := time.Now().UTC()

	s.log.Info().Str("user_url", userURL).Time("captured_at", capturedAt).Msg("starting capture")

	result, err := s.orch.Run(ctx, userURL)
	if err != nil {
		return time.Time{}, fmt.Errorf("capture for %s: %w", userURL, err)
	}

	if err := s.store.SaveRun(ctx, capturedAt, userURL, result.Items, result.Threads); err != nil {
		return time.Time{}, fmt.Errorf("save capture for %s: %w", userURL, err)
	}

	s.log.Info().
		Str("user_url", userURL).
		Int("items", len(result.Items)).
		Msg("capture stored")
	return capturedAt, nil
}

// CaptureIfStale captures unless the user already has a run more recent
// than minInterval. Returns the new run's instant and true when a
// capture ran, or the zero time and false when the guard skipped it.
func (s *Service) CaptureIfStale(ctx context.Context, userURL string, minInterval time.Duration) (time.Time, bool, error) {
	last, err := s.store.LastRun(ctx, userURL)
	switch {
	case errors.Is(err, store.ErrNoRuns):
		// First capture for this user.
	case err != nil:
		return time.Time{}, false, fmt.Errorf("check last run for %s: %w", userURL, err)
	case time.Since(last) < minInterval:
		s.log.Info().
			Str("user_url", userURL).
			Time("last_run", last).
			Dur("min_interval", minInterval).
			Msg("recent run exists, skipping capture")
		return time.Time{}, false, nil
	}

	ts, err := s.Capture(ctx, userURL)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}
