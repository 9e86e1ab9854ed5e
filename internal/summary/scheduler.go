package summary

import (
	"context"
	"time"

	"netsummary/internal/models"
)

// StartScheduler rebuilds the summaries of the given networks every frequency so
// the caches and the neighbor snapshot store stay warm. It returns immediately.
func (s *Service) StartScheduler(networks []string, frequency time.Duration) {
	if len(networks) == 0 {
		s.logger.Debug().Msg("No networks configured for refresh, scheduler not started")
		return
	}
	if frequency <= 0 {
		s.logger.Error().Dur("frequency", frequency).Msg("Invalid refresh frequency, using default 5m")
		frequency = 5 * time.Minute
	}

	s.logger.Info().
		Str("frequency", frequency.String()).
		Int("networks", len(networks)).
		Msg("Starting refresh scheduler")

	ticker := time.NewTicker(frequency)
	go func() {
		defer ticker.Stop()

		s.refresh(networks)
		for {
			select {
			case <-ticker.C:
				s.logger.Debug().Msg("Running scheduled refresh")
				s.refresh(networks)
			case <-s.stopChan:
				s.logger.Info().Msg("Refresh scheduler stopped")
				return
			}
		}
	}()
}

// refresh builds each network once, stopping early when the service is stopped
func (s *Service) refresh(networks []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for _, id := range networks {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.GetSummary(ctx, id, models.QueryOptions{}); err != nil {
			s.logger.Warn().Err(err).Str("network", id).Msg("Scheduled refresh failed")
		}
	}
}

// Stop halts the refresh scheduler. It is safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info().Msg("Stopping summary service")
		close(s.stopChan)
	})
}
