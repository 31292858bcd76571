package service

import (
	"time"

	"github.com/okian/shuttle/internal/adapters/repository"
	"github.com/okian/shuttle/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. The service closes it on Close.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the match queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the number of remembered match IDs.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithTau sets the Glicko-2 system constant.
func WithTau(tau float64) Option {
	return func(s *Service) {
		s.tau = tau
	}
}

// WithMaxRatingChange caps the rating change applied per player per match.
func WithMaxRatingChange(limit float64) Option {
	return func(s *Service) {
		s.maxRatingChange = limit
	}
}

// WithMaxScore sets the highest accepted score for one side.
func WithMaxScore(score int) Option {
	return func(s *Service) {
		if score > 0 {
			s.maxScore = score
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source for matches submitted without a play time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
