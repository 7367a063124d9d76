package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// jobTimeout bounds a single run of any job
const jobTimeout = 30 * time.Second

// Job is one unit of background maintenance
type Job func(ctx context.Context) error

// Scheduler runs maintenance jobs on cron specs
type Scheduler struct {
	cron *cron.Cron
}

// New creates a scheduler that recovers panicking jobs and skips a run
// while the previous one is still going
func New() *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Add registers job under name. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if spec == "" {
		log.Info().Str("job", name).Msg("scheduled job disabled")
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
			return
		}
		log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	return nil
}

// Len returns the number of registered jobs
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

// Purger removes expired cache entries
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// PurgeCache drops expired responses
func PurgeCache(p Purger) Job {
	return func(ctx context.Context) error {
		n, err := p.Purge(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge cache: %w", err)
		}
		if n > 0 {
			log.Info().Int("removed", n).Msg("purged expired cache entries")
		}
		return nil
	}
}

// Trimmer forgets idle rate limit windows
type Trimmer interface {
	Trim() int
}

// TrimLimiter releases windows of providers idle for an hour
func TrimLimiter(t Trimmer) Job {
	return func(ctx context.Context) error {
		if n := t.Trim(); n > 0 {
			log.Debug().Int("removed", n).Msg("trimmed idle rate limit windows")
		}
		return nil
	}
}

// MetricsSource exposes the in-memory usage counters
type MetricsSource interface {
	All() []models.UsageMetrics
}

// UsageSaver persists usage counters
type UsageSaver interface {
	SaveUsageMetrics(ctx context.Context, snapshot []models.UsageMetrics) error
}

// FlushMetrics writes the current counters to the database
func FlushMetrics(src MetricsSource, dst UsageSaver) Job {
	return func(ctx context.Context) error {
		snapshot := src.All()
		if len(snapshot) == 0 {
			return nil
		}
		if err := dst.SaveUsageMetrics(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to flush usage metrics: %w", err)
		}
		return nil
	}
}

// cronLogger routes cron's own logging through zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
