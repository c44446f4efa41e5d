package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/config"
)

// Scheduler is the built-in poller: it drives the same dispatch cycle as
// the cron HTTP entrypoints, for deployments without an external caller.
// Disabled by default.
type Scheduler struct {
	config             *config.PollConfig
	logger             *zap.Logger
	jobDispatcher      *Dispatcher
	scheduleDispatcher *Dispatcher
	scheduleWorker     *ScheduleWorker
	comments           *CommentExecutor
	scores             *TemplateScoreService
	ticker             *time.Ticker
	stopCh             chan struct{}
}

func NewScheduler(cfg *config.PollConfig, logger *zap.Logger, jobDispatcher, scheduleDispatcher *Dispatcher, scheduleWorker *ScheduleWorker, comments *CommentExecutor, scores *TemplateScoreService) *Scheduler {
	return &Scheduler{
		config:             cfg,
		logger:             logger.Named("poller"),
		jobDispatcher:      jobDispatcher,
		scheduleDispatcher: scheduleDispatcher,
		scheduleWorker:     scheduleWorker,
		comments:           comments,
		scores:             scores,
		stopCh:             make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Poller is disabled")
		return nil
	}

	interval, err := time.ParseDuration(s.config.Interval)
	if err != nil {
		s.logger.Error("Invalid poll interval", zap.String("interval", s.config.Interval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting poller", zap.String("interval", s.config.Interval))

	s.ticker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.runCycle(ctx)
			case <-s.stopCh:
				s.logger.Info("Poller stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Poller context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.logger.Info("Poller shutdown completed")
}

// runCycle mirrors one round of the cron entrypoints: due jobs, stuck
// recovery plus due scheduled posts, due comments, then the score sweep.
// Failures in one stage never block the next.
func (s *Scheduler) runCycle(ctx context.Context) {
	start := time.Now()

	if _, err := s.jobDispatcher.RunOnce(ctx); err != nil {
		s.logger.Error("Job dispatch failed", zap.Error(err))
	}

	if recovered, err := s.scheduleWorker.RecoverStuck(ctx); err != nil {
		s.logger.Error("Stuck recovery failed", zap.Error(err))
	} else if recovered > 0 {
		s.logger.Warn("Recovered stuck scheduled posts", zap.Int("recovered", recovered))
	}
	if _, err := s.scheduleDispatcher.RunOnce(ctx); err != nil {
		s.logger.Error("Schedule dispatch failed", zap.Error(err))
	}

	if _, err := s.comments.ExecuteDue(ctx); err != nil {
		s.logger.Error("Comment execution failed", zap.Error(err))
	}

	if _, err := s.scores.Update(ctx); err != nil {
		s.logger.Error("Template score update failed", zap.Error(err))
	}

	s.logger.Info("Poll cycle completed", zap.Duration("duration", time.Since(start)))
}
