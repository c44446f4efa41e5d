package service

import (
	"context"

	"go.uber.org/zap"
)

// UnitResult is the outcome of one claimed unit of work.
type UnitResult struct {
	UnitID         string `json:"unit_id"`
	PlanID         string `json:"plan_id,omitempty"`
	Status         string `json:"status"`
	PostedThreadID string `json:"posted_thread_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BatchResult summarizes a single dispatcher invocation.
type BatchResult struct {
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []UnitResult `json:"results"`
}

// Unit result statuses reported by workers.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Worker claims and fully processes one due unit. A nil result with a nil
// error means no due unit was claimable and the dispatcher should stop.
type Worker interface {
	ProcessNext(ctx context.Context) (*UnitResult, error)
}

// Dispatcher drains due units serially, at most maxUnits per invocation.
// A failed unit is recorded in the batch and never stops the loop; only a
// claim-level error aborts the invocation.
type Dispatcher struct {
	logger   *zap.Logger
	worker   Worker
	maxUnits int
}

func NewDispatcher(logger *zap.Logger, worker Worker, maxUnits int) *Dispatcher {
	if maxUnits <= 0 {
		maxUnits = 1
	}
	return &Dispatcher{
		logger:   logger.Named("dispatcher"),
		worker:   worker,
		maxUnits: maxUnits,
	}
}

func (d *Dispatcher) RunOnce(ctx context.Context) (*BatchResult, error) {
	batch := &BatchResult{Results: []UnitResult{}}

	for i := 0; i < d.maxUnits; i++ {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		result, err := d.worker.ProcessNext(ctx)
		if err != nil {
			return batch, err
		}
		if result == nil {
			break
		}

		batch.Processed++
		batch.Results = append(batch.Results, *result)
		switch result.Status {
		case StatusSucceeded:
			batch.Succeeded++
		default:
			batch.Failed++
		}
	}

	d.logger.Info("dispatch batch completed",
		zap.Int("processed", batch.Processed),
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed))
	return batch, nil
}
