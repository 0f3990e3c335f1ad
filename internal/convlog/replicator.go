package convlog

import (
	"context"
	"time"

	"github.com/matheus3301/chatter/internal/bus"
	"github.com/matheus3301/chatter/internal/store"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// ReplicatorConfig tunes the background repair loop.
type ReplicatorConfig struct {
	Interval time.Duration
	// Grace skips intents younger than this so inline writes are not raced.
	Grace       time.Duration
	MaxAttempts int
	RatePerSec  int
	BatchSize   int
}

// Replicator completes dual writes whose inline attempt failed.
type Replicator struct {
	log     *Log
	cfg     ReplicatorConfig
	limiter ratelimit.Limiter
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewReplicator creates a replicator for l.
func NewReplicator(l *Log, cfg ReplicatorConfig, logger *zap.Logger) *Replicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.RatePerSec > 0 {
		limiter = ratelimit.New(cfg.RatePerSec)
	}
	return &Replicator{log: l, cfg: cfg, limiter: limiter, logger: logger.Named("replicator")}
}

// Start begins polling for pending intents.
func (r *Replicator) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx)
}

// Stop stops the loop and waits for the current pass to finish.
func (r *Replicator) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Replicator) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Drain makes one pass over pending intents and returns how many were completed.
func (r *Replicator) Drain(ctx context.Context) int {
	before := time.Now().Add(-r.cfg.Grace).UnixMilli()
	pending, err := r.log.store.PendingReplicas(ctx, before, r.cfg.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("failed to read pending replicas", zap.Error(err))
		}
		return 0
	}

	completed := 0
	for i := range pending {
		if ctx.Err() != nil {
			return completed
		}
		r.limiter.Take()
		if r.repair(ctx, &pending[i]) {
			completed++
		}
	}
	return completed
}

func (r *Replicator) repair(ctx context.Context, rep *store.Replica) bool {
	log := r.logger.With(zap.String("msg_id", rep.MsgID), zap.Int("attempt", rep.Attempts+1))

	_, wrote, err := r.log.writeCopies(ctx, rep)
	if err != nil {
		status, markErr := r.log.store.MarkReplicaRetry(ctx, rep.MsgID, err.Error(), r.cfg.MaxAttempts)
		if markErr != nil {
			log.Error("failed to record replica attempt", zap.Error(markErr))
			return false
		}
		if status == store.ReplicaFailed {
			log.Error("replica abandoned", zap.Error(err))
			r.publish(EventReplicaFailed, rep)
		} else {
			log.Warn("replica attempt failed", zap.Error(err))
		}
		return false
	}

	if err := r.log.store.MarkReplicaDone(ctx, rep.MsgID); err != nil {
		log.Error("failed to mark replica done", zap.Error(err))
		return false
	}
	if wrote {
		log.Info("replica repaired")
		r.publish(EventReplicaRepaired, rep)
	}
	return true
}

func (r *Replicator) publish(kind string, rep *store.Replica) {
	if r.log.bus == nil {
		return
	}
	r.log.bus.Publish(bus.NewEvent(kind, rep.MsgID))
}
