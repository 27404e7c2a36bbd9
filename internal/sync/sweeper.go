package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/metrics"
	"github.com/matheus3301/wppbridge/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultCron runs a sweep every 30 seconds (seconds-first 7 segments).
	DefaultCron = "*/30 * * * * * *"

	checkpointLastSweep = "last_sweep"
	nextTickRetry       = 30 * time.Second
)

// ErrSweepRunning is returned by Sweep while another sweep is in progress.
var ErrSweepRunning = errors.New("sweep already running")

// SweeperOptions configures a Sweeper. Zero values take defaults.
type SweeperOptions struct {
	InstanceID    string
	Cron          string
	BatchSize     int
	RatePerSecond float64
	Bus           *bus.Bus
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// SweepResult summarizes one pass.
type SweepResult struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Scanned    int           `json:"scanned"`
	Messages   int           `json:"messages"`
	Statuses   int           `json:"statuses"`
	Failed     int           `json:"failed"`
	Incomplete bool          `json:"incomplete,omitempty"`
}

// Sweeper re-forwards rows whose sync flags are still unset.
type Sweeper struct {
	instanceID string
	db         *store.DB
	notifier   Notifier
	cron       string
	batchSize  int
	limiter    *rate.Limiter
	bus        *bus.Bus
	logger     *zap.Logger
	metrics    *metrics.Metrics

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper. The cron expression is validated here so a
// bad config fails at startup rather than on the first tick.
func NewSweeper(db *store.DB, n Notifier, opts SweeperOptions) (*Sweeper, error) {
	cron := opts.Cron
	if cron == "" {
		cron = DefaultCron
	}
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cron)
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 200
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		instanceID: opts.InstanceID,
		db:         db,
		notifier:   n,
		cron:       cron,
		batchSize:  batch,
		limiter:    rate.NewLimiter(limit, 1),
		bus:        opts.Bus,
		logger:     logger.With(zap.String("component", "sweeper")),
		metrics:    opts.Metrics,
	}, nil
}

// Sweep makes one pass over the unsynced rows. Per-row failures are logged
// and counted, never returned; the only error is a failed scan (or
// ErrSweepRunning when a pass is already under way).
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepResult{}, ErrSweepRunning
	}
	defer s.running.Store(false)

	res := SweepResult{StartedAt: time.Now()}
	rows, err := s.db.UnsyncedMessages(s.instanceID, s.batchSize)
	if err != nil {
		return res, fmt.Errorf("scan unsynced messages: %w", err)
	}
	res.Scanned = len(rows)

	for i := range rows {
		if err := s.limiter.Wait(ctx); err != nil {
			res.Incomplete = true
			break
		}
		s.sweepRow(ctx, &rows[i], &res)
	}

	res.Duration = time.Since(res.StartedAt)
	s.metrics.ObserveSweep(res.Duration.Seconds())
	s.record(res)
	if res.Scanned > 0 {
		s.logger.Info("sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("messages", res.Messages),
			zap.Int("statuses", res.Statuses),
			zap.Int("failed", res.Failed),
			zap.Duration("duration", res.Duration),
		)
	}
	s.bus.Emit(bus.KindSweepDone, res)
	return res, nil
}

// sweepRow applies the row's action:
//
//	sync_message=0              forward full message, then set both flags
//	sync_message=1 sync_status=0 forward status, then set sync_status
//	both set                    nothing (never returned by the scan)
func (s *Sweeper) sweepRow(ctx context.Context, m *store.Message, res *SweepResult) {
	logger := s.logger.With(zap.String("msg_id", m.MsgID))
	switch {
	case !m.SyncMessage:
		if !s.notifier.NotifyNewMessage(ctx, m) {
			res.Failed++
			s.metrics.SweepRow("message", metrics.ResultFailed)
			return
		}
		if err := settleMessage(s.db, s.bus, m.MsgID, m.Status); err != nil {
			logger.Error("settle swept message", zap.Error(err))
			res.Failed++
			s.metrics.SweepRow("message", metrics.ResultFailed)
			return
		}
		res.Messages++
		s.metrics.SweepRow("message", metrics.ResultOK)
	case !m.SyncStatus:
		if !s.notifier.NotifyStatusChange(ctx, m.MsgID, m.Status) {
			res.Failed++
			s.metrics.SweepRow("status", metrics.ResultFailed)
			return
		}
		if err := settleStatus(s.db, s.bus, m.MsgID, m.Status); err != nil {
			logger.Error("settle swept status", zap.Error(err))
			res.Failed++
			s.metrics.SweepRow("status", metrics.ResultFailed)
			return
		}
		res.Statuses++
		s.metrics.SweepRow("status", metrics.ResultOK)
	default:
		s.metrics.SweepRow("none", metrics.ResultSkipped)
	}
}

func (s *Sweeper) record(res SweepResult) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.db.SetCheckpoint(checkpointLastSweep, string(data)); err != nil {
		s.logger.Warn("save sweep checkpoint", zap.Error(err))
	}
}

// LastSweep returns the most recent recorded pass, or nil before the first.
func LastSweep(db *store.DB) (*SweepResult, error) {
	v, ok, err := db.GetCheckpoint(checkpointLastSweep)
	if err != nil || !ok {
		return nil, err
	}
	var res SweepResult
	if err := json.Unmarshal([]byte(v), &res); err != nil {
		return nil, fmt.Errorf("decode sweep checkpoint: %w", err)
	}
	return &res, nil
}

// Start runs sweeps on the cron cadence until Stop or ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.logger.Info("sweeper started", zap.String("cron", s.cron))
}

// Stop ends the schedule and waits for an in-flight pass to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		wait := nextTickRetry
		next, err := gronx.NextTickAfter(s.cron, time.Now(), false)
		if err != nil {
			s.logger.Error("compute next sweep", zap.Error(err))
		} else {
			wait = time.Until(next)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err != nil {
			continue
		}

		if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepRunning) {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	}
}
