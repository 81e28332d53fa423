package memctrl

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// Level grades current heap pressure.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Status is one memory reading graded against the configured thresholds.
type Status struct {
	Level          Level
	UsagePercent   float64
	Recommendation string
}

// Reader reports current heap usage. Injected so the adaptive loop is
// deterministically testable against a scripted source.
type Reader interface {
	HeapBytes() uint64
}

// RuntimeReader reads live heap usage from the Go runtime.
type RuntimeReader struct{}

func (RuntimeReader) HeapBytes() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Config for the adaptive batch controller. Fractions apply to MaxHeapBytes.
type Config struct {
	MaxHeapBytes     uint64
	WarningFraction  float64
	CriticalFraction float64
	DefaultBatchSize int
	MinBatchSize     int
	Cooldown         time.Duration
}

// Batch is what the adaptive body receives for one unit of work.
type Batch struct {
	Size        int
	ShouldPause bool
	Memory      Status
}

// BodyFunc processes exactly one batch-worth of work per invocation and
// reports whether all work is done.
type BodyFunc func(ctx context.Context, b Batch) (done bool, err error)

// Controller observes process memory and derives an adaptive batch size.
// It never inspects the body's results, only the ambient memory state
// around each invocation.
type Controller struct {
	cfg   Config
	read  Reader
	log   zerolog.Logger
	sleep func(context.Context, time.Duration) error
	gc    func()
}

func NewController(cfg Config, reader Reader, logger *zerolog.Logger) *Controller {
	if cfg.MaxHeapBytes == 0 {
		cfg.MaxHeapBytes = 1 << 30 // 1 GiB
	}
	if cfg.WarningFraction <= 0 {
		cfg.WarningFraction = 0.7
	}
	if cfg.CriticalFraction <= 0 {
		cfg.CriticalFraction = 0.85
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 32
	}
	if cfg.MinBatchSize <= 0 {
		cfg.MinBatchSize = 1
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 500 * time.Millisecond
	}
	if reader == nil {
		reader = RuntimeReader{}
	}
	return &Controller{
		cfg:   cfg,
		read:  reader,
		log:   logger.With().Str("component", "MemoryController").Logger(),
		sleep: sleepCtx,
		gc:    runtime.GC,
	}
}

// CheckStatus grades the current heap usage.
func (c *Controller) CheckStatus() Status {
	used := c.read.HeapBytes()
	pct := float64(used) / float64(c.cfg.MaxHeapBytes) * 100

	switch {
	case pct >= c.cfg.CriticalFraction*100:
		return Status{
			Level:          LevelCritical,
			UsagePercent:   pct,
			Recommendation: "shrink batches hard, hint GC and pause before continuing",
		}
	case pct >= c.cfg.WarningFraction*100:
		return Status{
			Level:          LevelWarning,
			UsagePercent:   pct,
			Recommendation: "reduce batch size until pressure clears",
		}
	default:
		return Status{
			Level:          LevelNormal,
			UsagePercent:   pct,
			Recommendation: "batch size may grow back toward its default",
		}
	}
}

// RunAdaptive drives body until it reports done, re-checking memory before
// every invocation and adapting the batch size: critical shrinks to ~25% with
// a GC hint and cooldown pause, warning shrinks to ~60%, normal climbs back
// toward the configured default.
func (c *Controller) RunAdaptive(ctx context.Context, operation string, body BodyFunc) error {
	size := c.cfg.DefaultBatchSize

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		status := c.CheckStatus()
		pause := false
		switch status.Level {
		case LevelCritical:
			size = clamp(size/4, c.cfg.MinBatchSize, c.cfg.DefaultBatchSize)
			pause = true
			c.gc()
			c.log.Warn().
				Str("op", operation).
				Float64("usage_pct", status.UsagePercent).
				Int("batch_size", size).
				Msg("memory critical, shrinking batch and cooling down")
			if err := c.sleep(ctx, c.cfg.Cooldown); err != nil {
				return err
			}
		case LevelWarning:
			size = clamp(size*6/10, c.cfg.MinBatchSize, c.cfg.DefaultBatchSize)
			pause = true
			c.log.Debug().
				Str("op", operation).
				Float64("usage_pct", status.UsagePercent).
				Int("batch_size", size).
				Msg("memory warning, reducing batch")
		default:
			grown := size + size/2
			if grown <= size {
				grown = size + 1
			}
			size = clamp(grown, c.cfg.MinBatchSize, c.cfg.DefaultBatchSize)
		}

		done, err := body(ctx, Batch{Size: size, ShouldPause: pause, Memory: status})
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
