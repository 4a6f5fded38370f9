package sampler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/systop-web/internal/sysinfo"
)

// Reader turns procfs reads into Samples. It keeps the previous aggregate CPU
// counters so that utilization reflects the last interval rather than the
// average since boot.
type Reader struct {
	source *sysinfo.Source
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	prevCPU *sysinfo.CPUSample
}

// NewReader constructs a Reader over the provided source.
func NewReader(source *sysinfo.Source, logger *slog.Logger) (*Reader, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{
		source: source,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Sample collects host metrics. Non-fatal read errors result in nil fields.
func (r *Reader) Sample() Sample {
	sample := Sample{
		Timestamp: r.now().UTC(),
		System:    r.source.System(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := sample.System.CPU
	if cur == nil {
		return sample
	}

	if r.prevCPU != nil {
		value, err := sysinfo.CPUUtilizationBetween(*r.prevCPU, *cur)
		switch {
		case err == nil:
			sample.CPUUtilization = float64Ptr(value)
			sample.CPUMode = CPUModeInterval
			r.prevCPU = cur
			return sample
		case errors.Is(err, sysinfo.ErrDivisionUndefined):
			// No ticks elapsed; keep the older baseline for the next read.
			r.logger.Debug("cpu interval too short", "err", err)
		default:
			r.logger.Warn("cpu counters reset, falling back to since-boot utilization", "err", err)
			r.prevCPU = cur
		}
	} else {
		r.prevCPU = cur
	}

	if sample.System.CPUUtilization != nil {
		sample.CPUUtilization = float64Ptr(*sample.System.CPUUtilization)
		sample.CPUMode = CPUModeSinceBoot
	}
	return sample
}

// Reset drops the CPU baseline so the next Sample reports since-boot values.
func (r *Reader) Reset() {
	r.mu.Lock()
	r.prevCPU = nil
	r.mu.Unlock()
}

func float64Ptr(v float64) *float64 {
	return &v
}

// ClockTicks reports the USER_HZ value used to interpret jiffy counters.
func (r *Reader) ClockTicks() int64 {
	return r.source.ClockTicksPerSecond()
}
