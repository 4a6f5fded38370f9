package sampler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Manager periodically samples the host, caches the latest snapshot,
// and fan-outs updates to subscribers.
type Manager struct {
	interval time.Duration
	reader   *Reader
	logger   *slog.Logger

	mu          sync.RWMutex
	latest      *Sample
	subscribers map[*subscriber]struct{}
	closed      bool
	closeOnce   sync.Once
}

// NewManager builds a Manager around a pre-constructed reader.
func NewManager(interval time.Duration, reader *Reader, logger *slog.Logger) (*Manager, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		interval:    interval,
		reader:      reader,
		logger:      logger.With("component", "sampler_manager"),
		subscribers: make(map[*subscriber]struct{}),
	}, nil
}

// Run samples the host on every tick until the context is canceled.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("sampler started", "interval", m.interval)

	// Initial sample to prime cache.
	m.storeSample(m.reader.Sample())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("sampler stopping", "reason", ctx.Err())
			m.Close()
			return nil
		case <-ticker.C:
			m.storeSample(m.reader.Sample())
		}
	}
}

// Latest returns the most recent sample.
func (m *Manager) Latest() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return Sample{}, false
	}
	return *m.latest, true
}

// Subscribe registers a listener for sample updates. The latest sample, if
// any, is delivered immediately.
func (m *Manager) Subscribe() (<-chan Sample, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := newSubscriber()
	if m.closed {
		sub.close()
		return sub.channel(), func() {}
	}
	m.subscribers[sub] = struct{}{}

	if m.latest != nil {
		sub.send(*m.latest)
	}

	unsubscribe := func() {
		m.removeSubscriber(sub)
	}
	return sub.channel(), unsubscribe
}

// Interval reports the configured sampling interval.
func (m *Manager) Interval() time.Duration {
	return m.interval
}

// ClockTicks reports the jiffies-per-second rate behind sample CPU counters.
func (m *Manager) ClockTicks() int64 {
	return m.reader.ClockTicks()
}

// Ready reports whether at least one sample has been published.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest != nil
}

func (m *Manager) storeSample(sample Sample) {
	m.mu.Lock()
	m.latest = &sample

	targetSubs := make([]*subscriber, 0, len(m.subscribers))
	for sub := range m.subscribers {
		targetSubs = append(targetSubs, sub)
	}
	m.mu.Unlock()

	for _, sub := range targetSubs {
		sub.send(sample)
	}
}

func (m *Manager) removeSubscriber(sub *subscriber) {
	m.mu.Lock()
	delete(m.subscribers, sub)
	m.mu.Unlock()
	sub.close()
}

// Close ends every subscription. Safe for repeated use.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		subs := m.subscribers
		m.subscribers = make(map[*subscriber]struct{})
		m.closed = true
		m.mu.Unlock()

		for sub := range subs {
			sub.close()
		}
	})
}

type subscriber struct {
	ch     chan Sample
	mu     sync.Mutex
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{
		ch: make(chan Sample, 1),
	}
}

func (s *subscriber) channel() <-chan Sample {
	return s.ch
}

func (s *subscriber) send(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- sample:
		return
	default:
		// Drop oldest to make room for new sample.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- sample:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
