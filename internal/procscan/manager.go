package procscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/systop-web/internal/config"
	"github.com/skobkin/systop-web/internal/sysinfo"
)

// ErrDisabled is returned when the process scanner is turned off.
var ErrDisabled = errors.New("process scanner disabled")

// Manager orchestrates process-table scans and fan-out to subscribers.
type Manager struct {
	cfg        config.ProcConfig
	clockTicks int64
	logger     *slog.Logger
	collector  *collector

	mu          sync.RWMutex
	latest      *Snapshot
	subscribers map[*procSubscriber]struct{}
	prevStats   map[int]sysinfo.ProcessStat
	lastScan    time.Time
	closed      bool
	closeOnce   sync.Once
}

// NewManager constructs a process scanner manager.
func NewManager(cfg config.ProcConfig, source *sysinfo.Source, logger *slog.Logger) (*Manager, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.ScanInterval <= 0 {
		return nil, fmt.Errorf("scan interval must be > 0")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Manager{
		cfg:         cfg,
		clockTicks:  source.ClockTicksPerSecond(),
		logger:      logger.With("component", "procscan_manager"),
		collector:   newCollector(source, cfg.MaxPIDs, logger.With("component", "procscan_collector")),
		subscribers: make(map[*procSubscriber]struct{}),
		prevStats:   make(map[int]sysinfo.ProcessStat),
	}, nil
}

// Run starts the periodic process scanner until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if !m.cfg.Enable {
		<-ctx.Done()
		m.Close()
		return nil
	}

	m.logger.Info("process scanner started", "interval", m.cfg.ScanInterval, "max_pids", m.cfg.MaxPIDs)
	m.performScan(time.Now())

	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("process scanner stopping", "reason", ctx.Err())
			m.Close()
			return nil
		case now := <-ticker.C:
			m.performScan(now)
		}
	}
}

// Enabled reports whether periodic scans are configured.
func (m *Manager) Enabled() bool {
	return m.cfg.Enable
}

// Interval reports the configured scan interval.
func (m *Manager) Interval() time.Duration {
	return m.cfg.ScanInterval
}

// Latest returns the most recent snapshot.
func (m *Manager) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return Snapshot{}, false
	}
	return *m.latest, true
}

// Subscribe registers for process snapshot updates.
func (m *Manager) Subscribe() (<-chan Snapshot, func(), error) {
	if !m.cfg.Enable {
		return nil, nil, ErrDisabled
	}

	sub := newProcSubscriber()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.close()
		return sub.channel(), func() {}, nil
	}
	m.subscribers[sub] = struct{}{}
	if m.latest != nil {
		sub.send(*m.latest)
	}
	m.mu.Unlock()

	unsubscribe := func() {
		m.removeSubscriber(sub)
	}
	return sub.channel(), unsubscribe, nil
}

// Ready reports whether at least one scan has been performed.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.lastScan.IsZero()
}

// Process reads pid on demand. CPU is reported over the interval since the
// last scan when that scan saw the same process, and over its lifetime
// otherwise. The error wraps sysinfo.ErrUnavailable when the process is gone.
func (m *Manager) Process(pid int) (Process, error) {
	snap, err := m.collector.lookup(pid)
	if err != nil {
		return Process{}, err
	}

	m.mu.RLock()
	prev, ok := m.prevStats[pid]
	lastScan := m.lastScan
	m.mu.RUnlock()

	proc := toProcess(snap)
	if ok && snap.Stat != nil {
		if value, err := sysinfo.ProcessCPUBetween(prev, *snap.Stat, time.Since(lastScan), m.clockTicks); err == nil {
			proc.CPUUtilization = &value
			proc.CPUMode = CPUModeInterval
		}
	}
	return proc, nil
}

func (m *Manager) performScan(now time.Time) {
	col, err := m.collector.collect()
	if err != nil {
		m.logger.Warn("process scan failed", "err", err)
		return
	}

	m.mu.RLock()
	prevScan := m.lastScan
	prev := m.prevStats
	m.mu.RUnlock()

	var elapsed time.Duration
	if !prevScan.IsZero() {
		elapsed = now.Sub(prevScan)
		if elapsed <= 0 {
			elapsed = m.cfg.ScanInterval
		}
	}

	processes := make([]Process, 0, len(col.processes))
	nextStats := make(map[int]sysinfo.ProcessStat, len(col.processes))

	for _, snap := range col.processes {
		proc := toProcess(snap)

		if snap.Stat != nil {
			stat := *snap.Stat
			nextStats[snap.PID] = stat
			if elapsed > 0 {
				if prevStat, ok := prev[snap.PID]; ok {
					value, err := sysinfo.ProcessCPUBetween(prevStat, stat, elapsed, m.clockTicks)
					if err == nil {
						proc.CPUUtilization = &value
						proc.CPUMode = CPUModeInterval
					} else {
						m.logger.Debug("interval cpu unavailable", "pid", snap.PID, "err", err)
					}
				}
			}
		}

		processes = append(processes, proc)
	}

	snapshot := Snapshot{
		Timestamp: now.UTC(),
		Capabilities: Capabilities{
			IntervalCPU: elapsed > 0,
			Truncated:   col.truncated,
		},
		Processes: processes,
	}

	m.publish(snapshot, nextStats, now)
}

func (m *Manager) publish(snapshot Snapshot, stats map[int]sysinfo.ProcessStat, scannedAt time.Time) {
	m.mu.Lock()
	m.latest = &snapshot
	m.prevStats = stats
	m.lastScan = scannedAt
	subs := make([]*procSubscriber, 0, len(m.subscribers))
	for sub := range m.subscribers {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.send(snapshot)
	}
}

func (m *Manager) removeSubscriber(sub *procSubscriber) {
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
		m.subscribers = make(map[*procSubscriber]struct{})
		m.closed = true
		m.mu.Unlock()

		for sub := range subs {
			sub.close()
		}
	})
}

// toProcess copies a snapshot, leaving the lifetime CPU ratio in place
// until an interval value replaces it.
func toProcess(snap sysinfo.ProcessSnapshot) Process {
	proc := Process{
		PID:            snap.PID,
		UID:            snap.UID,
		User:           snap.User,
		Name:           snap.Name,
		Command:        snap.Command,
		MemoryMB:       snap.MemoryMB,
		UptimeSeconds:  snap.UptimeSeconds,
		CPUUtilization: snap.CPUUtilization,
	}
	if snap.Stat != nil {
		proc.State = snap.Stat.State
	}
	if proc.CPUUtilization != nil {
		proc.CPUMode = CPUModeLifetime
	}
	if proc.Command == "" {
		// Kernel threads have an empty cmdline.
		proc.Command = "[" + snap.Name + "]"
	}
	return proc
}

type procSubscriber struct {
	ch     chan Snapshot
	mu     sync.Mutex
	closed bool
}

func newProcSubscriber() *procSubscriber {
	return &procSubscriber{
		ch: make(chan Snapshot, 1),
	}
}

func (s *procSubscriber) channel() <-chan Snapshot {
	return s.ch
}

func (s *procSubscriber) send(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snapshot:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- snapshot:
		default:
		}
	}
}

func (s *procSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
