package sysinfo

import (
	"fmt"
	"time"
)

// SystemCPUUtilization returns active/total ticks of a single sample. The
// counters are cumulative, so this is the average load since boot rather
// than the current load; use CPUUtilizationBetween for the latter.
func SystemCPUUtilization(sample CPUSample) (float64, error) {
	total := sample.TotalJiffies()
	if total == 0 {
		return 0, fmt.Errorf("cpu utilization: %w: no ticks recorded", ErrDivisionUndefined)
	}
	return float64(sample.ActiveJiffies()) / float64(total), nil
}

// CPUUtilizationBetween returns the busy fraction over the interval between
// two samples of the same host.
func CPUUtilizationBetween(prev, cur CPUSample) (float64, error) {
	prevTotal, curTotal := prev.TotalJiffies(), cur.TotalJiffies()
	prevActive, curActive := prev.ActiveJiffies(), cur.ActiveJiffies()
	if curTotal < prevTotal || curActive < prevActive {
		return 0, fmt.Errorf("cpu utilization: %w: counters went backwards", ErrMalformed)
	}
	totalDelta := curTotal - prevTotal
	if totalDelta == 0 {
		return 0, fmt.Errorf("cpu utilization: %w: zero interval", ErrDivisionUndefined)
	}
	activeDelta := curActive - prevActive
	if activeDelta > totalDelta {
		// iowait is not monotonic, see proc(5)
		activeDelta = totalDelta
	}
	return float64(activeDelta) / float64(totalDelta), nil
}

// ProcessCPUFraction computes (total_time / hz) / (uptime - starttime / hz).
func ProcessCPUFraction(stat ProcessStat, uptimeSeconds float64, hz int64) (float64, error) {
	if hz <= 0 {
		return 0, fmt.Errorf("process %d cpu: %w: clock ticks is %d", stat.PID, ErrDivisionUndefined, hz)
	}
	elapsed := processElapsed(stat, uptimeSeconds, hz)
	if elapsed <= 0 {
		return 0, fmt.Errorf("process %d cpu: %w: elapsed time is %.2fs", stat.PID, ErrDivisionUndefined, elapsed)
	}
	seconds := float64(stat.TotalTime()) / float64(hz)
	return seconds / elapsed, nil
}

// ProcessCPUBetween returns the fraction of one CPU used by a process between
// two stat reads taken elapsed apart.
func ProcessCPUBetween(prev, cur ProcessStat, elapsed time.Duration, hz int64) (float64, error) {
	if prev.PID != cur.PID || prev.StartTime != cur.StartTime {
		return 0, fmt.Errorf("process %d cpu: %w: pid was reused", cur.PID, ErrMalformed)
	}
	if hz <= 0 || elapsed <= 0 {
		return 0, fmt.Errorf("process %d cpu: %w: zero interval", cur.PID, ErrDivisionUndefined)
	}
	prevTotal, curTotal := prev.TotalTime(), cur.TotalTime()
	if curTotal < prevTotal {
		return 0, fmt.Errorf("process %d cpu: %w: counters went backwards", cur.PID, ErrMalformed)
	}
	seconds := float64(curTotal-prevTotal) / float64(hz)
	return seconds / elapsed.Seconds(), nil
}
