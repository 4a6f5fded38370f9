package procscan

import "time"

// CPU modes reported per process.
const (
	CPUModeInterval = "interval"
	CPUModeLifetime = "lifetime"
)

// Snapshot represents a single process-table scan of the host.
type Snapshot struct {
	Timestamp    time.Time    `json:"ts"`
	Capabilities Capabilities `json:"capabilities"`
	Processes    []Process    `json:"processes"`
}

// Capabilities describes what a scan could provide.
type Capabilities struct {
	// IntervalCPU is set once a previous scan exists to diff against.
	IntervalCPU bool `json:"interval_cpu"`
	// Truncated is set when more processes existed than the scan limit.
	Truncated bool `json:"truncated"`
}

// Process summarises one process. Pointer fields serialize as null when
// unavailable.
type Process struct {
	PID            int      `json:"pid"`
	UID            *int     `json:"uid"`
	User           *string  `json:"user"`
	Name           string   `json:"name"`
	Command        string   `json:"cmd"`
	State          string   `json:"state"`
	MemoryMB       *uint64  `json:"mem_mb"`
	UptimeSeconds  *int64   `json:"uptime_seconds"`
	CPUUtilization *float64 `json:"cpu_utilization"`
	CPUMode        string   `json:"cpu_mode,omitempty"`
}
