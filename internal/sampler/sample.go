package sampler

import (
	"time"

	"github.com/skobkin/systop-web/internal/sysinfo"
)

// CPU utilization modes reported alongside each sample.
const (
	CPUModeInterval  = "interval"
	CPUModeSinceBoot = "since_boot"
)

// Sample represents a single host telemetry snapshot. Pointer fields serialize
// as null when unavailable.
type Sample struct {
	Timestamp time.Time              `json:"ts"`
	System    sysinfo.SystemSnapshot `json:"system"`
	// CPUUtilization is the busy fraction over the last interval, or since
	// boot for the first sample and after counter resets.
	CPUUtilization *float64 `json:"cpu_utilization"`
	CPUMode        string   `json:"cpu_mode,omitempty"`
}
