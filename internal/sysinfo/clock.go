package sysinfo

import (
	"sync"

	"github.com/tklauser/go-sysconf"
)

// USER_HZ is 100 on every mainstream Linux architecture.
const fallbackClockTicks = 100

var (
	clockOnce  sync.Once
	clockTicks int64
)

// ClockTicks returns sysconf(_SC_CLK_TCK), or 100 if it cannot be resolved.
func ClockTicks() int64 {
	clockOnce.Do(func() {
		hz, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
		if err != nil || hz <= 0 {
			hz = fallbackClockTicks
		}
		clockTicks = hz
	})
	return clockTicks
}
