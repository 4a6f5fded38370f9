package procscan

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/skobkin/systop-web/internal/sysinfo"
)

type collection struct {
	processes []sysinfo.ProcessSnapshot
	truncated bool
}

type collector struct {
	source  *sysinfo.Source
	maxPIDs int
	logger  *slog.Logger
}

func newCollector(source *sysinfo.Source, maxPIDs int, logger *slog.Logger) *collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &collector{
		source:  source,
		maxPIDs: maxPIDs,
		logger:  logger,
	}
}

// collect reads the lowest maxPIDs process ids. Processes that exit between
// enumeration and reading are dropped.
func (c *collector) collect() (collection, error) {
	pids, err := c.source.ListProcessIDs()
	if err != nil {
		return collection{}, fmt.Errorf("list processes: %w", err)
	}
	slices.Sort(pids)

	var col collection
	if c.maxPIDs > 0 && len(pids) > c.maxPIDs {
		c.logger.Debug("process list truncated", "found", len(pids), "limit", c.maxPIDs)
		pids = pids[:c.maxPIDs]
		col.truncated = true
	}

	col.processes = c.source.Processes(pids)
	return col, nil
}

func (c *collector) lookup(pid int) (sysinfo.ProcessSnapshot, error) {
	return c.source.Process(pid)
}
