package sysinfo

import (
	"fmt"
	"strconv"
	"strings"
)

// MemInfo holds the /proc/meminfo values used by the monitor, in kB.
type MemInfo struct {
	TotalKB     uint64 `json:"total_kb"`
	FreeKB      uint64 `json:"free_kb"`
	AvailableKB uint64 `json:"available_kb,omitempty"`
}

// Utilization returns (total - free) / total.
func (m MemInfo) Utilization() (float64, error) {
	if m.TotalKB == 0 {
		return 0, fmt.Errorf("memory utilization: %w: MemTotal is 0", ErrDivisionUndefined)
	}
	if m.FreeKB > m.TotalKB {
		return 0, malformed(meminfoFilename, "MemFree %d exceeds MemTotal %d", m.FreeKB, m.TotalKB)
	}
	return float64(m.TotalKB-m.FreeKB) / float64(m.TotalKB), nil
}

// ReadMemInfo parses MemTotal, MemFree and, when present, MemAvailable.
func (s *Source) ReadMemInfo() (MemInfo, error) {
	data, err := readFile(s.proc, meminfoFilename)
	if err != nil {
		return MemInfo{}, err
	}

	var info MemInfo
	total, err := meminfoValue(data, "MemTotal:")
	if err != nil {
		return MemInfo{}, err
	}
	info.TotalKB = total

	free, err := meminfoValue(data, "MemFree:")
	if err != nil {
		return MemInfo{}, err
	}
	info.FreeKB = free

	if available, err := meminfoValue(data, "MemAvailable:"); err == nil {
		info.AvailableKB = available
	}
	return info, nil
}

// MemoryUtilization returns the used fraction of physical memory.
func (s *Source) MemoryUtilization() (float64, error) {
	info, err := s.ReadMemInfo()
	if err != nil {
		return 0, err
	}
	return info.Utilization()
}

// SystemUptimeSeconds returns whole seconds since boot.
func (s *Source) SystemUptimeSeconds() (int64, error) {
	uptime, err := s.uptime()
	if err != nil {
		return 0, err
	}
	return int64(uptime), nil
}

func (s *Source) uptime() (float64, error) {
	line, err := firstLine(s.proc, uptimeFilename)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, malformed(uptimeFilename, "empty file")
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || value < 0 {
		return 0, malformed(uptimeFilename, "uptime %q", fields[0])
	}
	return value, nil
}

func meminfoValue(data []byte, key string) (uint64, error) {
	raw, ok, err := lookupKey(meminfoFilename, data, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, malformed(meminfoFilename, "%s not found", strings.TrimSuffix(key, ":"))
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, malformed(meminfoFilename, "%s: %v", strings.TrimSuffix(key, ":"), err)
	}
	return value, nil
}
