package sysinfo

import (
	"strconv"
	"strings"
)

const cpuFieldCount = 10

// CPUSample holds the cumulative since-boot counters of the aggregate "cpu"
// line of /proc/stat, in clock ticks.
type CPUSample struct {
	User      uint64 `json:"user"`
	Nice      uint64 `json:"nice"`
	System    uint64 `json:"system"`
	Idle      uint64 `json:"idle"`
	IOWait    uint64 `json:"iowait"`
	IRQ       uint64 `json:"irq"`
	SoftIRQ   uint64 `json:"softirq"`
	Steal     uint64 `json:"steal"`
	Guest     uint64 `json:"guest"`
	GuestNice uint64 `json:"guest_nice"`
}

// ActiveJiffies is every non-idle counter.
func (c CPUSample) ActiveJiffies() uint64 {
	return c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal + c.Guest + c.GuestNice
}

// IdleJiffies is idle plus iowait.
func (c CPUSample) IdleJiffies() uint64 {
	return c.Idle + c.IOWait
}

// TotalJiffies is ActiveJiffies plus IdleJiffies.
func (c CPUSample) TotalJiffies() uint64 {
	return c.ActiveJiffies() + c.IdleJiffies()
}

// ReadCPUSample parses the aggregate cpu line of /proc/stat.
func (s *Source) ReadCPUSample() (CPUSample, error) {
	data, err := readFile(s.proc, statFilename)
	if err != nil {
		return CPUSample{}, err
	}

	var fields []string
	err = scanLines(statFilename, data, func(line string) bool {
		tokens := strings.Fields(line)
		if len(tokens) == 0 || tokens[0] != "cpu" {
			return true
		}
		fields = tokens[1:]
		return false
	})
	if err != nil {
		return CPUSample{}, err
	}
	if fields == nil {
		return CPUSample{}, malformed(statFilename, "aggregate cpu line not found")
	}
	return parseCPUFields(fields)
}

func parseCPUFields(fields []string) (CPUSample, error) {
	if len(fields) < cpuFieldCount {
		return CPUSample{}, malformed(statFilename, "cpu line has %d counters, want %d", len(fields), cpuFieldCount)
	}

	var values [cpuFieldCount]uint64
	for i := range values {
		value, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return CPUSample{}, malformed(statFilename, "cpu counter %d: %v", i, err)
		}
		values[i] = value
	}

	return CPUSample{
		User:      values[0],
		Nice:      values[1],
		System:    values[2],
		Idle:      values[3],
		IOWait:    values[4],
		IRQ:       values[5],
		SoftIRQ:   values[6],
		Steal:     values[7],
		Guest:     values[8],
		GuestNice: values[9],
	}, nil
}

// ActiveJiffies reads a fresh sample and returns its active ticks.
func (s *Source) ActiveJiffies() (uint64, error) {
	sample, err := s.ReadCPUSample()
	if err != nil {
		return 0, err
	}
	return sample.ActiveJiffies(), nil
}

// IdleJiffies reads a fresh sample and returns its idle ticks.
func (s *Source) IdleJiffies() (uint64, error) {
	sample, err := s.ReadCPUSample()
	if err != nil {
		return 0, err
	}
	return sample.IdleJiffies(), nil
}

// TotalJiffies reads a fresh sample and returns active plus idle ticks.
func (s *Source) TotalJiffies() (uint64, error) {
	sample, err := s.ReadCPUSample()
	if err != nil {
		return 0, err
	}
	return sample.TotalJiffies(), nil
}

// TotalProcessCount returns the "processes" counter (forks since boot).
func (s *Source) TotalProcessCount() (uint64, error) {
	return s.statCounter("processes")
}

// RunningProcessCount returns the "procs_running" gauge.
func (s *Source) RunningProcessCount() (uint64, error) {
	return s.statCounter("procs_running")
}

func (s *Source) statCounter(key string) (uint64, error) {
	data, err := readFile(s.proc, statFilename)
	if err != nil {
		return 0, err
	}
	raw, ok, err := lookupKey(statFilename, data, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, malformed(statFilename, "%s not found", key)
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, malformed(statFilename, "%s: %v", key, err)
	}
	return value, nil
}
