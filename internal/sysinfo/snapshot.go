package sysinfo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxCommandLength = 256

// SystemSnapshot is a best-effort view of host-wide metrics. Pointer fields
// are nil when the value could not be read.
type SystemSnapshot struct {
	OSName            *string    `json:"os_name"`
	Kernel            *string    `json:"kernel"`
	MemoryUtilization *float64   `json:"memory_utilization"`
	UptimeSeconds     *int64     `json:"uptime_seconds"`
	TotalProcesses    *uint64    `json:"total_processes"`
	RunningProcesses  *uint64    `json:"running_processes"`
	CPU               *CPUSample `json:"cpu"`
	// CPUUtilization is the since-boot ratio of CPU.
	CPUUtilization *float64 `json:"cpu_utilization_since_boot"`
	PIDs           []int    `json:"pids"`
}

// ProcessSnapshot is a best-effort view of one process.
type ProcessSnapshot struct {
	PID int `json:"pid"`
	// CommandLine is the raw cmdline, NUL separators included.
	CommandLine    string       `json:"cmdline"`
	Command        string       `json:"cmd"`
	Name           string       `json:"name"`
	MemoryMB       *uint64      `json:"mem_mb"`
	UID            *int         `json:"uid"`
	User           *string      `json:"user"`
	UptimeSeconds  *int64       `json:"uptime_seconds"`
	CPUUtilization *float64     `json:"cpu_utilization"`
	Stat           *ProcessStat `json:"stat"`
}

// System gathers every host-wide metric. Failures leave fields nil.
func (s *Source) System() SystemSnapshot {
	var snap SystemSnapshot

	if name, err := s.OperatingSystemName(); err == nil {
		snap.OSName = &name
	} else {
		s.logger.Debug("os name unavailable", "err", err)
	}

	if kernel, err := s.KernelVersion(); err == nil {
		snap.Kernel = &kernel
	} else {
		s.logger.Debug("kernel version unavailable", "err", err)
	}

	if mem, err := s.MemoryUtilization(); err == nil {
		snap.MemoryUtilization = &mem
	} else {
		s.logger.Debug("memory utilization unavailable", "err", err)
	}

	if uptime, err := s.SystemUptimeSeconds(); err == nil {
		snap.UptimeSeconds = &uptime
	} else {
		s.logger.Debug("uptime unavailable", "err", err)
	}

	if total, err := s.TotalProcessCount(); err == nil {
		snap.TotalProcesses = &total
	} else {
		s.logger.Debug("process count unavailable", "err", err)
	}

	if running, err := s.RunningProcessCount(); err == nil {
		snap.RunningProcesses = &running
	} else {
		s.logger.Debug("running process count unavailable", "err", err)
	}

	if sample, err := s.ReadCPUSample(); err == nil {
		snap.CPU = &sample
		if ratio, err := SystemCPUUtilization(sample); err == nil {
			snap.CPUUtilization = &ratio
		}
	} else {
		s.logger.Debug("cpu sample unavailable", "err", err)
	}

	pids, err := s.ListProcessIDs()
	if err != nil {
		s.logger.Debug("process list unavailable", "err", err)
	}
	snap.PIDs = pids

	return snap
}

// Process gathers every metric for pid. It returns ErrUnavailable when the
// process is gone; other failures leave fields nil.
func (s *Source) Process(pid int) (ProcessSnapshot, error) {
	env := s.newProcessEnv(s.LookupUserName)
	return s.buildProcess(pid, env)
}

// Processes gathers snapshots for every pid, reading uptime and passwd once.
// Processes that exit or cannot be parsed mid-scan are skipped.
func (s *Source) Processes(pids []int) []ProcessSnapshot {
	users, usersErr := s.readUsers()
	if usersErr != nil {
		s.logger.Debug("passwd unavailable", "err", usersErr)
	}
	env := s.newProcessEnv(func(uid int) (string, error) {
		if usersErr != nil {
			return "", usersErr
		}
		name, ok := users[strconv.Itoa(uid)]
		if !ok {
			return "", malformed(passwdFilename, "no entry for uid %d", uid)
		}
		return name, nil
	})

	out := make([]ProcessSnapshot, 0, len(pids))
	for _, pid := range pids {
		snap, err := s.buildProcess(pid, env)
		if err != nil {
			s.logger.Debug("skipping process", "pid", pid, "err", err)
			continue
		}
		out = append(out, snap)
	}
	return out
}

// processEnv holds host-wide inputs shared by every process in a scan.
type processEnv struct {
	uptime    float64
	uptimeErr error
	lookup    func(uid int) (string, error)
}

func (s *Source) newProcessEnv(lookup func(uid int) (string, error)) processEnv {
	uptime, err := s.uptime()
	return processEnv{uptime: uptime, uptimeErr: err, lookup: lookup}
}

func (s *Source) buildProcess(pid int, env processEnv) (ProcessSnapshot, error) {
	stat, err := s.ReadProcessStat(pid)
	if err != nil {
		return ProcessSnapshot{}, fmt.Errorf("process %d: %w", pid, err)
	}

	snap := ProcessSnapshot{
		PID:  pid,
		Name: stat.Comm,
		Stat: &stat,
	}
	logger := s.logger.With("pid", pid)

	if cmdline, err := s.CommandLine(pid); err == nil {
		snap.CommandLine = cmdline
		snap.Command = formatCmdline(cmdline)
	} else {
		logger.Debug("cmdline unavailable", "err", err)
	}

	if status, err := s.ReadProcessStatus(pid); err != nil {
		logger.Debug("status unavailable", "err", err)
	} else {
		if status.HasVmSize {
			mb := status.VmSizeMB()
			snap.MemoryMB = &mb
		}
		if status.HasUID {
			uid := status.UID
			snap.UID = &uid
			if name, err := env.lookup(uid); err == nil {
				snap.User = &name
			} else {
				logger.Debug("user lookup failed", "uid", uid, "err", err)
			}
		}
	}

	if env.uptimeErr != nil {
		logger.Debug("uptime unavailable", "err", env.uptimeErr)
		return snap, nil
	}
	if elapsed := processElapsed(stat, env.uptime, s.clockTicks); elapsed >= 0 {
		seconds := int64(elapsed)
		snap.UptimeSeconds = &seconds
	}
	if fraction, err := ProcessCPUFraction(stat, env.uptime, s.clockTicks); err == nil {
		snap.CPUUtilization = &fraction
	} else {
		logger.Debug("process cpu undefined", "err", err)
	}
	return snap, nil
}

// IsGone reports whether err means the process exited or its files can no
// longer be opened.
func IsGone(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func formatCmdline(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "\x00")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	cmd := strings.Join(out, " ")
	if len(cmd) <= maxCommandLength {
		return cmd
	}
	cut := maxCommandLength
	for cut > 0 && !utf8.RuneStart(cmd[cut]) {
		cut--
	}
	return cmd[:cut]
}
