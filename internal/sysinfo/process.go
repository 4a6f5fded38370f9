package sysinfo

import (
	"fmt"
	"strconv"
	"strings"
)

// ProcessStat holds the fields of /proc/<pid>/stat used by the monitor.
// Times are in clock ticks.
type ProcessStat struct {
	PID       int    `json:"pid"`
	Comm      string `json:"comm"`
	State     string `json:"state"`
	UTime     uint64 `json:"utime"`
	STime     uint64 `json:"stime"`
	CUTime    uint64 `json:"cutime"`
	CSTime    uint64 `json:"cstime"`
	StartTime uint64 `json:"starttime"`
}

// TotalTime is utime + stime + cutime + cstime.
func (p ProcessStat) TotalTime() uint64 {
	return p.UTime + p.STime + p.CUTime + p.CSTime
}

// ProcessStatus holds the /proc/<pid>/status keys used by the monitor.
type ProcessStatus struct {
	Name      string
	UID       int
	HasUID    bool
	VmSizeKB  uint64
	HasVmSize bool
	VmRSSKB   uint64
}

// VmSize is reported in decimal MB.
const kBPerMB = 1000

// VmSizeMB returns VmSize in MB, truncated.
func (p ProcessStatus) VmSizeMB() uint64 {
	return p.VmSizeKB / kBPerMB
}

// Positions after the closing parenthesis of comm: field 3 (state) is index 0.
const (
	statStateIndex     = 0
	statUTimeIndex     = 14 - 3
	statSTimeIndex     = 15 - 3
	statCUTimeIndex    = 16 - 3
	statCSTimeIndex    = 17 - 3
	statStartTimeIndex = 22 - 3
)

// CommandLine returns the raw first line of /proc/<pid>/cmdline. Arguments
// stay NUL-separated.
func (s *Source) CommandLine(pid int) (string, error) {
	return firstLine(s.proc, pidPath(pid, cmdlineFilename))
}

// ReadProcessStatus parses /proc/<pid>/status.
func (s *Source) ReadProcessStatus(pid int) (ProcessStatus, error) {
	name := pidPath(pid, statusFilename)
	data, err := readFile(s.proc, name)
	if err != nil {
		return ProcessStatus{}, err
	}
	return parseProcessStatus(name, data)
}

func parseProcessStatus(name string, data []byte) (ProcessStatus, error) {
	var (
		status   ProcessStatus
		parseErr error
	)
	scanErr := scanLines(name, data, func(line string) bool {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return true
		}
		fields := strings.Fields(value)
		switch key {
		case "Name":
			status.Name = strings.TrimSpace(value)
		case "Uid":
			if len(fields) == 0 {
				parseErr = malformed(name, "empty Uid")
				return false
			}
			uid, err := strconv.Atoi(fields[0])
			if err != nil {
				parseErr = malformed(name, "Uid: %v", err)
				return false
			}
			status.UID = uid
			status.HasUID = true
		case "VmSize":
			if len(fields) == 0 {
				return true
			}
			if kb, err := strconv.ParseUint(fields[0], 10, 64); err == nil {
				status.VmSizeKB = kb
				status.HasVmSize = true
			}
		case "VmRSS":
			if len(fields) == 0 {
				return true
			}
			if kb, err := strconv.ParseUint(fields[0], 10, 64); err == nil {
				status.VmRSSKB = kb
			}
		}
		return true
	})
	if parseErr != nil {
		return ProcessStatus{}, parseErr
	}
	if scanErr != nil {
		return ProcessStatus{}, scanErr
	}
	return status, nil
}

// ResidentMemoryMB returns VmSize converted from kB to MB.
func (s *Source) ResidentMemoryMB(pid int) (uint64, error) {
	status, err := s.ReadProcessStatus(pid)
	if err != nil {
		return 0, err
	}
	if !status.HasVmSize {
		// Kernel threads have no VmSize line.
		return 0, malformed(pidPath(pid, statusFilename), "VmSize not found")
	}
	return status.VmSizeMB(), nil
}

// ResidentMemory returns ResidentMemoryMB as a decimal string.
func (s *Source) ResidentMemory(pid int) (string, error) {
	mb, err := s.ResidentMemoryMB(pid)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(mb, 10), nil
}

// UID returns the real user id from /proc/<pid>/status.
func (s *Source) UID(pid int) (int, error) {
	status, err := s.ReadProcessStatus(pid)
	if err != nil {
		return 0, err
	}
	if !status.HasUID {
		return 0, malformed(pidPath(pid, statusFilename), "Uid not found")
	}
	return status.UID, nil
}

// LookupUserName resolves uid through the passwd file. The uid field must
// match exactly, so uid 1 never matches 10 or 100.
func (s *Source) LookupUserName(uid int) (string, error) {
	data, err := readFile(s.etc, passwdFilename)
	if err != nil {
		return "", err
	}

	want := strconv.Itoa(uid)
	var (
		name  string
		found bool
	)
	err = scanPasswd(data, func(user, id string) bool {
		if id != want {
			return true
		}
		name = user
		found = true
		return false
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", malformed(passwdFilename, "no entry for uid %d", uid)
	}
	return name, nil
}

// readUsers maps the raw uid field of every passwd entry to its name. The
// first entry for a uid wins.
func (s *Source) readUsers() (map[string]string, error) {
	data, err := readFile(s.etc, passwdFilename)
	if err != nil {
		return nil, err
	}
	users := make(map[string]string)
	err = scanPasswd(data, func(user, id string) bool {
		if _, ok := users[id]; !ok {
			users[id] = user
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func scanPasswd(data []byte, fn func(user, uid string) bool) error {
	return scanLines(passwdFilename, data, func(line string) bool {
		if line == "" || strings.HasPrefix(line, "#") {
			return true
		}
		fields := strings.SplitN(line, ":", 4)
		if len(fields) < 3 {
			return true
		}
		return fn(fields[0], fields[2])
	})
}

// User returns the account name owning pid.
func (s *Source) User(pid int) (string, error) {
	uid, err := s.UID(pid)
	if err != nil {
		return "", err
	}
	return s.LookupUserName(uid)
}

// ReadProcessStat parses /proc/<pid>/stat.
func (s *Source) ReadProcessStat(pid int) (ProcessStat, error) {
	name := pidPath(pid, statFilename)
	line, err := firstLine(s.proc, name)
	if err != nil {
		return ProcessStat{}, err
	}
	return parseProcessStat(name, line)
}

// parseProcessStat splits on the last ')' so a comm such as "(tmux: server)"
// or "a) (b" cannot shift the positional fields.
func parseProcessStat(name, line string) (ProcessStat, error) {
	open := strings.IndexByte(line, '(')
	closing := strings.LastIndexByte(line, ')')
	if open < 0 || closing < open {
		return ProcessStat{}, malformed(name, "missing comm parentheses")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(line[:open]))
	if err != nil {
		return ProcessStat{}, malformed(name, "pid: %v", err)
	}

	rest := strings.Fields(line[closing+1:])
	if len(rest) <= statStartTimeIndex {
		return ProcessStat{}, malformed(name, "expected at least %d fields, got %d", statStartTimeIndex+3, len(rest)+2)
	}

	stat := ProcessStat{
		PID:   pid,
		Comm:  line[open+1 : closing],
		State: rest[statStateIndex],
	}

	targets := []struct {
		index int
		dst   *uint64
		field string
	}{
		{statUTimeIndex, &stat.UTime, "utime"},
		{statSTimeIndex, &stat.STime, "stime"},
		{statCUTimeIndex, &stat.CUTime, "cutime"},
		{statCSTimeIndex, &stat.CSTime, "cstime"},
		{statStartTimeIndex, &stat.StartTime, "starttime"},
	}
	for _, target := range targets {
		value, err := strconv.ParseInt(rest[target.index], 10, 64)
		if err != nil || value < 0 {
			return ProcessStat{}, malformed(name, "%s %q", target.field, rest[target.index])
		}
		*target.dst = uint64(value)
	}
	return stat, nil
}

// ProcessUptime returns whole seconds since pid started.
func (s *Source) ProcessUptime(pid int) (int64, error) {
	stat, err := s.ReadProcessStat(pid)
	if err != nil {
		return 0, err
	}
	uptime, err := s.uptime()
	if err != nil {
		return 0, err
	}
	elapsed := processElapsed(stat, uptime, s.clockTicks)
	if elapsed < 0 {
		return 0, fmt.Errorf("process %d uptime: %w: starts after current uptime", pid, ErrMalformed)
	}
	return int64(elapsed), nil
}

// ProcessCPUUtilization returns the fraction of one CPU used by pid over its
// whole lifetime, children included.
func (s *Source) ProcessCPUUtilization(pid int) (float64, error) {
	stat, err := s.ReadProcessStat(pid)
	if err != nil {
		return 0, err
	}
	uptime, err := s.uptime()
	if err != nil {
		return 0, err
	}
	return ProcessCPUFraction(stat, uptime, s.clockTicks)
}

func processElapsed(stat ProcessStat, uptimeSeconds float64, hz int64) float64 {
	return uptimeSeconds - float64(stat.StartTime)/float64(hz)
}
