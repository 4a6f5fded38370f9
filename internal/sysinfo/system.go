package sysinfo

import (
	"io/fs"
	"strconv"
	"strings"
)

const prettyNameKey = "PRETTY_NAME"

// OperatingSystemName returns PRETTY_NAME from os-release.
func (s *Source) OperatingSystemName() (string, error) {
	data, err := readFile(s.etc, osReleaseFilename)
	if err != nil {
		return "", err
	}

	var (
		name  string
		found bool
	)
	err = scanLines(osReleaseFilename, data, func(line string) bool {
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != prettyNameKey {
			return true
		}
		name = unquote(strings.TrimSpace(value))
		found = true
		return false
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", malformed(osReleaseFilename, "%s not found", prettyNameKey)
	}
	return name, nil
}

// KernelVersion returns the third token of the kernel version banner.
func (s *Source) KernelVersion() (string, error) {
	line, err := firstLine(s.proc, versionFilename)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return "", malformed(versionFilename, "expected at least 3 tokens, got %d", len(fields))
	}
	return fields[2], nil
}

// ListProcessIDs returns the numeric directory names under the proc root in
// enumeration order. An unreadable root yields an empty list and
// ErrUnavailable.
func (s *Source) ListProcessIDs() ([]int, error) {
	entries, err := fs.ReadDir(s.proc, ".")
	if err != nil {
		return []int{}, unavailable("proc root", err)
	}

	pids := make([]int, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !allDigits(entry.Name()) {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			return value[1 : len(value)-1]
		}
	}
	return strings.Trim(value, `"'`)
}
