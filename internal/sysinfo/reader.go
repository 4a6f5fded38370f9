package sysinfo

import (
	"bufio"
	"bytes"
	"io/fs"
	"strconv"
	"strings"
)

const (
	versionFilename = "version"
	statFilename    = "stat"
	meminfoFilename = "meminfo"
	uptimeFilename  = "uptime"
	cmdlineFilename = "cmdline"
	statusFilename  = "status"

	osReleaseFilename = "os-release"
	passwdFilename    = "passwd"
)

func readFile(fsys fs.FS, name string) ([]byte, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, unavailable(name, err)
	}
	return data, nil
}

func firstLine(fsys fs.FS, name string) (string, error) {
	data, err := readFile(fsys, name)
	if err != nil {
		return "", err
	}
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		data = data[:idx]
	}
	return string(data), nil
}

const maxLineLength = 1024 * 1024

// scanLines calls fn for every line of the file name until fn returns false.
// A line over maxLineLength stops the scan with ErrMalformed.
func scanLines(name string, data []byte, fn func(line string) bool) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		if !fn(scanner.Text()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return malformed(name, "%v", err)
	}
	return nil
}

// lookupKey returns the first whitespace token after "key" on the first line
// starting with it. key includes its delimiter, e.g. "MemTotal:".
func lookupKey(name string, data []byte, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := scanLines(name, data, func(line string) bool {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != key {
			return true
		}
		value = fields[1]
		found = true
		return false
	})
	return value, found, err
}

func pidPath(pid int, name string) string {
	return strconv.Itoa(pid) + "/" + name
}

func allDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
