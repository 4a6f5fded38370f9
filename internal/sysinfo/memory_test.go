package sysinfo

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestMemoryUtilizationFixture(t *testing.T) {
	src := fixtureSource(t)

	ratio, err := src.MemoryUtilization()
	if err != nil {
		t.Fatalf("MemoryUtilization: %v", err)
	}
	if ratio != 0.5 {
		t.Fatalf("expected 0.5, got %f", ratio)
	}

	info, err := src.ReadMemInfo()
	if err != nil {
		t.Fatalf("ReadMemInfo: %v", err)
	}
	if info.AvailableKB != 12000000 {
		t.Fatalf("unexpected MemAvailable %d", info.AvailableKB)
	}
}

func TestMemoryUtilizationTable(t *testing.T) {
	testCases := []struct {
		total, free uint64
	}{
		{1, 0},
		{1, 1},
		{100, 25},
		{16307024, 8153512},
		{8000000, 7999999},
		{math.MaxUint32, 12345},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d-%d", tc.total, tc.free), func(t *testing.T) {
			src := mapSource(map[string]string{
				"meminfo": fmt.Sprintf("MemTotal: %d kB\nMemFree: %d kB\n", tc.total, tc.free),
			})
			ratio, err := src.MemoryUtilization()
			if err != nil {
				t.Fatalf("MemoryUtilization: %v", err)
			}
			want := float64(tc.total-tc.free) / float64(tc.total)
			if ratio != want {
				t.Fatalf("expected %f, got %f", want, ratio)
			}
			if ratio < 0 || ratio > 1 {
				t.Fatalf("ratio %f out of range", ratio)
			}
		})
	}
}

func TestMemoryUtilizationErrors(t *testing.T) {
	testCases := []struct {
		name    string
		files   map[string]string
		wantErr error
	}{
		{"ZeroTotal", map[string]string{"meminfo": "MemTotal: 0 kB\nMemFree: 0 kB\n"}, ErrDivisionUndefined},
		{"MissingTotal", map[string]string{"meminfo": "MemFree: 10 kB\n"}, ErrMalformed},
		{"MissingFree", map[string]string{"meminfo": "MemTotal: 10 kB\nMemAvailable: 5 kB\n"}, ErrMalformed},
		{"FreeExceedsTotal", map[string]string{"meminfo": "MemTotal: 10 kB\nMemFree: 11 kB\n"}, ErrMalformed},
		{"NonInteger", map[string]string{"meminfo": "MemTotal: lots kB\nMemFree: 1 kB\n"}, ErrMalformed},
		{"MissingFile", map[string]string{}, ErrUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := mapSource(tc.files)
			if _, err := src.MemoryUtilization(); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSystemUptimeSeconds(t *testing.T) {
	src := fixtureSource(t)

	uptime, err := src.SystemUptimeSeconds()
	if err != nil {
		t.Fatalf("SystemUptimeSeconds: %v", err)
	}
	if uptime != 3600 {
		t.Fatalf("expected 3600, got %d", uptime)
	}
}

func TestSystemUptimeSecondsMalformed(t *testing.T) {
	for _, content := range []string{"", "\n", "soon 12.0\n", "-5.0 1.0\n"} {
		src := mapSource(map[string]string{"uptime": content})
		if _, err := src.SystemUptimeSeconds(); !errors.Is(err, ErrMalformed) {
			t.Fatalf("content %q: expected ErrMalformed, got %v", content, err)
		}
	}
}
