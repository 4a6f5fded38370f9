package sysinfo

import (
	"errors"
	"testing"
)

func TestReadCPUSampleFixture(t *testing.T) {
	src := fixtureSource(t)

	sample, err := src.ReadCPUSample()
	if err != nil {
		t.Fatalf("ReadCPUSample: %v", err)
	}

	want := CPUSample{User: 4705, Nice: 150, System: 1120, Idle: 16250, IOWait: 520, IRQ: 20, SoftIRQ: 30}
	if sample != want {
		t.Fatalf("unexpected sample %+v", sample)
	}
	if got := sample.ActiveJiffies(); got != 6025 {
		t.Fatalf("expected 6025 active jiffies, got %d", got)
	}
	if got := sample.IdleJiffies(); got != 16770 {
		t.Fatalf("expected 16770 idle jiffies, got %d", got)
	}
	if got := sample.TotalJiffies(); got != 22795 {
		t.Fatalf("expected 22795 total jiffies, got %d", got)
	}
}

func TestSourceJiffiesWrappers(t *testing.T) {
	src := fixtureSource(t)

	active, err := src.ActiveJiffies()
	if err != nil {
		t.Fatalf("ActiveJiffies: %v", err)
	}
	idle, err := src.IdleJiffies()
	if err != nil {
		t.Fatalf("IdleJiffies: %v", err)
	}
	total, err := src.TotalJiffies()
	if err != nil {
		t.Fatalf("TotalJiffies: %v", err)
	}
	if active+idle != total {
		t.Fatalf("active %d + idle %d != total %d", active, idle, total)
	}
}

func TestCPUSampleJiffiesProperty(t *testing.T) {
	samples := []CPUSample{
		{},
		{User: 1},
		{Idle: 1},
		{User: 10, Nice: 20, System: 30, Idle: 40, IOWait: 50, IRQ: 60, SoftIRQ: 70, Steal: 80, Guest: 90, GuestNice: 100},
		{User: 1 << 40, Idle: 1 << 41, IOWait: 7, Steal: 3},
		{Guest: 500, GuestNice: 25, Idle: 1},
	}

	for _, sample := range samples {
		if sample.ActiveJiffies()+sample.IdleJiffies() != sample.TotalJiffies() {
			t.Fatalf("active + idle != total for %+v", sample)
		}
		if sample.TotalJiffies() == 0 {
			if _, err := SystemCPUUtilization(sample); !errors.Is(err, ErrDivisionUndefined) {
				t.Fatalf("expected ErrDivisionUndefined for %+v, got %v", sample, err)
			}
			continue
		}
		ratio, err := SystemCPUUtilization(sample)
		if err != nil {
			t.Fatalf("SystemCPUUtilization(%+v): %v", sample, err)
		}
		if ratio < 0 || ratio > 1 {
			t.Fatalf("ratio %f out of range for %+v", ratio, sample)
		}
	}
}

func TestReadCPUSampleErrors(t *testing.T) {
	testCases := []struct {
		name    string
		files   map[string]string
		wantErr error
	}{
		{"MissingFile", map[string]string{}, ErrUnavailable},
		{"OnlyPerCoreLines", map[string]string{"stat": "cpu0 1 2 3 4 5 6 7 8 9 10\n"}, ErrMalformed},
		{"TooFewCounters", map[string]string{"stat": "cpu 1 2 3 4 5 6 7\n"}, ErrMalformed},
		{"NonInteger", map[string]string{"stat": "cpu 1 2 3 x 5 6 7 8 9 10\n"}, ErrMalformed},
		{"Negative", map[string]string{"stat": "cpu 1 2 3 -4 5 6 7 8 9 10\n"}, ErrMalformed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := mapSource(tc.files)
			if _, err := src.ReadCPUSample(); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestReadCPUSampleIgnoresExtraCounters(t *testing.T) {
	src := mapSource(map[string]string{
		"stat": "cpu0 9 9 9 9 9 9 9 9 9 9\ncpu 1 2 3 4 5 6 7 8 9 10 11 12\n",
	})

	sample, err := src.ReadCPUSample()
	if err != nil {
		t.Fatalf("ReadCPUSample: %v", err)
	}
	if sample.User != 1 || sample.GuestNice != 10 {
		t.Fatalf("unexpected sample %+v", sample)
	}
}

func TestProcessCounters(t *testing.T) {
	src := fixtureSource(t)

	total, err := src.TotalProcessCount()
	if err != nil {
		t.Fatalf("TotalProcessCount: %v", err)
	}
	if total != 2915 {
		t.Fatalf("expected 2915 processes, got %d", total)
	}

	running, err := src.RunningProcessCount()
	if err != nil {
		t.Fatalf("RunningProcessCount: %v", err)
	}
	if running != 3 {
		t.Fatalf("expected 3 running, got %d", running)
	}
}

func TestProcessCountersMissingKey(t *testing.T) {
	src := mapSource(map[string]string{
		"stat": "cpu 1 2 3 4 5 6 7 8 9 10\nprocs_running_extra 9\n",
	})

	if _, err := src.TotalProcessCount(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for processes, got %v", err)
	}
	if _, err := src.RunningProcessCount(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for procs_running, got %v", err)
	}
}

func TestClockTicksPositive(t *testing.T) {
	if hz := ClockTicks(); hz <= 0 {
		t.Fatalf("expected positive clock ticks, got %d", hz)
	}
}
