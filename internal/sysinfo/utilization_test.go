package sysinfo

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestSystemCPUUtilizationFixture(t *testing.T) {
	src := fixtureSource(t)

	sample, err := src.ReadCPUSample()
	if err != nil {
		t.Fatalf("ReadCPUSample: %v", err)
	}
	ratio, err := SystemCPUUtilization(sample)
	if err != nil {
		t.Fatalf("SystemCPUUtilization: %v", err)
	}
	if want := 6025.0 / 22795.0; ratio != want {
		t.Fatalf("expected %f, got %f", want, ratio)
	}
}

func TestCPUUtilizationBetween(t *testing.T) {
	prev := CPUSample{User: 100, System: 50, Idle: 800, IOWait: 50}
	cur := CPUSample{User: 160, System: 90, Idle: 880, IOWait: 70}

	ratio, err := CPUUtilizationBetween(prev, cur)
	if err != nil {
		t.Fatalf("CPUUtilizationBetween: %v", err)
	}
	// active +100, idle +100
	if ratio != 0.5 {
		t.Fatalf("expected 0.5, got %f", ratio)
	}
}

func TestCPUUtilizationBetweenRange(t *testing.T) {
	prev := CPUSample{User: 10, Idle: 10}
	steps := []CPUSample{
		{User: 10, Idle: 20},
		{User: 30, Idle: 20},
		{User: 45, Nice: 5, Idle: 25, Steal: 1},
		{User: 1000, Idle: 1000, IOWait: 300},
	}

	for _, cur := range steps {
		ratio, err := CPUUtilizationBetween(prev, cur)
		if err != nil {
			t.Fatalf("CPUUtilizationBetween(%+v, %+v): %v", prev, cur, err)
		}
		if ratio < 0 || ratio > 1 {
			t.Fatalf("ratio %f out of range", ratio)
		}
		prev = cur
	}
}

func TestCPUUtilizationBetweenErrors(t *testing.T) {
	sample := CPUSample{User: 10, Idle: 10}

	if _, err := CPUUtilizationBetween(sample, sample); !errors.Is(err, ErrDivisionUndefined) {
		t.Fatalf("expected ErrDivisionUndefined, got %v", err)
	}
	if _, err := CPUUtilizationBetween(sample, CPUSample{User: 5, Idle: 30}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestProcessCPUFraction(t *testing.T) {
	stat := ProcessStat{PID: 7, UTime: 300, STime: 100, CUTime: 50, CSTime: 50, StartTime: 1000}

	fraction, err := ProcessCPUFraction(stat, 20, 100)
	if err != nil {
		t.Fatalf("ProcessCPUFraction: %v", err)
	}
	// 5s of CPU over 10s of life
	if fraction != 0.5 {
		t.Fatalf("expected 0.5, got %f", fraction)
	}

	if _, err := ProcessCPUFraction(stat, 10, 100); !errors.Is(err, ErrDivisionUndefined) {
		t.Fatalf("expected ErrDivisionUndefined for zero elapsed, got %v", err)
	}
	if _, err := ProcessCPUFraction(stat, 5, 100); !errors.Is(err, ErrDivisionUndefined) {
		t.Fatalf("expected ErrDivisionUndefined for negative elapsed, got %v", err)
	}
	if _, err := ProcessCPUFraction(stat, 20, 0); !errors.Is(err, ErrDivisionUndefined) {
		t.Fatalf("expected ErrDivisionUndefined for zero hz, got %v", err)
	}
}

func TestProcessCPUBetween(t *testing.T) {
	prev := ProcessStat{PID: 7, UTime: 100, STime: 100, StartTime: 500}
	cur := ProcessStat{PID: 7, UTime: 150, STime: 150, StartTime: 500}

	fraction, err := ProcessCPUBetween(prev, cur, 2*time.Second, 100)
	if err != nil {
		t.Fatalf("ProcessCPUBetween: %v", err)
	}
	if math.Abs(fraction-0.5) > 1e-12 {
		t.Fatalf("expected 0.5, got %f", fraction)
	}
}

func TestProcessCPUBetweenErrors(t *testing.T) {
	prev := ProcessStat{PID: 7, UTime: 100, StartTime: 500}

	testCases := []struct {
		name    string
		cur     ProcessStat
		elapsed time.Duration
		wantErr error
	}{
		{"PIDReused", ProcessStat{PID: 7, UTime: 1, StartTime: 900}, time.Second, ErrMalformed},
		{"DifferentPID", ProcessStat{PID: 8, UTime: 100, StartTime: 500}, time.Second, ErrMalformed},
		{"ZeroInterval", ProcessStat{PID: 7, UTime: 120, StartTime: 500}, 0, ErrDivisionUndefined},
		{"Backwards", ProcessStat{PID: 7, UTime: 90, StartTime: 500}, time.Second, ErrMalformed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ProcessCPUBetween(prev, tc.cur, tc.elapsed, 100); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestProcessorUtilization(t *testing.T) {
	processor := NewProcessor(fixtureSource(t))

	ratio, err := processor.Utilization()
	if err != nil {
		t.Fatalf("Utilization: %v", err)
	}
	if ratio < 0 || ratio > 1 {
		t.Fatalf("ratio %f out of range", ratio)
	}
}

func TestProcessorUtilizationSince(t *testing.T) {
	processor := NewProcessor(fixtureSource(t))

	prev := CPUSample{User: 4605, Nice: 150, System: 1120, Idle: 16150, IOWait: 520, IRQ: 20, SoftIRQ: 30}
	ratio, sample, err := processor.UtilizationSince(prev)
	if err != nil {
		t.Fatalf("UtilizationSince: %v", err)
	}
	// +100 user, +100 idle
	if ratio != 0.5 {
		t.Fatalf("expected 0.5, got %f", ratio)
	}
	if sample.User != 4705 {
		t.Fatalf("expected fresh sample, got %+v", sample)
	}

	if _, again, err := processor.UtilizationSince(sample); !errors.Is(err, ErrDivisionUndefined) {
		t.Fatalf("expected ErrDivisionUndefined on unchanged counters, got %v", err)
	} else if again != sample {
		t.Fatalf("expected sample to be returned on error")
	}
}

func TestProcessorUtilizationUnavailable(t *testing.T) {
	processor := NewProcessor(mapSource(map[string]string{}))

	if _, err := processor.Utilization(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
