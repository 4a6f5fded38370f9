package sampler

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skobkin/systop-web/internal/sysinfo"
)

func TestReaderFirstSampleSinceBoot(t *testing.T) {
	t.Parallel()

	procRoot := createProcTree(t)
	writeCPUStat(t, procRoot, 300, 700)
	reader := newTestReader(t, procRoot)

	sample := reader.Sample()
	if sample.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
	if sample.CPUMode != CPUModeSinceBoot {
		t.Fatalf("expected since_boot mode, got %q", sample.CPUMode)
	}
	assertFloatEqual(t, sample.CPUUtilization, 0.3)
	assertFloatEqual(t, sample.System.MemoryUtilization, 0.25)
	if sample.System.Kernel == nil || *sample.System.Kernel != "6.1.0-test" {
		t.Fatalf("unexpected kernel %v", sample.System.Kernel)
	}
}

func TestReaderIntervalUtilization(t *testing.T) {
	t.Parallel()

	procRoot := createProcTree(t)
	writeCPUStat(t, procRoot, 300, 700)
	reader := newTestReader(t, procRoot)
	_ = reader.Sample()

	writeCPUStat(t, procRoot, 400, 800)
	sample := reader.Sample()
	if sample.CPUMode != CPUModeInterval {
		t.Fatalf("expected interval mode, got %q", sample.CPUMode)
	}
	assertFloatEqual(t, sample.CPUUtilization, 0.5)

	// Unchanged counters: the interval is undefined and the baseline is kept.
	sample = reader.Sample()
	if sample.CPUMode != CPUModeSinceBoot {
		t.Fatalf("expected since_boot fallback, got %q", sample.CPUMode)
	}

	writeCPUStat(t, procRoot, 500, 1100)
	sample = reader.Sample()
	if sample.CPUMode != CPUModeInterval {
		t.Fatalf("expected interval mode, got %q", sample.CPUMode)
	}
	assertFloatEqual(t, sample.CPUUtilization, 0.25)
}

func TestReaderCounterReset(t *testing.T) {
	t.Parallel()

	procRoot := createProcTree(t)
	writeCPUStat(t, procRoot, 300, 700)
	reader := newTestReader(t, procRoot)
	_ = reader.Sample()

	writeCPUStat(t, procRoot, 10, 90)
	sample := reader.Sample()
	if sample.CPUMode != CPUModeSinceBoot {
		t.Fatalf("expected since_boot after reset, got %q", sample.CPUMode)
	}
	assertFloatEqual(t, sample.CPUUtilization, 0.1)

	writeCPUStat(t, procRoot, 20, 180)
	sample = reader.Sample()
	if sample.CPUMode != CPUModeInterval {
		t.Fatalf("expected interval mode, got %q", sample.CPUMode)
	}
	assertFloatEqual(t, sample.CPUUtilization, 0.1)

	reader.Reset()
	sample = reader.Sample()
	if sample.CPUMode != CPUModeSinceBoot {
		t.Fatalf("expected since_boot after Reset, got %q", sample.CPUMode)
	}
}

func TestReaderMissingStat(t *testing.T) {
	t.Parallel()

	procRoot := createProcTree(t)
	reader := newTestReader(t, procRoot)

	sample := reader.Sample()
	if sample.System.CPU != nil || sample.CPUUtilization != nil || sample.CPUMode != "" {
		t.Fatalf("expected cpu fields to be empty: %+v", sample)
	}
	if sample.System.MemoryUtilization == nil {
		t.Fatalf("expected memory utilization despite missing stat")
	}
}

func TestNewReaderRequiresSource(t *testing.T) {
	t.Parallel()

	if _, err := NewReader(nil, nil); err == nil {
		t.Fatalf("expected error for nil source")
	}
}

func newTestReader(t *testing.T, procRoot string) *Reader {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	source := sysinfo.New(os.DirFS(procRoot), os.DirFS(t.TempDir()), sysinfo.WithClockTicks(100))
	reader, err := NewReader(source, logger)
	if err != nil {
		t.Fatalf("NewReader returned error: %v", err)
	}
	return reader
}

func createProcTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "meminfo"), "MemTotal: 1000 kB\nMemFree: 750 kB\n")
	writeFile(t, filepath.Join(root, "uptime"), "120.00 200.00\n")
	writeFile(t, filepath.Join(root, "version"), "Linux version 6.1.0-test (builder@host) #1 SMP\n")
	return root
}

// writeCPUStat writes an aggregate cpu line with the given user and idle ticks.
func writeCPUStat(t *testing.T, root string, user, idle uint64) {
	t.Helper()
	content := fmt.Sprintf("cpu  %d 0 0 %d 0 0 0 0 0 0\nprocesses 100\nprocs_running 1\n", user, idle)
	writeFile(t, filepath.Join(root, "stat"), content)
}

// writeFile replaces path atomically so concurrent readers never observe a
// partial write.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create directories for %s: %v", path, err)
	}
	tmp := fmt.Sprintf("%s.%d.tmp", path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("failed to rename %s: %v", tmp, err)
	}
}

func assertFloatEqual(t *testing.T, value *float64, expected float64) {
	t.Helper()
	if value == nil {
		t.Fatalf("expected float value %.4f, got nil", expected)
	}
	if diff := *value - expected; diff < -0.0001 || diff > 0.0001 {
		t.Fatalf("expected %.4f, got %.4f", expected, *value)
	}
}
