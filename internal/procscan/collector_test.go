package procscan

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/skobkin/systop-web/internal/sysinfo"
)

func TestCollectorCollectsSortedProcesses(t *testing.T) {
	fx := newProcFixture(t)
	fx.addProcess(t, 300, "worker", 1000, 500, 100)
	fx.addProcess(t, 12, "init", 0, 20, 10)
	fx.addProcess(t, 1234, "Web Content) (x", 1000, 900, 400)

	coll := newCollector(fx.source(t), 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	col, err := coll.collect()
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if col.truncated {
		t.Fatalf("did not expect truncation")
	}

	var pids []int
	for _, p := range col.processes {
		pids = append(pids, p.PID)
	}
	if diff := cmp.Diff([]int{12, 300, 1234}, pids); diff != "" {
		t.Fatalf("unexpected pid order (-want +got):\n%s", diff)
	}

	proc := col.processes[2]
	if proc.Name != "Web Content) (x" {
		t.Fatalf("unexpected name %q", proc.Name)
	}
	if proc.Command != "Web Content) (x --flag" {
		t.Fatalf("unexpected cmd %q", proc.Command)
	}
	if proc.User == nil || *proc.User != "alice" {
		t.Fatalf("unexpected user %v", proc.User)
	}
	if proc.MemoryMB == nil || *proc.MemoryMB != 400 {
		t.Fatalf("unexpected memory %v", proc.MemoryMB)
	}
}

func TestCollectorRespectsMaxPIDs(t *testing.T) {
	fx := newProcFixture(t)
	for _, pid := range []int{5, 1, 9, 3} {
		fx.addProcess(t, pid, "p"+strconv.Itoa(pid), 0, 1, 1)
	}

	coll := newCollector(fx.source(t), 2, nil)
	col, err := coll.collect()
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !col.truncated {
		t.Fatalf("expected truncation flag")
	}
	if len(col.processes) != 2 || col.processes[0].PID != 1 || col.processes[1].PID != 3 {
		t.Fatalf("expected lowest pids, got %+v", col.processes)
	}
}

func TestCollectorSkipsVanishedProcess(t *testing.T) {
	fx := newProcFixture(t)
	fx.addProcess(t, 7, "alive", 0, 1, 1)
	// A directory without a stat file behaves like a process that exited
	// between enumeration and reading.
	mustMkdir(t, filepath.Join(fx.proc, "8"))

	coll := newCollector(fx.source(t), 0, nil)
	col, err := coll.collect()
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(col.processes) != 1 || col.processes[0].PID != 7 {
		t.Fatalf("expected only pid 7, got %+v", col.processes)
	}
}

func TestCollectorMissingProcRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	source := sysinfo.New(os.DirFS(missing), os.DirFS(t.TempDir()), sysinfo.WithClockTicks(100))

	coll := newCollector(source, 0, nil)
	if _, err := coll.collect(); !errors.Is(err, sysinfo.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

type procFixture struct {
	proc string
	etc  string
}

func newProcFixture(t *testing.T) procFixture {
	t.Helper()
	fx := procFixture{proc: t.TempDir(), etc: t.TempDir()}
	writeFile(t, filepath.Join(fx.proc, "uptime"), "1000.00 1500.00\n")
	writeFile(t, filepath.Join(fx.etc, "passwd"), "root:x:0:0:root:/root:/bin/sh\nalice:x:1000:1000::/home/alice:/bin/sh\n")
	return fx
}

func (fx procFixture) source(t *testing.T) *sysinfo.Source {
	t.Helper()
	return sysinfo.New(os.DirFS(fx.proc), os.DirFS(fx.etc), sysinfo.WithClockTicks(100))
}

// addProcess writes stat, status and cmdline for pid. utime is in ticks and
// the process starts 100s after boot.
func (fx procFixture) addProcess(t *testing.T, pid int, comm string, uid int, utime uint64, vmSizeMB uint64) {
	t.Helper()
	dir := filepath.Join(fx.proc, strconv.Itoa(pid))
	mustMkdir(t, dir)
	fx.writeStat(t, pid, comm, utime)
	writeFile(t, filepath.Join(dir, "status"), fmt.Sprintf("Name:\t%s\nUid:\t%d\t%d\t%d\t%d\nVmSize:\t%d kB\n", comm, uid, uid, uid, uid, vmSizeMB*1000))
	writeFile(t, filepath.Join(dir, "cmdline"), comm+"\x00--flag\x00")
}

func (fx procFixture) writeStat(t *testing.T, pid int, comm string, utime uint64) {
	t.Helper()
	line := fmt.Sprintf("%d (%s) S 1 %d %d 0 -1 4194560 100 0 0 0 %d 0 0 0 20 0 1 0 10000 1000 10 18446744073709551615 1 1 0 0 0 0 0 0 0 0 0 0 17 0 0 0 0 0 0\n",
		pid, comm, pid, pid, utime)
	writeFile(t, filepath.Join(fx.proc, strconv.Itoa(pid), "stat"), line)
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
