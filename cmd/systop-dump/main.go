package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/skobkin/systop-web/internal/sysinfo"
	"github.com/skobkin/systop-web/internal/version"
)

type options struct {
	procRoot   string
	etcRoot    string
	pid        int
	listProcs  bool
	jsonOutput bool
	verbose    bool
	version    bool
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.procRoot, "proc", envOrDefault("APP_PROC_ROOT", sysinfo.DefaultProcRoot), "Path to procfs root")
	flag.StringVar(&opts.etcRoot, "etc", envOrDefault("APP_ETC_ROOT", sysinfo.DefaultEtcRoot), "Path to directory holding os-release and passwd")
	flag.IntVar(&opts.pid, "pid", 0, "Dump a single process instead of the host")
	flag.BoolVar(&opts.listProcs, "procs", false, "Include every process in the dump")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Emit JSON instead of text")
	flag.BoolVar(&opts.verbose, "v", false, "Log partial read failures")
	flag.BoolVar(&opts.version, "version", false, "Print build metadata and exit")
	flag.Parse()
	return opts
}

type dump struct {
	System    *sysinfo.SystemSnapshot   `json:"system,omitempty"`
	Processes []sysinfo.ProcessSnapshot `json:"processes,omitempty"`
}

func main() {
	opts := parseFlags()
	if opts.version {
		version.Set(version.Info{})
		fmt.Println(version.Current().String())
		return
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(opts, logger, os.Stdout); err != nil {
		logger.Error("dump failed", "err", err)
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger, w io.Writer) (err error) {
	source, err := sysinfo.Open(opts.procRoot, opts.etcRoot, sysinfo.WithLogger(logger.With("component", "sysinfo")))
	if err != nil {
		return fmt.Errorf("open host roots: %w", err)
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close host roots: %w", closeErr))
		}
	}()

	out, err := collect(source, opts)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return nil
	}

	if out.System != nil {
		printSystem(w, *out.System)
	}
	if len(out.Processes) > 0 {
		printProcesses(w, out.Processes)
	}
	return nil
}

func collect(source *sysinfo.Source, opts options) (dump, error) {
	var out dump
	if opts.pid > 0 {
		snap, err := source.Process(opts.pid)
		if err != nil {
			return dump{}, fmt.Errorf("read process %d: %w", opts.pid, err)
		}
		out.Processes = []sysinfo.ProcessSnapshot{snap}
		return out, nil
	}

	system := source.System()
	out.System = &system
	if opts.listProcs {
		pids := slices.Clone(system.PIDs)
		slices.Sort(pids)
		out.Processes = source.Processes(pids)
	}
	return out, nil
}

func printSystem(w io.Writer, snap sysinfo.SystemSnapshot) {
	fmt.Fprintf(w, "os:       %s\n", strOrNA(snap.OSName))
	fmt.Fprintf(w, "kernel:   %s\n", strOrNA(snap.Kernel))
	fmt.Fprintf(w, "uptime:   %ss\n", intOrNA(snap.UptimeSeconds))
	fmt.Fprintf(w, "memory:   %s\n", pctOrNA(snap.MemoryUtilization))
	fmt.Fprintf(w, "cpu:      %s (since boot)\n", pctOrNA(snap.CPUUtilization))
	fmt.Fprintf(w, "forks:    %s\n", uintOrNA(snap.TotalProcesses))
	fmt.Fprintf(w, "running:  %s\n", uintOrNA(snap.RunningProcesses))
	fmt.Fprintf(w, "pids:     %d\n", len(snap.PIDs))
}

func printProcesses(w io.Writer, procs []sysinfo.ProcessSnapshot) {
	fmt.Fprintf(w, "\n%7s %-12s %8s %8s %9s  %s\n", "PID", "USER", "MEM(MB)", "CPU", "UPTIME", "COMMAND")
	for _, p := range procs {
		cmd := p.Command
		if cmd == "" {
			cmd = "[" + p.Name + "]"
		}
		fmt.Fprintf(w, "%7d %-12s %8s %8s %9s  %s\n",
			p.PID, strOrNA(p.User), uintOrNA(p.MemoryMB), pctOrNA(p.CPUUtilization), intOrNA(p.UptimeSeconds), cmd)
	}
}

func strOrNA(v *string) string {
	if v == nil || *v == "" {
		return "n/a"
	}
	return *v
}

func intOrNA(v *int64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatInt(*v, 10)
}

func uintOrNA(v *uint64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatUint(*v, 10)
}

func pctOrNA(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

func envOrDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
