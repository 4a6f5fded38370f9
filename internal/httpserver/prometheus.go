package httpserver

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skobkin/systop-web/internal/procscan"
	"github.com/skobkin/systop-web/internal/sampler"
	"github.com/skobkin/systop-web/internal/sysinfo"
)

const metricsNamespace = "systop"

func (s *Server) registerPrometheus(mux *http.ServeMux) {
	registry := prometheus.NewRegistry()
	metricCollectors := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: metricsNamespace}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Current number of active WebSocket clients.",
		}, func() float64 {
			return float64(s.wsActive.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "connections_total",
			Help:      "Total WebSocket connections accepted since start.",
		}, func() float64 {
			return float64(s.wsTotal.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "rejected_total",
			Help:      "Total WebSocket connection attempts rejected due to capacity.",
		}, func() float64 {
			return float64(s.wsRejected.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "messages_sent_total",
			Help:      "Total WebSocket messages sent to clients.",
		}, func() float64 {
			return float64(s.wsSent.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "messages_dropped_total",
			Help:      "Total WebSocket messages dropped due to backpressure.",
		}, func() float64 {
			return float64(s.wsDropped.Load())
		}),
	}

	if collector := newSystemMetricsCollector(s.sampler); collector != nil {
		metricCollectors = append(metricCollectors, collector)
	}
	if collector := newProcessMetricsCollector(s.proc); collector != nil {
		metricCollectors = append(metricCollectors, collector)
	}

	for _, collector := range metricCollectors {
		registry.MustRegister(collector)
	}

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

// systemMetricsCollector exports the latest cached sample. It never reads
// procfs itself, so a scrape costs no more than a lock.
type systemMetricsCollector struct {
	sampler *sampler.Manager
	hz      float64
	metrics []systemMetric

	cpuSeconds *prometheus.Desc
	cpuRatio   *prometheus.Desc
	hostInfo   *prometheus.Desc
}

type systemMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	extract   func(sample sampler.Sample) (float64, bool)
}

func newSystemMetricsCollector(samplerManager *sampler.Manager) prometheus.Collector {
	if samplerManager == nil {
		return nil
	}

	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "system", name),
			help,
			labels,
			nil,
		)
	}

	collector := &systemMetricsCollector{
		sampler:    samplerManager,
		hz:         float64(samplerManager.ClockTicks()),
		cpuSeconds: desc("cpu_seconds_total", "Aggregate CPU time since boot by mode.", "mode"),
		cpuRatio:   desc("cpu_utilization_ratio", "Busy CPU fraction; window reports whether it covers the last interval or time since boot.", "window"),
		hostInfo:   desc("info", "Host identity; always 1.", "os_name", "kernel"),
	}

	collector.metrics = []systemMetric{
		{
			desc:      desc("memory_utilization_ratio", "Fraction of physical memory not reported free."),
			valueType: prometheus.GaugeValue,
			extract: func(sample sampler.Sample) (float64, bool) {
				return derefFloat(sample.System.MemoryUtilization)
			},
		},
		{
			desc:      desc("cpu_utilization_since_boot_ratio", "Busy CPU fraction averaged since boot."),
			valueType: prometheus.GaugeValue,
			extract: func(sample sampler.Sample) (float64, bool) {
				return derefFloat(sample.System.CPUUtilization)
			},
		},
		{
			desc:      desc("uptime_seconds", "Seconds since boot, truncated."),
			valueType: prometheus.GaugeValue,
			extract: func(sample sampler.Sample) (float64, bool) {
				if sample.System.UptimeSeconds == nil {
					return 0, false
				}
				return float64(*sample.System.UptimeSeconds), true
			},
		},
		{
			desc:      desc("forks_total", "Processes created since boot."),
			valueType: prometheus.CounterValue,
			extract: func(sample sampler.Sample) (float64, bool) {
				return derefUint(sample.System.TotalProcesses)
			},
		},
		{
			desc:      desc("procs_running", "Processes currently in the runnable state."),
			valueType: prometheus.GaugeValue,
			extract: func(sample sampler.Sample) (float64, bool) {
				return derefUint(sample.System.RunningProcesses)
			},
		},
		{
			desc:      desc("pids", "Number of numeric entries under the proc root."),
			valueType: prometheus.GaugeValue,
			extract: func(sample sampler.Sample) (float64, bool) {
				return float64(len(sample.System.PIDs)), true
			},
		},
		{
			desc:      desc("sample_timestamp_seconds", "Unix timestamp of the latest host sample."),
			valueType: prometheus.GaugeValue,
			extract: func(sample sampler.Sample) (float64, bool) {
				if sample.Timestamp.IsZero() {
					return 0, false
				}
				return float64(sample.Timestamp.Unix()), true
			},
		},
		{
			desc:      desc("sample_age_seconds", "Seconds elapsed since the latest host sample was collected."),
			valueType: prometheus.GaugeValue,
			extract: func(sample sampler.Sample) (float64, bool) {
				if sample.Timestamp.IsZero() {
					return 0, false
				}
				return max(time.Since(sample.Timestamp).Seconds(), 0), true
			},
		},
	}

	return collector
}

func (c *systemMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range c.metrics {
		ch <- metric.desc
	}
	ch <- c.cpuSeconds
	ch <- c.cpuRatio
	ch <- c.hostInfo
}

func (c *systemMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	sample, ok := c.sampler.Latest()
	if !ok {
		return
	}

	for _, metric := range c.metrics {
		value, ok := metric.extract(sample)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(metric.desc, metric.valueType, value)
	}

	if sample.CPUUtilization != nil && sample.CPUMode != "" {
		ch <- prometheus.MustNewConstMetric(c.cpuRatio, prometheus.GaugeValue, *sample.CPUUtilization, sample.CPUMode)
	}

	if cpu := sample.System.CPU; cpu != nil && c.hz > 0 {
		for _, mode := range cpuModes(*cpu) {
			ch <- prometheus.MustNewConstMetric(c.cpuSeconds, prometheus.CounterValue, float64(mode.jiffies)/c.hz, mode.name)
		}
	}

	if sample.System.OSName != nil || sample.System.Kernel != nil {
		ch <- prometheus.MustNewConstMetric(c.hostInfo, prometheus.GaugeValue, 1,
			derefString(sample.System.OSName), derefString(sample.System.Kernel))
	}
}

type cpuMode struct {
	name    string
	jiffies uint64
}

func cpuModes(cpu sysinfo.CPUSample) []cpuMode {
	return []cpuMode{
		{"user", cpu.User},
		{"nice", cpu.Nice},
		{"system", cpu.System},
		{"idle", cpu.Idle},
		{"iowait", cpu.IOWait},
		{"irq", cpu.IRQ},
		{"softirq", cpu.SoftIRQ},
		{"steal", cpu.Steal},
	}
}

// processMetricsCollector reports on the latest process-table scan.
type processMetricsCollector struct {
	proc      *procscan.Manager
	count     *prometheus.Desc
	truncated *prometheus.Desc
	scanAge   *prometheus.Desc
}

func newProcessMetricsCollector(procManager *procscan.Manager) prometheus.Collector {
	if procManager == nil || !procManager.Enabled() {
		return nil
	}
	return &processMetricsCollector{
		proc: procManager,
		count: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "procs", "scanned"),
			"Processes included in the latest scan.", nil, nil),
		truncated: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "procs", "truncated"),
			"1 when the latest scan hit the pid limit.", nil, nil),
		scanAge: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "procs", "scan_age_seconds"),
			"Seconds elapsed since the latest process scan.", nil, nil),
	}
}

func (c *processMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.count
	ch <- c.truncated
	ch <- c.scanAge
}

func (c *processMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot, ok := c.proc.Latest()
	if !ok {
		return
	}
	truncated := 0.0
	if snapshot.Capabilities.Truncated {
		truncated = 1
	}
	ch <- prometheus.MustNewConstMetric(c.count, prometheus.GaugeValue, float64(len(snapshot.Processes)))
	ch <- prometheus.MustNewConstMetric(c.truncated, prometheus.GaugeValue, truncated)
	ch <- prometheus.MustNewConstMetric(c.scanAge, prometheus.GaugeValue, max(time.Since(snapshot.Timestamp).Seconds(), 0))
}

func derefFloat(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func derefUint(v *uint64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return float64(*v), true
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
