package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// PIDSource returns the PID of every running unit, keyed by unit name.
type PIDSource func() map[string]int

// ResourceCollector reports CPU, memory and thread usage of unit processes.
// It samples on scrape, so there is no background goroutine to stop.
type ResourceCollector struct {
	pids PIDSource

	cpu     *prometheus.Desc
	rss     *prometheus.Desc
	threads *prometheus.Desc
}

func NewResourceCollector(pids PIDSource) *ResourceCollector {
	return &ResourceCollector{
		pids: pids,
		cpu: prometheus.NewDesc("pasys_unit_cpu_percent",
			"CPU usage percentage since process start.", []string{"unit"}, nil),
		rss: prometheus.NewDesc("pasys_unit_memory_rss_bytes",
			"Resident set size of the unit process.", []string{"unit"}, nil),
		threads: prometheus.NewDesc("pasys_unit_num_threads",
			"Number of threads of the unit process.", []string{"unit"}, nil),
	}
}

func (c *ResourceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpu
	ch <- c.rss
	ch <- c.threads
}

func (c *ResourceCollector) Collect(ch chan<- prometheus.Metric) {
	for unit, pid := range c.pids() {
		s, ok := Sample(pid)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, s.CPUPercent, unit)
		ch <- prometheus.MustNewConstMetric(c.rss, prometheus.GaugeValue, float64(s.RSS), unit)
		ch <- prometheus.MustNewConstMetric(c.threads, prometheus.GaugeValue, float64(s.Threads), unit)
	}
}

// Usage is one resource sample of a process.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSS        uint64  `json:"rss_bytes"`
	Threads    int32   `json:"threads"`
}

// Sample reads the current usage of pid. ok is false when the process is gone.
func Sample(pid int) (Usage, bool) {
	if pid <= 0 {
		return Usage{}, false
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, false
	}
	var u Usage
	if v, err := p.CPUPercent(); err == nil {
		u.CPUPercent = v
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		u.RSS = mi.RSS
	}
	if n, err := p.NumThreads(); err == nil {
		u.Threads = n
	}
	return u, true
}
