package metrics

import (
	"github.com/rcgrid/rcgrid/pool"
	"github.com/rcgrid/rcgrid/remotecontrol"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	descRemoteControls = prometheus.NewDesc(
		namespace+"_remote_controls",
		"Number of registered remote controls by environment and state.",
		[]string{"environment", "state"}, nil,
	)
	descActiveSessions = prometheus.NewDesc(
		namespace+"_active_sessions",
		"Number of sessions currently held by remote controls.",
		[]string{"environment"}, nil,
	)
)

// Source is the pool state read on every scrape.
type Source interface {
	AllRegisteredRemoteControls() []*remotecontrol.Proxy
	Sessions() []*pool.Session
}

type poolCollector struct {
	source Source
}

var _ prometheus.Collector = &poolCollector{}

func NewPoolCollector(source Source) prometheus.Collector {
	return &poolCollector{source: source}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descRemoteControls
	ch <- descActiveSessions
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	type counts struct{ available, reserved int }
	byEnvironment := make(map[string]*counts)
	for _, rc := range c.source.AllRegisteredRemoteControls() {
		cnt := byEnvironment[rc.Environment()]
		if cnt == nil {
			cnt = &counts{}
			byEnvironment[rc.Environment()] = cnt
		}
		if rc.Reserved() {
			cnt.reserved++
		} else {
			cnt.available++
		}
	}
	for environment, cnt := range byEnvironment {
		ch <- prometheus.MustNewConstMetric(descRemoteControls, prometheus.GaugeValue, float64(cnt.available), environment, "available")
		ch <- prometheus.MustNewConstMetric(descRemoteControls, prometheus.GaugeValue, float64(cnt.reserved), environment, "reserved")
	}

	sessions := make(map[string]int)
	for _, s := range c.source.Sessions() {
		sessions[s.RemoteControl.Environment()]++
	}
	for environment, n := range sessions {
		ch <- prometheus.MustNewConstMetric(descActiveSessions, prometheus.GaugeValue, float64(n), environment)
	}
}
