package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modes1090/internal/modes"
)

const namespace = "modes"

// Source supplies the values exported on each scrape. Nil funcs are skipped.
type Source struct {
	Stats    func() modes.StatsSnapshot
	Aircraft func() int
	Handoff  func() (published, dropped uint64)
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(modes.StatsSnapshot) uint64
}

// Collector exports decoder counters and tracker size to Prometheus.
type Collector struct {
	source Source

	counters  []counterDesc
	aircraft  *prometheus.Desc
	published *prometheus.Desc
	dropped   *prometheus.Desc

	evicted prometheus.Counter
}

func counter(name, help string, value func(modes.StatsSnapshot) uint64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		value: value,
	}
}

// NewCollector creates a collector reading from source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		counters: []counterDesc{
			counter("valid_preambles_total", "Preambles that passed the shape and level checks.",
				func(s modes.StatsSnapshot) uint64 { return s.ValidPreamble }),
			counter("demodulated_total", "Frames sliced with no low-confidence bits.",
				func(s modes.StatsSnapshot) uint64 { return s.Demodulated }),
			counter("good_crc_total", "Frames whose parity matched without correction.",
				func(s modes.StatsSnapshot) uint64 { return s.GoodCRC }),
			counter("bad_crc_total", "Frames whose parity did not match as received.",
				func(s modes.StatsSnapshot) uint64 { return s.BadCRC }),
			counter("fixed_total", "Frames repaired by bit-error correction.",
				func(s modes.StatsSnapshot) uint64 { return s.Fixed }),
			counter("single_bit_fixes_total", "Frames repaired by flipping one bit.",
				func(s modes.StatsSnapshot) uint64 { return s.SingleBitFix }),
			counter("two_bit_fixes_total", "Frames repaired by flipping two bits.",
				func(s modes.StatsSnapshot) uint64 { return s.TwoBitsFix }),
			counter("out_of_phase_total", "Frames recovered by the phase-correction retry.",
				func(s modes.StatsSnapshot) uint64 { return s.OutOfPhase }),
			counter("noise_rejected_total", "Candidates discarded as too weak to be a frame.",
				func(s modes.StatsSnapshot) uint64 { return s.NoiseRejected }),
			counter("icao_cache_misses_total", "Address-parity frames with no recently seen address.",
				func(s modes.StatsSnapshot) uint64 { return s.CacheMiss }),
			counter("remote_frames_total", "Frames received already demodulated over the network.",
				func(s modes.StatsSnapshot) uint64 { return s.RemoteFrames }),
			counter("accepted_total", "Messages passed on to outputs and the tracker.",
				func(s modes.StatsSnapshot) uint64 { return s.Accepted }),
		},
		aircraft: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "aircraft"),
			"Aircraft currently tracked.", nil, nil),
		published: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "sample_batches_total"),
			"Sample batches handed from the producer to the decoder.", nil, nil),
		dropped: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "sample_batches_dropped_total"),
			"Sample batches overwritten before the decoder took them.", nil, nil),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aircraft_expired_total",
			Help:      "Aircraft removed after their TTL passed.",
		}),
	}
}

// AircraftExpired counts one aircraft leaving the tracker.
func (c *Collector) AircraftExpired() {
	c.evicted.Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.aircraft
	ch <- c.published
	ch <- c.dropped
	c.evicted.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source.Stats != nil {
		snap := c.source.Stats()
		for _, cd := range c.counters {
			ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(snap)))
		}
	}
	if c.source.Aircraft != nil {
		ch <- prometheus.MustNewConstMetric(c.aircraft, prometheus.GaugeValue, float64(c.source.Aircraft()))
	}
	if c.source.Handoff != nil {
		published, dropped := c.source.Handoff()
		ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(published))
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(dropped))
	}
	c.evicted.Collect(ch)
}

// NewRegistry returns a registry holding c plus the Go runtime and process
// collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
