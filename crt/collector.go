// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package crt

import "github.com/prometheus/client_golang/prometheus"

var _ prometheus.Collector = &Collector{}

// Collector exports heap and stream statistics of a Runtime, read at
// scrape time.
type Collector struct {
	rt *Runtime

	inUse     *prometheus.Desc
	free      *prometheus.Desc
	footprint *prometheus.Desc
	blocks    *prometheus.Desc
	grows     *prometheus.Desc
	streams   *prometheus.Desc
}

// NewCollector creates a collector for rt. namespace prefixes every
// metric name and may be empty.
func NewCollector(rt *Runtime, namespace string) *Collector {
	desc := func(subsystem, name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil)
	}
	return &Collector{
		rt:        rt,
		inUse:     desc("heap", "in_use_bytes", "Payload bytes currently allocated"),
		free:      desc("heap", "free_bytes", "Bytes held in free blocks"),
		footprint: desc("heap", "footprint_bytes", "Bytes managed by the heap"),
		blocks:    desc("heap", "blocks", "Blocks currently allocated"),
		grows:     desc("heap", "grows_total", "Successful memory growth calls"),
		streams:   desc("stdio", "open_streams", "Streams currently open"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inUse
	ch <- c.free
	ch <- c.footprint
	ch <- c.blocks
	ch <- c.grows
	ch <- c.streams
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.rt.heap.Stats()
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(st.InUse))
	ch <- prometheus.MustNewConstMetric(c.free, prometheus.GaugeValue, float64(st.Free))
	ch <- prometheus.MustNewConstMetric(c.footprint, prometheus.GaugeValue, float64(st.Footprint))
	ch <- prometheus.MustNewConstMetric(c.blocks, prometheus.GaugeValue, float64(st.Blocks))
	ch <- prometheus.MustNewConstMetric(c.grows, prometheus.CounterValue, float64(st.Grows))
	ch <- prometheus.MustNewConstMetric(c.streams, prometheus.GaugeValue, float64(c.rt.streams.OpenCount()))
}
