// Copyright 2024 The arcbuf Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memseg

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	allocatedBytesDesc = prometheus.NewDesc(
		"arcbuf_memseg_allocated_bytes_total",
		"Total bytes acquired from the manager.",
		[]string{"manager"}, nil,
	)
	allocatedObjectsDesc = prometheus.NewDesc(
		"arcbuf_memseg_allocated_objects_total",
		"Total segments acquired from the manager.",
		[]string{"manager"}, nil,
	)
	inuseBytesDesc = prometheus.NewDesc(
		"arcbuf_memseg_inuse_bytes",
		"Bytes currently held from the manager.",
		[]string{"manager"}, nil,
	)
	inuseObjectsDesc = prometheus.NewDesc(
		"arcbuf_memseg_inuse_objects",
		"Segments currently held from the manager.",
		[]string{"manager"}, nil,
	)
	peakInuseBytesDesc = prometheus.NewDesc(
		"arcbuf_memseg_peak_inuse_bytes",
		"High watermark of bytes held from the manager.",
		[]string{"manager"}, nil,
	)
)

// Metered wraps a Manager and counts traffic through it.  The counters
// are plain atomics on the allocation path; scrapes read them through
// the prometheus.Collector side.
type Metered struct {
	inner Manager

	allocatedBytes   atomic.Int64
	allocatedObjects atomic.Int64
	inuseBytes       atomic.Int64
	inuseObjects     atomic.Int64
	peak             peakTracker
}

var (
	_ Manager              = (*Metered)(nil)
	_ prometheus.Collector = (*Metered)(nil)
)

// NewMetered wraps inner.  The result is registered with a prometheus
// registry by the caller; it is not added to the manager registry
// automatically.
func NewMetered(inner Manager) *Metered {
	return &Metered{inner: inner}
}

func (m *Metered) Name() string {
	return "metered:" + m.inner.Name()
}

func (m *Metered) Native() bool {
	return m.inner.Native()
}

func (m *Metered) Allocate(size int) (Segment, error) {
	seg, err := m.inner.Allocate(size)
	if err != nil {
		return Segment{}, err
	}
	n := int64(seg.Len())
	m.allocatedBytes.Add(n)
	m.allocatedObjects.Add(1)
	m.inuseObjects.Add(1)
	m.peak.update(m.inuseBytes.Add(n))
	return seg, nil
}

func (m *Metered) Release(s Segment) {
	m.inuseBytes.Add(-int64(s.Len()))
	m.inuseObjects.Add(-1)
	m.inner.Release(s)
}

func (m *Metered) Slice(s Segment, off, length int) Segment {
	return m.inner.Slice(s, off, length)
}

func (m *Metered) Clear(s Segment) {
	m.inner.Clear(s)
}

func (m *Metered) Allocated() int64 {
	return m.inuseBytes.Load()
}

// PeakInuse reports the high watermark of held bytes and when it was
// reached.
func (m *Metered) PeakInuse() (int64, time.Time) {
	p := m.peak.ptr.Load()
	if p == nil {
		return 0, time.Time{}
	}
	return p.value, p.at
}

func (m *Metered) Describe(ch chan<- *prometheus.Desc) {
	ch <- allocatedBytesDesc
	ch <- allocatedObjectsDesc
	ch <- inuseBytesDesc
	ch <- inuseObjectsDesc
	ch <- peakInuseBytesDesc
}

func (m *Metered) Collect(ch chan<- prometheus.Metric) {
	name := m.inner.Name()
	peak, _ := m.PeakInuse()
	ch <- prometheus.MustNewConstMetric(allocatedBytesDesc, prometheus.CounterValue,
		float64(m.allocatedBytes.Load()), name)
	ch <- prometheus.MustNewConstMetric(allocatedObjectsDesc, prometheus.CounterValue,
		float64(m.allocatedObjects.Load()), name)
	ch <- prometheus.MustNewConstMetric(inuseBytesDesc, prometheus.GaugeValue,
		float64(m.inuseBytes.Load()), name)
	ch <- prometheus.MustNewConstMetric(inuseObjectsDesc, prometheus.GaugeValue,
		float64(m.inuseObjects.Load()), name)
	ch <- prometheus.MustNewConstMetric(peakInuseBytesDesc, prometheus.GaugeValue,
		float64(peak), name)
}

// peakTracker keeps a monotonic high watermark with the time it was
// set, updated lock free through pointer swaps.
type peakTracker struct {
	ptr atomic.Pointer[peakValue]
}

type peakValue struct {
	value int64
	at    time.Time
}

func (t *peakTracker) update(n int64) {
	for {
		cur := t.ptr.Load()
		if cur != nil && n <= cur.value {
			return
		}
		next := &peakValue{value: n, at: time.Now()}
		if t.ptr.CompareAndSwap(cur, next) {
			return
		}
	}
}
