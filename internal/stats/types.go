// Package stats implements the Statistics Engine (§4.D): per-link,
// per-metric EWMA aggregators with per-peer "enhanced" sub-entries on
// shared links, drawn from fixed-capacity pools.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package stats

import (
	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/slab"
)

// Metric is one of the five metric kinds a statistics entry tracks
// (§3/GLOSSARY).
type Metric uint8

const (
	MetricRSSI Metric = iota
	MetricLQI
	MetricETX
	MetricPDR
	MetricASN
)

func (m Metric) String() string {
	switch m {
	case MetricRSSI:
		return "rssi"
	case MetricLQI:
		return "lqi"
	case MetricETX:
		return "etx"
	case MetricPDR:
		return "pdr"
	case MetricASN:
		return "asn"
	default:
		return "unknown"
	}
}

func ParseMetric(s string) (Metric, bool) {
	switch s {
	case "rssi":
		return MetricRSSI, true
	case "lqi":
		return MetricLQI, true
	case "etx":
		return MetricETX, true
	case "pdr":
		return MetricPDR, true
	case "asn":
		return MetricASN, true
	default:
		return 0, false
	}
}

// IsBroadcastIllegal reports whether the metric may never be
// configured on a broadcast cell (§3: "Statistics entries for
// ETX/PDR are illegal on a broadcast cell").
func (m Metric) IsBroadcastIllegal() bool { return m == MetricETX || m == MetricPDR }

// sentinel is the "no sample yet" value for every metric kind: an
// all-ones bit pattern, interpreted as -1 regardless of the metric's
// native width/signedness (§4.D).
const sentinel int64 = -1

// Enhanced is a per-peer sub-entry of a statistics Entry, present
// only when the owning link has the shared-access option and a
// distinct peer has been observed (§3). Drawn from the Engine's fixed
// enhanced-entry pool.
type Enhanced struct {
	Peer  euiaddr.Addr
	Value int64
}

// Entry is one statistics entry, owned by exactly one link, drawn
// from the Engine's fixed entry pool.
type Entry struct {
	ID         uint32
	LinkHandle uint32
	Metric     Metric
	Enabled    bool
	Window     uint16
	Value      int64

	// denom is ETX/PDR's shared EWMA(attempts*256) state (§4.D: "the
	// stored value is ... written each update to avoid storing two
	// fields" — PDR entries keep this hidden accumulator and expose
	// only the derived Value).
	denom int64

	enhOrder []slab.Handle
	enhByPeer map[euiaddr.Addr]slab.Handle
}

func newEntry(id, linkHandle uint32, metric Metric, enable bool, window uint16) *Entry {
	return &Entry{
		ID: id, LinkHandle: linkHandle, Metric: metric, Enabled: enable, Window: window,
		Value: sentinel, denom: sentinel,
		enhByPeer: make(map[euiaddr.Addr]slab.Handle),
	}
}
