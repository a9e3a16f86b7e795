/*
 * Copyright (c) 2024, RICH project contributors.
 */
package stats

import (
	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/mac"
)

// OnRx is the MAC's frame-reception callback (§4.D): it updates every
// RSSI/LQI/ASN entry on the link the frame was received on, and — on
// a shared link — the sender's enhanced sub-entry. Entries update
// regardless of Enabled; the flag is stored and reported as "enable"
// on GET, where disabled entries are listed as well.
func (e *Engine) OnRx(meta mac.FrameMeta) {
	links := e.sched.LinksAt(meta.SlotframeHandle, meta.Timeslot)
	if len(links) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range links {
		for _, h := range e.byLink[l.LinkHandle] {
			entry := e.pool.Get(h)
			if entry == nil {
				continue
			}
			switch entry.Metric {
			case MetricRSSI:
				e.applySample(entry, l, meta.Sender, int64(meta.RSSI))
			case MetricLQI:
				e.applySample(entry, l, meta.Sender, int64(meta.LQI))
			case MetricASN:
				entry.Value = latchMax(entry.Value, int64(meta.ASN))
			}
		}
		if e.OnUpdate != nil {
			e.OnUpdate(l.LinkHandle)
		}
	}
}

// OnTxComplete is the MAC's transmission-completion callback (§4.D).
// ETX/PDR only update when the frame was acknowledged; an unacked
// frame contributes nothing (no sample, not even a zero).
func (e *Engine) OnTxComplete(meta mac.FrameMeta, acked bool) {
	if !acked {
		return
	}
	links := e.sched.LinksAt(meta.SlotframeHandle, meta.Timeslot)
	if len(links) == 0 {
		return
	}

	attempts := int64(meta.TxAttempts) * 256
	if meta.TxAttempts == 0 {
		attempts = 256
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range links {
		for _, h := range e.byLink[l.LinkHandle] {
			entry := e.pool.Get(h)
			if entry == nil {
				continue
			}
			switch entry.Metric {
			case MetricETX:
				entry.denom = ewmaUpdate(entry.denom, attempts)
				entry.Value = entry.denom
			case MetricPDR:
				entry.denom = ewmaUpdate(entry.denom, attempts)
				entry.Value = pdrFromDenom(entry.denom)
			}
		}
		if e.OnUpdate != nil {
			e.OnUpdate(l.LinkHandle)
		}
	}
}

// applySample updates an entry's primary EWMA value and, on a shared
// link, the peer's enhanced sub-entry, which tracks the same metric
// independently per neighbour (§3).
func (e *Engine) applySample(entry *Entry, l mac.LinkRef, peer euiaddr.Addr, sample int64) {
	entry.Value = ewmaUpdate(entry.Value, sample)
	if l.Shared {
		prior := sentinel
		if eh, ok := entry.enhByPeer[peer]; ok {
			if enh := e.enhPool.Get(eh); enh != nil {
				prior = enh.Value
			}
		}
		e.setEnhanced(entry, peer, ewmaUpdate(prior, sample))
	}
}

// setEnhanced writes (allocating if necessary) the peer's enhanced
// sub-entry value, silently dropping the sample if the enhanced pool
// is exhausted (§4.D: enhanced entries are best-effort telemetry, not
// the primary aggregate).
func (e *Engine) setEnhanced(entry *Entry, peer euiaddr.Addr, value int64) {
	if eh, ok := entry.enhByPeer[peer]; ok {
		if enh := e.enhPool.Get(eh); enh != nil {
			enh.Value = value
		}
		return
	}
	eh, enh, err := e.enhPool.Alloc()
	if err != nil {
		return
	}
	enh.Peer = peer
	enh.Value = value
	entry.enhByPeer[peer] = eh
	entry.enhOrder = append(entry.enhOrder, eh)
}
