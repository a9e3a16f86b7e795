/*
 * Copyright (c) 2024, RICH project contributors.
 */
package stats

import (
	"sync"

	"github.com/rich-project/plexid/internal/cos"
	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/mac"
	"github.com/rich-project/plexid/internal/slab"
)

// Engine is the Statistics Engine (§4.D). It is safe for concurrent
// use: configuration/deletion come from request handlers, online
// updates come from MAC callbacks, and §5 requires both to observe a
// link's statistics chain consistently.
type Engine struct {
	sched mac.Schedule

	mu       sync.RWMutex
	pool     *slab.Pool[Entry]
	enhPool  *slab.Pool[Enhanced]
	byLink   map[uint32][]slab.Handle          // link handle -> owned entry handles, insertion order
	byLinkID map[linkIDKey]slab.Handle         // (link, client id) -> entry handle, for config dedup

	// OnUpdate notifies the Observer component that a statistics
	// value changed, for resources that push periodically rather than
	// on every sample (cellList's "stats" sub-field).
	OnUpdate func(linkHandle uint32)
}

type linkIDKey struct {
	link uint32
	id   uint32
}

func NewEngine(sched mac.Schedule, maxEntries, maxEnhanced int) *Engine {
	return &Engine{
		sched:    sched,
		pool:     slab.NewPool[Entry](maxEntries),
		enhPool:  slab.NewPool[Enhanced](maxEnhanced),
		byLink:   make(map[uint32][]slab.Handle),
		byLinkID: make(map[linkIDKey]slab.Handle),
	}
}

// ConfigureRequest is the decoded POST body for 6top/stats (§4.D).
// Nil pointer fields are "omitted" selectors that apply across all
// matching links.
type ConfigureRequest struct {
	Slotframe *uint32
	Timeslot  *uint16
	Channel   *uint16
	Target    *euiaddr.Addr
	Metric    string
	ID        *uint32
	Enable    bool
	Window    uint16
	Value     *int64
}

// Configure implements the statistics configuration POST. For every
// link matching the selector, it updates an existing entry with the
// same (and id, if given) metric, or allocates a new one. It returns
// the handles of every link touched, for the caller to re-render.
func (e *Engine) Configure(req ConfigureRequest) ([]uint32, error) {
	metric, ok := ParseMetric(req.Metric)
	if !ok {
		return nil, cos.NewErrBadRequest("metric is required and must be one of rssi,lqi,etx,pdr,asn")
	}

	links := e.sched.Find(mac.LinkFilter{
		SlotframeHandle: req.Slotframe,
		Timeslot:        req.Timeslot,
		Channel:         req.Channel,
		Target:          req.Target,
	})

	var touched []uint32
	for _, l := range links {
		if metric.IsBroadcastIllegal() && l.Broadcast {
			return nil, cos.NewErrBadRequest("metric %s is illegal on a broadcast link", metric)
		}
		if err := e.configureOne(l.LinkHandle, req.ID, metric, req.Enable, req.Window, req.Value); err != nil {
			return nil, err
		}
		touched = append(touched, l.LinkHandle)
	}
	return touched, nil
}

func (e *Engine) configureOne(linkHandle uint32, reqID *uint32, metric Metric, enable bool, window uint16, value *int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// With no id given, reuse the link's entry for this metric, or else
	// take the lowest id the link does not use yet.
	id, found := uint32(0), reqID != nil
	if found {
		id = *reqID
	}
	for _, h := range e.byLink[linkHandle] {
		if entry := e.pool.Get(h); !found && entry != nil && entry.Metric == metric {
			id, found = entry.ID, true
		}
	}
	for !found {
		if _, taken := e.byLinkID[linkIDKey{linkHandle, id}]; !taken {
			break
		}
		id++
	}

	key := linkIDKey{linkHandle, id}
	if h, ok := e.byLinkID[key]; ok {
		entry := e.pool.Get(h)
		if entry.Metric != metric {
			return cos.NewErrBadRequest("id %d on link %d already maps to metric %s", id, linkHandle, entry.Metric)
		}
		entry.Enabled = enable
		entry.Window = window
		if value != nil {
			entry.Value = *value
		}
		return nil
	}

	h, entry, err := e.pool.Alloc()
	if err != nil {
		return err
	}
	*entry = *newEntry(id, linkHandle, metric, enable, window)
	if value != nil {
		entry.Value = *value
	}
	e.byLinkID[key] = h
	e.byLink[linkHandle] = append(e.byLink[linkHandle], h)
	return nil
}

// DeleteRequest mirrors ConfigureRequest's selectors for the
// statistics DELETE (§4.D: "mirror-filtered").
type DeleteRequest struct {
	Slotframe *uint32
	Timeslot  *uint16
	Channel   *uint16
	Target    *euiaddr.Addr
	Metric    *string
	ID        *uint32
}

// Delete removes matching statistics entries, or — when a target
// address is supplied — only the matching enhanced sub-entry.
func (e *Engine) Delete(req DeleteRequest) error {
	links := e.sched.Find(mac.LinkFilter{
		SlotframeHandle: req.Slotframe,
		Timeslot:        req.Timeslot,
		Channel:         req.Channel,
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range links {
		for _, h := range append([]slab.Handle(nil), e.byLink[l.LinkHandle]...) {
			entry := e.pool.Get(h)
			if entry == nil {
				continue
			}
			if req.Metric != nil {
				m, ok := ParseMetric(*req.Metric)
				if !ok || entry.Metric != m {
					continue
				}
			}
			if req.ID != nil && entry.ID != *req.ID {
				continue
			}
			if req.Target != nil {
				e.removeEnhancedLocked(entry, *req.Target)
				continue
			}
			e.freeEntryLocked(l.LinkHandle, h, entry)
		}
	}
	return nil
}

func (e *Engine) removeEnhancedLocked(entry *Entry, peer euiaddr.Addr) {
	eh, ok := entry.enhByPeer[peer]
	if !ok {
		return
	}
	delete(entry.enhByPeer, peer)
	entry.enhOrder = removeHandle(entry.enhOrder, eh)
	e.enhPool.Free(eh)
}

func (e *Engine) freeEntryLocked(linkHandle uint32, h slab.Handle, entry *Entry) {
	for _, eh := range entry.enhOrder {
		e.enhPool.Free(eh)
	}
	delete(e.byLinkID, linkIDKey{linkHandle, entry.ID})
	e.byLink[linkHandle] = removeHandle(e.byLink[linkHandle], h)
	e.pool.Free(h)
}

// PurgeOnLink is the purge_on_link(link) hook (§4.D) the Schedule
// Manager calls on link deletion.
func (e *Engine) PurgeOnLink(linkHandle uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range append([]slab.Handle(nil), e.byLink[linkHandle]...) {
		entry := e.pool.Get(h)
		if entry == nil {
			continue
		}
		e.freeEntryLocked(linkHandle, h, entry)
	}
	delete(e.byLink, linkHandle)
}

// PurgeNeighbor cascades the removal of a peer's enhanced sub-entries
// across every link's statistics (§9 Open Question: the source
// declares plexi_purge_neighbor_statistics but leaves it empty; this
// is the cascade it invites).
func (e *Engine) PurgeNeighbor(peer euiaddr.Addr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, handles := range e.byLink {
		for _, h := range handles {
			entry := e.pool.Get(h)
			if entry == nil {
				continue
			}
			e.removeEnhancedLocked(entry, peer)
		}
	}
}

func removeHandle(hs []slab.Handle, target slab.Handle) []slab.Handle {
	for i, h := range hs {
		if h == target {
			return append(hs[:i], hs[i+1:]...)
		}
	}
	return hs
}

// AllEntries returns a snapshot of every statistics entry the engine
// tracks, across every link, for unfiltered GET and metrics
// exposition.
func (e *Engine) AllEntries() []Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Entry
	for _, handles := range e.byLink {
		for _, h := range handles {
			if entry := e.pool.Get(h); entry != nil {
				out = append(out, *entry)
			}
		}
	}
	return out
}

// EntriesOnLink returns a snapshot of every statistics entry owned by
// linkHandle, in insertion order, for REST GET.
func (e *Engine) EntriesOnLink(linkHandle uint32) []Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	handles := e.byLink[linkHandle]
	out := make([]Entry, 0, len(handles))
	for _, h := range handles {
		if entry := e.pool.Get(h); entry != nil {
			out = append(out, *entry)
		}
	}
	return out
}
