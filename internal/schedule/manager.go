/*
 * Copyright (c) 2024, RICH project contributors.
 */
package schedule

import (
	"encoding/binary"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/rich-project/plexid/internal/cos"
	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/mac"
	"github.com/rich-project/plexid/internal/slab"
)

// sfEntry pairs a Slotframe value with the per-slotframe write lock
// §5 requires: "a per-slotframe write lock with the MAC reading under
// the same discipline" so a slot-boundary read never observes a torn
// intermediate schedule.
type sfEntry struct {
	sf   Slotframe
	lock sync.RWMutex
}

// Manager owns the Slotframe and Link pools and enforces §3's
// invariants. It is the single mutator of schedule state; the MAC
// reads through LinksAt under the Manager's own read lock (mu).
type Manager struct {
	mu sync.RWMutex // guards the top-level indices (sfPool/sfByHandle/sfOrder/linkPool/linkByHandle)

	sfPool     *slab.Pool[sfEntry]
	sfByHandle map[uint32]slab.Handle
	sfOrder    []slab.Handle

	linkPool     *slab.Pool[Link]
	linkByHandle map[uint32]slab.Handle
	nextLinkID   uint32

	// slotIndex accelerates LinksAt, the MAC's every-slot-boundary
	// lookup (§3/§4.D "hot-path"), keyed by an xxhash of (slotframe,
	// timeslot) rather than scanning every link in the slotframe.
	slotIndex map[uint64][]slab.Handle

	// OnLinkRemoved is the Statistics Engine's purge_on_link hook
	// (§4.D): called after a link is fully unlinked and freed.
	OnLinkRemoved func(link *Link)
}

func NewManager(maxSlotframes, maxLinks int) *Manager {
	return &Manager{
		sfPool:       slab.NewPool[sfEntry](maxSlotframes),
		sfByHandle:   make(map[uint32]slab.Handle),
		linkPool:     slab.NewPool[Link](maxLinks),
		linkByHandle: make(map[uint32]slab.Handle),
		slotIndex:    make(map[uint64][]slab.Handle),
	}
}

// slotSeed is an arbitrary fixed seed, mirroring cos.MLCG32's role as
// the teacher's fixed hash seed for rendezvous/index hashing.
const slotSeed = 0x2545F4914F6CDD1D

// slotKey hashes a (slotframe, timeslot) pair into the slot index.
func slotKey(sfHandle uint32, timeslot uint16) uint64 {
	var b [6]byte
	binary.BigEndian.PutUint32(b[0:4], sfHandle)
	binary.BigEndian.PutUint16(b[4:6], timeslot)
	return xxhash.Checksum64S(b[:], slotSeed)
}

// AddSlotframe implements add_slotframe(handle, size) -> ok | exists
// | nomem (§4.C).
func (m *Manager) AddSlotframe(handle, size uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sfByHandle[handle]; ok {
		return cos.NewErrExists("slotframe %d already exists", handle)
	}
	h, e, err := m.sfPool.Alloc()
	if err != nil {
		return err
	}
	e.sf = Slotframe{Handle: handle, Size: size}
	m.sfByHandle[handle] = h
	m.sfOrder = append(m.sfOrder, h)
	return nil
}

// RemoveSlotframe implements remove_slotframe(handle) -> ok |
// not_found, cascading deletion of all owned links (and, via
// OnLinkRemoved, their statistics).
func (m *Manager) RemoveSlotframe(handle uint32) (Slotframe, error) {
	m.mu.Lock()
	h, ok := m.sfByHandle[handle]
	if !ok {
		m.mu.Unlock()
		return Slotframe{}, cos.NewErrNotFound("slotframe %d does not exist", handle)
	}
	entry := m.sfPool.Get(h)
	entry.lock.Lock()
	sfCopy := entry.sf
	linkHandles := append([]slab.Handle(nil), entry.sf.linkOrder...)
	entry.lock.Unlock()

	delete(m.sfByHandle, handle)
	m.sfOrder = removeHandle(m.sfOrder, h)
	m.sfPool.Free(h)
	m.mu.Unlock()

	for _, lh := range linkHandles {
		m.cascadeFreeLink(lh)
	}
	sfCopy.linkOrder = nil
	return sfCopy, nil
}

func (m *Manager) cascadeFreeLink(lh slab.Handle) {
	m.mu.Lock()
	link := m.linkPool.Get(lh)
	if link == nil {
		m.mu.Unlock()
		return
	}
	cp := *link
	delete(m.linkByHandle, link.Handle)
	key := slotKey(cp.Slotframe, cp.Timeslot)
	m.slotIndex[key] = removeHandle(m.slotIndex[key], lh)
	if len(m.slotIndex[key]) == 0 {
		delete(m.slotIndex, key)
	}
	m.linkPool.Free(lh)
	m.mu.Unlock()

	if m.OnLinkRemoved != nil {
		m.OnLinkRemoved(&cp)
	}
}

// IterSlotframes calls fn for each slotframe in insertion order,
// stopping early if fn returns false (§4.C iter_slotframes).
func (m *Manager) IterSlotframes(fn func(Slotframe) bool) {
	m.mu.RLock()
	order := append([]slab.Handle(nil), m.sfOrder...)
	m.mu.RUnlock()
	for _, h := range order {
		m.mu.RLock()
		e := m.sfPool.Get(h)
		if e == nil {
			m.mu.RUnlock()
			continue
		}
		e.lock.RLock()
		sf := e.sf
		e.lock.RUnlock()
		m.mu.RUnlock()
		if !fn(sf) {
			return
		}
	}
}

// GetSlotframe returns the slotframe with the given handle.
func (m *Manager) GetSlotframe(handle uint32) (Slotframe, bool) {
	m.mu.RLock()
	h, ok := m.sfByHandle[handle]
	if !ok {
		m.mu.RUnlock()
		return Slotframe{}, false
	}
	e := m.sfPool.Get(h)
	m.mu.RUnlock()
	if e == nil {
		return Slotframe{}, false
	}
	e.lock.RLock()
	sf := e.sf
	e.lock.RUnlock()
	return sf, true
}

// AddLink implements add_link(sf_handle, options, type, addr,
// timeslot, channel) -> link_handle | not_found | nomem (§4.C). The
// link is published into its slotframe's order only after it is
// fully initialised, satisfying §5's MAC-callback visibility
// ordering (either fully linked-in or absent, never half-built).
func (m *Manager) AddLink(sfHandle uint32, opts LinkOption, typ LinkType, addr euiaddr.Addr, timeslot, channel uint16) (uint32, error) {
	m.mu.Lock()
	sh, ok := m.sfByHandle[sfHandle]
	if !ok {
		m.mu.Unlock()
		return 0, cos.NewErrNotFound("slotframe %d does not exist", sfHandle)
	}
	sfe := m.sfPool.Get(sh)
	m.mu.Unlock()

	link := Link{
		Slotframe: sfHandle,
		Timeslot:  timeslot,
		Channel:   channel,
		Options:   opts,
		Type:      typ,
		Target:    addr,
	}

	sfe.lock.Lock()
	if err := link.Validate(&sfe.sf); err != nil {
		sfe.lock.Unlock()
		return 0, err
	}
	sfe.lock.Unlock()

	m.mu.Lock()
	lh, lp, err := m.linkPool.Alloc()
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}
	m.nextLinkID++
	link.Handle = m.nextLinkID
	*lp = link
	m.linkByHandle[link.Handle] = lh
	key := slotKey(link.Slotframe, link.Timeslot)
	m.slotIndex[key] = append(m.slotIndex[key], lh)
	m.mu.Unlock()

	sfe.lock.Lock()
	sfe.sf.linkOrder = append(sfe.sf.linkOrder, lh)
	sfe.lock.Unlock()

	return link.Handle, nil
}

// RemoveLink implements remove_link(sf_handle, link_handle) -> ok |
// not_found (§4.C), cascading its statistics via OnLinkRemoved.
func (m *Manager) RemoveLink(sfHandle, linkHandle uint32) error {
	m.mu.Lock()
	sh, ok := m.sfByHandle[sfHandle]
	if !ok {
		m.mu.Unlock()
		return cos.NewErrNotFound("slotframe %d does not exist", sfHandle)
	}
	lh, ok := m.linkByHandle[linkHandle]
	if !ok {
		m.mu.Unlock()
		return cos.NewErrNotFound("link %d does not exist", linkHandle)
	}
	link := m.linkPool.Get(lh)
	if link == nil || link.Slotframe != sfHandle {
		m.mu.Unlock()
		return cos.NewErrNotFound("link %d does not exist on slotframe %d", linkHandle, sfHandle)
	}
	sfe := m.sfPool.Get(sh)
	m.mu.Unlock()

	sfe.lock.Lock()
	sfe.sf.linkOrder = removeHandle(sfe.sf.linkOrder, lh)
	sfe.lock.Unlock()

	m.cascadeFreeLink(lh)
	return nil
}

// GetLink returns the link with the given handle.
func (m *Manager) GetLink(linkHandle uint32) (Link, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lh, ok := m.linkByHandle[linkHandle]
	if !ok {
		return Link{}, false
	}
	l := m.linkPool.Get(lh)
	if l == nil {
		return Link{}, false
	}
	return *l, true
}

// LinkFilter expresses the GET/DELETE filtering contract of §4.C:
// any subset of {slotframe, timeslot, channel, link id, target
// address} may be supplied; a nil field is a wildcard.
type LinkFilter struct {
	SlotframeHandle *uint32
	Timeslot        *uint16
	Channel         *uint16
	LinkHandle      *uint32
	Target          *euiaddr.Addr
}

func (f LinkFilter) matches(l *Link) bool {
	if f.SlotframeHandle != nil && *f.SlotframeHandle != l.Slotframe {
		return false
	}
	if f.Timeslot != nil && *f.Timeslot != l.Timeslot {
		return false
	}
	if f.Channel != nil && *f.Channel != l.Channel {
		return false
	}
	if f.LinkHandle != nil && *f.LinkHandle != l.Handle {
		return false
	}
	if f.Target != nil && *f.Target != l.Target {
		return false
	}
	return true
}

// IterLinks walks links in insertion order (slotframe, then link
// within slotframe), applying filter, and calls fn for each match.
func (m *Manager) IterLinks(filter LinkFilter, fn func(Link) bool) {
	var sfOrder []slab.Handle
	m.mu.RLock()
	if filter.SlotframeHandle != nil {
		if h, ok := m.sfByHandle[*filter.SlotframeHandle]; ok {
			sfOrder = []slab.Handle{h}
		}
	} else {
		sfOrder = append(sfOrder, m.sfOrder...)
	}
	m.mu.RUnlock()

	for _, sh := range sfOrder {
		m.mu.RLock()
		sfe := m.sfPool.Get(sh)
		if sfe == nil {
			m.mu.RUnlock()
			continue
		}
		sfe.lock.RLock()
		links := append([]slab.Handle(nil), sfe.sf.linkOrder...)
		sfe.lock.RUnlock()
		m.mu.RUnlock()

		for _, lh := range links {
			m.mu.RLock()
			l := m.linkPool.Get(lh)
			var cp Link
			if l != nil {
				cp = *l
			}
			m.mu.RUnlock()
			if l == nil {
				continue
			}
			if !filter.matches(&cp) {
				continue
			}
			if !fn(cp) {
				return
			}
		}
	}
}

// LinksAt implements mac.Schedule for the statistics/vicinity
// hot-path lookup: given (slotframe handle, timeslot), return every
// link scheduled there (§3 permits concurrent cells on different
// channels at the same timeslot).
func (m *Manager) LinksAt(sfHandle uint32, timeslot uint16) []mac.LinkRef {
	m.mu.RLock()
	handles := append([]slab.Handle(nil), m.slotIndex[slotKey(sfHandle, timeslot)]...)
	m.mu.RUnlock()

	out := make([]mac.LinkRef, 0, len(handles))
	for _, lh := range handles {
		m.mu.RLock()
		l := m.linkPool.Get(lh)
		var cp Link
		if l != nil {
			cp = *l
		}
		m.mu.RUnlock()
		if l == nil || cp.Slotframe != sfHandle || cp.Timeslot != timeslot {
			continue // hash collision or stale entry raced with a delete
		}
		out = append(out, mac.LinkRef{
			SlotframeHandle: cp.Slotframe,
			LinkHandle:      cp.Handle,
			Shared:          cp.Options.Has(OptShared),
			Broadcast:       cp.IsBroadcast(),
		})
	}
	return out
}

// Find implements mac.Schedule's general filter for the Statistics
// Engine's configuration selectors (§4.D).
func (m *Manager) Find(f mac.LinkFilter) []mac.LinkRef {
	var out []mac.LinkRef
	lf := LinkFilter{SlotframeHandle: f.SlotframeHandle, Timeslot: f.Timeslot, Channel: f.Channel, Target: f.Target}
	m.IterLinks(lf, func(l Link) bool {
		out = append(out, mac.LinkRef{
			SlotframeHandle: l.Slotframe,
			LinkHandle:      l.Handle,
			Shared:          l.Options.Has(OptShared),
			Broadcast:       l.IsBroadcast(),
		})
		return true
	})
	return out
}

var _ mac.Schedule = (*Manager)(nil)

func removeHandle(hs []slab.Handle, target slab.Handle) []slab.Handle {
	for i, h := range hs {
		if h == target {
			return append(hs[:i], hs[i+1:]...)
		}
	}
	return hs
}
