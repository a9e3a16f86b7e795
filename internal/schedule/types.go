// Package schedule implements the Schedule Manager (§4.C): CRUD on
// slotframes and links drawn from fixed-capacity pools, with the
// ownership cascade slotframe -> link -> statistics -> enhanced
// entries described in §3.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package schedule

import (
	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/slab"
)

// LinkOption is a bit in Link.Options (§3: tx, rx, shared,
// timekeeping).
type LinkOption uint8

const (
	OptTX LinkOption = 1 << iota
	OptRX
	OptShared
	OptTimekeeping
)

func (o LinkOption) Has(bit LinkOption) bool { return o&bit != 0 }

// LinkType distinguishes a normal data cell from an advertising
// (EB) cell.
type LinkType uint8

const (
	LinkNormal LinkType = iota
	LinkAdvertising
)

// Slotframe is identified by a client-chosen handle, unique per node
// (§3). linkOrder records the link-pool handles of its owned links in
// insertion order so traversal survives deletions that would
// otherwise open a gap in slab iteration order.
type Slotframe struct {
	Handle    uint32
	Size      uint32
	linkOrder []slab.Handle
}

// Link is owned by exactly one slotframe.
type Link struct {
	Handle    uint32 // server-assigned, monotonic, never reused
	Slotframe uint32 // owning slotframe's Handle, for reverse lookup
	Timeslot  uint16
	Channel   uint16
	Options   LinkOption
	Type      LinkType
	Target    euiaddr.Addr
}

func (l *Link) IsBroadcast() bool { return l.Target.IsBroadcast() }

// Validate checks the per-slotframe invariant from §3/§8: a link's
// timeslot must fall within its slotframe's size, and the broadcast
// address is only legal on shared or RX cells.
func (l *Link) Validate(sf *Slotframe) error {
	if uint32(l.Timeslot) >= sf.Size {
		return errTimeslotOutOfRange(l.Timeslot, sf.Size)
	}
	if l.Target.IsBroadcast() && !(l.Options.Has(OptShared) || l.Options.Has(OptRX)) {
		return errBroadcastRequiresSharedOrRX()
	}
	return nil
}
