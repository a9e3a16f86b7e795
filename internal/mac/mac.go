// Package mac defines the interfaces the TSCH MAC and RPL routing
// engine present to the Service. Both are explicitly out of scope
// (§1): the Service only reads/mutates the MAC's schedule and
// receives callbacks on frame RX/TX outcome, and only queries RPL's
// preferred parent and routing table. Modelling them as interfaces
// here (rather than function-pointer registrations) is the
// trait-based redesign §9 asks for.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package mac

import "github.com/rich-project/plexid/internal/euiaddr"

// FrameMeta is the per-frame telemetry the MAC delivers to the
// Statistics Engine and Vicinity Tracker on every reception and
// transmission-completion callback.
type FrameMeta struct {
	Sender      euiaddr.Addr
	Receiver    euiaddr.Addr
	RSSI        int8
	LQI         uint8
	TxAttempts  uint8
	Acked       bool
	ASN         uint64
	SlotframeHandle uint32
	Timeslot    uint16
}

// Schedule is the subset of the live TSCH schedule the Service reads
// under the MAC's own per-slot read discipline (§5): given a
// slotframe handle and timeslot, find the link(s) scheduled there, or
// a general filter for the Statistics Engine's configuration
// selectors (§4.D: frame/slot/channel/tna may each be omitted). It is
// declared here, not in package schedule, so that internal/stats does
// not need to import internal/schedule directly and can be exercised
// against a fake in tests.
type Schedule interface {
	LinksAt(slotframeHandle uint32, timeslot uint16) []LinkRef
	Find(filter LinkFilter) []LinkRef
}

// LinkRef is the minimal link identity the stats engine's hot path
// needs: enough to find and update the link's statistics chain
// without pulling in the full Link type.
type LinkRef struct {
	SlotframeHandle uint32
	LinkHandle      uint32
	Shared          bool
	Broadcast       bool
}

// LinkFilter mirrors the Schedule Manager's own filtering contract
// (§4.C): any subset of fields may be set; nil means wildcard.
type LinkFilter struct {
	SlotframeHandle *uint32
	Timeslot        *uint16
	Channel         *uint16
	Target          *euiaddr.Addr
}

// RPLSource is the out-of-scope RPL routing engine collaborator
// (§4.E): the Service only queries it, never mutates it.
type RPLSource interface {
	// PreferredParent returns the current RPL preferred parent, or
	// the zero Addr if none has been selected yet.
	PreferredParent() euiaddr.Addr

	// Children returns the ordered, de-duplicated next-hop addresses
	// appearing in the route *neighbour* table — not route
	// destinations. This mirrors the original source's loop (§9 Open
	// Question, disposed in DESIGN.md): it enumerates next-hops, a
	// narrower set than full route destinations.
	Children() []euiaddr.Addr
}

// ParentChangeObserver is notified when RPL's preferred parent
// changes, driving the Observer/Notification component's debounced
// rpl/dag push.
type ParentChangeObserver interface {
	OnParentChange(old, new euiaddr.Addr)
}
