// Package topology implements the Topology & Vicinity Tracker
// (§4.E): a read-through projection of RPL's preferred parent and
// routing neighbour table, and an in-memory pheromone-decay freshness
// table of recently-heard peers.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package topology

import (
	"context"

	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/mac"
	"golang.org/x/sync/singleflight"
)

// Snapshot is the result of a topology projection: the RPL preferred
// parent (zero Addr if none selected) and the ordered, de-duplicated
// next-hop addresses from the route neighbour table.
type Snapshot struct {
	Parent   euiaddr.Addr
	Children []euiaddr.Addr
}

// Projector implements get_parent_and_children() (§4.E): no caching,
// read straight through to the RPL collaborator on every call, but
// collapse concurrent identical reads into one RPLSource query so a
// burst of GETs during a single RPL state doesn't hammer the
// collaborator harder than a single reader would.
type Projector struct {
	src mac.RPLSource
	sf  singleflight.Group

	// NotifyParentChange is the Observer component's topology-debounce
	// hook (§4.F), invoked whenever OnParentChange fires.
	NotifyParentChange func(old, new euiaddr.Addr)
}

func NewProjector(src mac.RPLSource) *Projector {
	return &Projector{src: src}
}

// GetParentAndChildren implements get_parent_and_children (§4.E).
func (p *Projector) GetParentAndChildren(ctx context.Context) (Snapshot, error) {
	v, err, _ := p.sf.Do("topology", func() (any, error) {
		return Snapshot{
			Parent:   p.src.PreferredParent(),
			Children: p.src.Children(),
		}, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// OnParentChange implements mac.ParentChangeObserver, forwarding to
// the Observer component's debounced topology-resource notification.
func (p *Projector) OnParentChange(old, new euiaddr.Addr) {
	if p.NotifyParentChange != nil {
		p.NotifyParentChange(old, new)
	}
}

var _ mac.ParentChangeObserver = (*Projector)(nil)
