/*
 * Copyright (c) 2024, RICH project contributors.
 */
package service

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rich-project/plexid/internal/codec"
	"github.com/rich-project/plexid/internal/cos"
	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/registry"
	"github.com/rich-project/plexid/internal/schedule"
	"github.com/rich-project/plexid/internal/stats"
	"github.com/rich-project/plexid/internal/topology"
)

// registerResources binds the seven fixed URI resources (§6) to the
// Schedule Manager, Statistics Engine, and Topology & Vicinity
// Tracker.
func (d *Daemon) registerResources() {
	d.Registry.Register(registry.Def{
		Path:       PathDAG,
		Observable: true,
		Get:        d.getDAG,
	})
	d.Registry.Register(registry.Def{
		Path:        PathNbrs,
		UniqueIDKey: "tna",
		Observable:  true,
		Get:         d.getNbrs,
	})
	d.Registry.Register(registry.Def{
		Path:        PathSlotFrame,
		UniqueIDKey: "fd",
		Get:         d.getSlotFrame,
		Post:        d.postSlotFrame,
		Delete:      d.deleteSlotFrame,
	})
	d.Registry.Register(registry.Def{
		Path:        PathCellList,
		UniqueIDKey: "cd",
		Observable:  true,
		Get:         d.getCellList,
		Post:        d.postCellList,
		Delete:      d.deleteCellList,
	})
	d.Registry.Register(registry.Def{
		Path:        PathStats,
		UniqueIDKey: "id",
		Get:         d.getStats,
		Post:        d.postStats,
		Delete:      d.deleteStats,
	})
	d.Registry.Register(registry.Def{
		Path:        PathQueue,
		UniqueIDKey: "id",
		Observable:  true,
		Get:         d.getQueue,
	})
	d.Registry.Register(registry.Def{
		Path:        PathVicinity,
		UniqueIDKey: "tna",
		Observable:  true,
		Get:         d.getVicinity,
	})
}

// -- rpl/dag --------------------------------------------------------

func dagObject(snap topology.Snapshot) registry.Object {
	children := make([]string, 0, len(snap.Children))
	for _, c := range snap.Children {
		children = append(children, c.Format())
	}
	return registry.Object{"parent": snap.Parent.Format(), "children": children}
}

func (d *Daemon) getDAG(map[string]string) ([]registry.Object, error) {
	snap, err := d.Topo.GetParentAndChildren(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "service: get_parent_and_children")
	}
	return []registry.Object{dagObject(snap)}, nil
}

// -- 6top/nbrs --------------------------------------------------------

func (d *Daemon) getNbrs(map[string]string) ([]registry.Object, error) {
	snap, err := d.Topo.GetParentAndChildren(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "service: get_parent_and_children")
	}
	out := make([]registry.Object, 0, len(snap.Children))
	for _, c := range snap.Children {
		out = append(out, registry.Object{"tna": c.Format()})
	}
	return out, nil
}

// -- 6top/slotFrame --------------------------------------------------

func (d *Daemon) getSlotFrame(map[string]string) ([]registry.Object, error) {
	var out []registry.Object
	d.Schedule.IterSlotframes(func(sf schedule.Slotframe) bool {
		obj, err := toObject(codec.SlotframeToDTO(sf))
		if err == nil {
			out = append(out, registry.Object(obj))
		}
		return true
	})
	return out, nil
}

func (d *Daemon) postSlotFrame(body []byte) ([]registry.Object, error) {
	var dto codec.SlotframeDTO
	if err := jsoniter.Unmarshal(body, &dto); err != nil {
		return nil, cos.NewErrBadRequest("malformed slotframe payload: %v", err)
	}
	if err := d.Schedule.AddSlotframe(dto.FD, dto.NS); err != nil {
		return nil, err
	}
	obj, err := toObject(dto)
	if err != nil {
		return nil, err
	}
	return []registry.Object{registry.Object(obj)}, nil
}

func (d *Daemon) deleteSlotFrame(query map[string]string) ([]registry.Object, error) {
	fdStr, ok := query["fd"]
	if !ok {
		return nil, cos.NewErrBadRequest("slotFrame delete requires a fd query")
	}
	fd, ok := parseUint32(fdStr)
	if !ok {
		return nil, cos.NewErrBadRequest("malformed fd %q", fdStr)
	}
	sf, err := d.Schedule.RemoveSlotframe(fd)
	if err != nil {
		return nil, err
	}
	obj, err := toObject(codec.SlotframeToDTO(sf))
	if err != nil {
		return nil, err
	}
	return []registry.Object{registry.Object(obj)}, nil
}

// -- 6top/cellList ----------------------------------------------------

func (d *Daemon) linkDTO(l schedule.Link) (codec.LinkDTO, error) {
	entries := d.Stats.EntriesOnLink(l.Handle)
	statDTOs := make([]codec.StatsDTO, 0, len(entries))
	for _, e := range entries {
		dto, err := codec.StatsEntryToDTO(e, l.Slotframe, l.Timeslot, l.Channel)
		if err != nil {
			return codec.LinkDTO{}, err
		}
		statDTOs = append(statDTOs, dto)
	}
	return codec.LinkToDTO(l, statDTOs), nil
}

func (d *Daemon) getCellList(map[string]string) ([]registry.Object, error) {
	var out []registry.Object
	var firstErr error
	d.Schedule.IterLinks(schedule.LinkFilter{}, func(l schedule.Link) bool {
		dto, err := d.linkDTO(l)
		if err != nil {
			firstErr = err
			return false
		}
		obj, err := toObject(dto)
		if err != nil {
			firstErr = err
			return false
		}
		out = append(out, registry.Object(obj))
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (d *Daemon) postCellList(body []byte) ([]registry.Object, error) {
	var dto codec.LinkDTO
	if err := jsoniter.Unmarshal(body, &dto); err != nil {
		return nil, cos.NewErrBadRequest("malformed link payload: %v", err)
	}
	sfHandle, opts, typ, addr, timeslot, channel, err := codec.LinkFromDTO(dto)
	if err != nil {
		return nil, err
	}
	handle, err := d.Schedule.AddLink(sfHandle, opts, typ, addr, timeslot, channel)
	if err != nil {
		return nil, err
	}
	l, _ := d.Schedule.GetLink(handle)
	linkDTO, err := d.linkDTO(l)
	if err != nil {
		return nil, err
	}
	obj, err := toObject(linkDTO)
	if err != nil {
		return nil, err
	}
	return []registry.Object{registry.Object(obj)}, nil
}

func (d *Daemon) deleteCellList(query map[string]string) ([]registry.Object, error) {
	filter, err := linkFilterFromQuery(query)
	if err != nil {
		return nil, err
	}
	var toRemove []schedule.Link
	d.Schedule.IterLinks(filter, func(l schedule.Link) bool {
		toRemove = append(toRemove, l)
		return true
	})
	out := make([]registry.Object, 0, len(toRemove))
	for _, l := range toRemove {
		dto, err := d.linkDTO(l)
		if err != nil {
			return nil, err
		}
		if err := d.Schedule.RemoveLink(l.Slotframe, l.Handle); err != nil {
			return nil, err
		}
		obj, err := toObject(dto)
		if err != nil {
			return nil, err
		}
		out = append(out, registry.Object(obj))
	}
	return out, nil
}

func linkFilterFromQuery(query map[string]string) (schedule.LinkFilter, error) {
	var f schedule.LinkFilter
	if v, ok := query["fd"]; ok {
		n, ok := parseUint32(v)
		if !ok {
			return f, cos.NewErrBadRequest("malformed fd %q", v)
		}
		f.SlotframeHandle = &n
	}
	if v, ok := query["so"]; ok {
		n, ok := parseUint16(v)
		if !ok {
			return f, cos.NewErrBadRequest("malformed so %q", v)
		}
		f.Timeslot = &n
	}
	if v, ok := query["co"]; ok {
		n, ok := parseUint16(v)
		if !ok {
			return f, cos.NewErrBadRequest("malformed co %q", v)
		}
		f.Channel = &n
	}
	if v, ok := query["cd"]; ok {
		n, ok := parseUint32(v)
		if !ok {
			return f, cos.NewErrBadRequest("malformed cd %q", v)
		}
		f.LinkHandle = &n
	}
	if v, ok := query["tna"]; ok {
		addr, err := euiaddr.Parse(v)
		if err != nil {
			return f, err
		}
		f.Target = &addr
	}
	return f, nil
}

// -- 6top/stats ---------------------------------------------------------

type statsConfigDTO struct {
	Frame   *uint32             `json:"frame"`
	Slot    *uint16             `json:"slot"`
	Channel *uint16             `json:"channel"`
	TNA     *string             `json:"tna"`
	Metric  string              `json:"metric"`
	ID      *uint32             `json:"id"`
	Enable  int                 `json:"enable"`
	Window  uint16              `json:"window"`
	Value   jsoniter.RawMessage `json:"value"`
}

func (d *Daemon) getStats(map[string]string) ([]registry.Object, error) {
	var out []registry.Object
	var firstErr error
	d.Schedule.IterLinks(schedule.LinkFilter{}, func(l schedule.Link) bool {
		for _, e := range d.Stats.EntriesOnLink(l.Handle) {
			dto, err := codec.StatsEntryToDTO(e, l.Slotframe, l.Timeslot, l.Channel)
			if err != nil {
				firstErr = err
				return false
			}
			obj, err := toObject(dto)
			if err != nil {
				firstErr = err
				return false
			}
			out = append(out, registry.Object(obj))
		}
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (d *Daemon) postStats(body []byte) ([]registry.Object, error) {
	var dto statsConfigDTO
	if err := jsoniter.Unmarshal(body, &dto); err != nil {
		return nil, cos.NewErrBadRequest("malformed stats payload: %v", err)
	}
	req := stats.ConfigureRequest{
		Slotframe: dto.Frame, Timeslot: dto.Slot, Channel: dto.Channel,
		Metric: dto.Metric, ID: dto.ID, Enable: dto.Enable != 0, Window: dto.Window,
	}
	if dto.TNA != nil {
		addr, err := euiaddr.Parse(*dto.TNA)
		if err != nil {
			return nil, err
		}
		req.Target = &addr
	}
	if len(dto.Value) > 0 {
		metric, ok := stats.ParseMetric(dto.Metric)
		if !ok {
			return nil, cos.NewErrBadRequest("metric is required and must be one of rssi,lqi,etx,pdr,asn")
		}
		v, err := codec.ParseValue(metric, dto.Value)
		if err != nil {
			return nil, err
		}
		req.Value = &v
	}
	touched, err := d.Stats.Configure(req)
	if err != nil {
		return nil, err
	}
	out := make([]registry.Object, 0, len(touched))
	for _, linkHandle := range touched {
		l, ok := d.Schedule.GetLink(linkHandle)
		if !ok {
			continue
		}
		for _, e := range d.Stats.EntriesOnLink(l.Handle) {
			sdto, err := codec.StatsEntryToDTO(e, l.Slotframe, l.Timeslot, l.Channel)
			if err != nil {
				return nil, err
			}
			obj, err := toObject(sdto)
			if err != nil {
				return nil, err
			}
			out = append(out, registry.Object(obj))
		}
	}
	return out, nil
}

func (d *Daemon) deleteStats(query map[string]string) ([]registry.Object, error) {
	req := stats.DeleteRequest{}
	if v, ok := query["frame"]; ok {
		n, ok := parseUint32(v)
		if !ok {
			return nil, cos.NewErrBadRequest("malformed frame %q", v)
		}
		req.Slotframe = &n
	}
	if v, ok := query["slot"]; ok {
		n, ok := parseUint16(v)
		if !ok {
			return nil, cos.NewErrBadRequest("malformed slot %q", v)
		}
		req.Timeslot = &n
	}
	if v, ok := query["channel"]; ok {
		n, ok := parseUint16(v)
		if !ok {
			return nil, cos.NewErrBadRequest("malformed channel %q", v)
		}
		req.Channel = &n
	}
	if v, ok := query["metric"]; ok {
		req.Metric = &v
	}
	if v, ok := query["id"]; ok {
		n, ok := parseUint32(v)
		if !ok {
			return nil, cos.NewErrBadRequest("malformed id %q", v)
		}
		req.ID = &n
	}
	if v, ok := query["tna"]; ok {
		addr, err := euiaddr.Parse(v)
		if err != nil {
			return nil, err
		}
		req.Target = &addr
	}
	if err := d.Stats.Delete(req); err != nil {
		return nil, err
	}
	return nil, nil
}

// -- 6top/queue -----------------------------------------------------

func (d *Daemon) getQueue(map[string]string) ([]registry.Object, error) {
	entries := d.Queue.Queues()
	out := make([]registry.Object, 0, len(entries))
	for _, e := range entries {
		out = append(out, registry.Object{"id": e.Target.Format(), "txlen": e.Length})
	}
	return out, nil
}

// -- mac/vicinity -----------------------------------------------------

func (d *Daemon) getVicinity(map[string]string) ([]registry.Object, error) {
	entries := d.Vicinity.List()
	out := make([]registry.Object, 0, len(entries))
	for _, e := range entries {
		out = append(out, registry.Object{
			"tna":       e.Peer.Format(),
			"pheromone": e.Pheromone,
			"age":       e.Timestamp.Unix(),
		})
	}
	return out, nil
}

// -- periodic snapshot helpers for the Observer component -----------

func (d *Daemon) cellListSnapshot() []byte {
	objs, err := d.getCellList(nil)
	if err != nil {
		return []byte(`[]`)
	}
	b, _ := jsoniter.Marshal(objs)
	return b
}

func (d *Daemon) queueSnapshot() []byte {
	objs, err := d.getQueue(nil)
	if err != nil {
		return []byte(`[]`)
	}
	b, _ := jsoniter.Marshal(objs)
	return b
}

func (d *Daemon) vicinitySnapshot() []byte {
	objs, err := d.getVicinity(nil)
	if err != nil {
		return []byte(`[]`)
	}
	b, _ := jsoniter.Marshal(objs)
	return b
}
