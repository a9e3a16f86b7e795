// Package codec implements the three canonical JSON wire shapes of
// §6 (Slotframe, Link, Stats) and their value-formatting rules: ASN
// as a hex string, RSSI as a signed decimal, every other metric as
// an unsigned decimal.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package codec

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/schedule"
	"github.com/rich-project/plexid/internal/stats"
)

// SlotframeDTO is the canonical `{"fd":<u>,"ns":<u>}` shape (§6).
type SlotframeDTO struct {
	FD uint32 `json:"fd"`
	NS uint32 `json:"ns"`
}

func SlotframeToDTO(sf schedule.Slotframe) SlotframeDTO {
	return SlotframeDTO{FD: sf.Handle, NS: sf.Size}
}

// LinkDTO is the canonical cellList shape (§6):
// `{"cd":<u>,"fd":<u>,"so":<u>,"co":<u>,"lo":<u>,"lt":<u>,"tna":"<addr>","stats":[…]}`.
// cd is the link (cell descriptor) handle; fd its owning slotframe;
// so/co the timeslot/channel; lo/lt the link options bitfield and
// link type; tna the target node address.
type LinkDTO struct {
	CD    uint32     `json:"cd"`
	FD    uint32     `json:"fd"`
	SO    uint16     `json:"so"`
	CO    uint16     `json:"co"`
	LO    uint8      `json:"lo"`
	LT    uint8      `json:"lt"`
	TNA   string     `json:"tna"`
	Stats []StatsDTO `json:"stats,omitempty"`
}

func LinkToDTO(l schedule.Link, linkStats []StatsDTO) LinkDTO {
	return LinkDTO{
		CD:    l.Handle,
		FD:    l.Slotframe,
		SO:    l.Timeslot,
		CO:    l.Channel,
		LO:    uint8(l.Options),
		LT:    uint8(l.Type),
		TNA:   l.Target.Format(),
		Stats: linkStats,
	}
}

// LinkFromDTO decodes the fields AddLink needs, parsing the address.
func LinkFromDTO(d LinkDTO) (sfHandle uint32, opts schedule.LinkOption, typ schedule.LinkType, addr euiaddr.Addr, timeslot, channel uint16, err error) {
	addr, err = euiaddr.Parse(d.TNA)
	if err != nil {
		return
	}
	sfHandle = d.FD
	opts = schedule.LinkOption(d.LO)
	typ = schedule.LinkType(d.LT)
	timeslot = d.SO
	channel = d.CO
	return
}

// StatsDTO is the canonical stats shape (§6):
// `{"id":<u>,"fd":<u>,"so":<u>,"co":<u>,"metric":"<kind>","enable":<0|1>,"tna":"<addr>","value":<num|"<hex>">}`.
// TNA is present only on enhanced (per-peer) sub-entries.
type StatsDTO struct {
	ID     uint32          `json:"id"`
	FD     uint32          `json:"fd"`
	SO     uint16          `json:"so"`
	CO     uint16          `json:"co"`
	Metric string          `json:"metric"`
	Enable int             `json:"enable"`
	Window uint16          `json:"window,omitempty"`
	TNA    string          `json:"tna,omitempty"`
	Value  jsoniter.RawMessage `json:"value"`
}

// StatsEntryToDTO renders one top-level statistics entry. sfHandle/
// timeslot/channel are carried from the owning link since Entry
// itself only records the link handle.
func StatsEntryToDTO(e stats.Entry, sfHandle uint32, timeslot, channel uint16) (StatsDTO, error) {
	val, err := FormatValue(e.Metric, e.Value)
	if err != nil {
		return StatsDTO{}, err
	}
	enable := 0
	if e.Enabled {
		enable = 1
	}
	return StatsDTO{
		ID: e.ID, FD: sfHandle, SO: timeslot, CO: channel,
		Metric: e.Metric.String(), Enable: enable, Window: e.Window,
		Value: val,
	}, nil
}

// EnhancedToDTO renders one per-peer enhanced sub-entry, nested under
// its owning entry's wire response.
func EnhancedToDTO(parent StatsDTO, peer euiaddr.Addr, value int64, metric stats.Metric) (StatsDTO, error) {
	val, err := FormatValue(metric, value)
	if err != nil {
		return StatsDTO{}, err
	}
	out := parent
	out.TNA = peer.Format()
	out.Value = val
	return out, nil
}

// FormatValue applies §6's value-encoding rule: ASN as a hex string,
// RSSI as a signed decimal, every other metric as an unsigned
// decimal.
func FormatValue(metric stats.Metric, value int64) (jsoniter.RawMessage, error) {
	switch metric {
	case stats.MetricASN:
		return jsoniter.RawMessage(fmt.Sprintf(`"%x"`, uint64(value))), nil
	case stats.MetricRSSI:
		return jsoniter.RawMessage(fmt.Sprintf("%d", value)), nil
	default:
		return jsoniter.RawMessage(fmt.Sprintf("%d", uint64(value))), nil
	}
}

// ParseValue reverses FormatValue for decoding a client-supplied
// seed value, when one is present in a POST body.
func ParseValue(metric stats.Metric, raw jsoniter.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	switch metric {
	case stats.MetricASN:
		var hexStr string
		if err := jsoniter.Unmarshal(raw, &hexStr); err != nil {
			return 0, err
		}
		var v uint64
		if _, err := fmt.Sscanf(hexStr, "%x", &v); err != nil {
			return 0, err
		}
		return int64(v), nil
	case stats.MetricRSSI:
		var v int64
		if err := jsoniter.Unmarshal(raw, &v); err != nil {
			return 0, err
		}
		return v, nil
	default:
		var v uint64
		if err := jsoniter.Unmarshal(raw, &v); err != nil {
			return 0, err
		}
		return int64(v), nil
	}
}
