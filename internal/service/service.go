/*
 * Copyright (c) 2024, RICH project contributors.
 */
package service

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rich-project/plexid/internal/arbiter"
	"github.com/rich-project/plexid/internal/codec"
	"github.com/rich-project/plexid/internal/coap"
	"github.com/rich-project/plexid/internal/config"
	"github.com/rich-project/plexid/internal/cos"
	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/notify"
	"github.com/rich-project/plexid/internal/registry"
	"github.com/rich-project/plexid/internal/schedule"
	"github.com/rich-project/plexid/internal/stats"
	"github.com/rich-project/plexid/internal/topology"
	"github.com/rich-project/plexid/internal/txqueue"
)

// URI path constants (§6's "compile-time constants").
const (
	PathDAG       = "rpl/dag"
	PathNbrs      = "6top/nbrs"
	PathSlotFrame = "6top/slotFrame"
	PathCellList  = "6top/cellList"
	PathStats     = "6top/stats"
	PathQueue     = "6top/queue"
	PathVicinity  = "mac/vicinity"
)

// Daemon wires the Schedule Manager, Statistics Engine, Topology &
// Vicinity Tracker, Observer/Notification, Resource Registry, and
// Request-Lifecycle Arbiter into the single CoAP request handler the
// transport drives (§2's data-flow diagram, A→B→{C,D,E}, C/D/E→F).
type Daemon struct {
	cfg *config.Config

	Schedule *schedule.Manager
	Stats    *stats.Engine
	RPL      *topology.Store
	Topo     *topology.Projector
	Vicinity *topology.Tracker
	Queue    *txqueue.Store
	Notify   *notify.Notifier
	Registry *registry.Registry
	Arbiter  *arbiter.Arbiter

	// pendingField/pendingQuery carry the current request's
	// field-selector and query variables from Handler into the
	// Arbiter-registered dispatch closures. Safe unguarded because §5
	// guarantees the request loop is single-threaded cooperative: a
	// MAC callback or timer may run between requests but never
	// within one, so there is never a second in-flight request to
	// race against.
	pendingField string
	pendingQuery map[string]string
}

// New constructs every component and registers the seven fixed
// resources, but does not yet have a transport to deliver
// notifications through — call Bind once the coap.Server exists.
func New(cfg *config.Config) *Daemon {
	sched := schedule.NewManager(cfg.Pools.MaxSlotframes, cfg.Pools.MaxLinks)
	statsEngine := stats.NewEngine(sched, cfg.Pools.MaxStats, cfg.Pools.MaxEnhanced)
	sched.OnLinkRemoved = func(l *schedule.Link) { statsEngine.PurgeOnLink(l.Handle) }

	rplStore := topology.NewStore()
	projector := topology.NewProjector(rplStore)

	vicinity, err := topology.NewTracker(
		cfg.Pools.MaxProximates, cfg.Vicinity.PheromoneChunk,
		cfg.Vicinity.PheromoneDecay, cfg.Vicinity.PheromoneMax,
		cfg.Vicinity.PheromoneWindow,
	)
	if err != nil {
		// Pool construction failure at startup is fatal; the daemon
		// cannot serve any resource without its vicinity table.
		panic(errors.Wrap(err, "service: open vicinity tracker"))
	}

	d := &Daemon{
		cfg:      cfg,
		Schedule: sched,
		Stats:    statsEngine,
		RPL:      rplStore,
		Topo:     projector,
		Vicinity: vicinity,
		Queue:    txqueue.NewStore(),
		Registry: registry.New(),
		Arbiter:  arbiter.New(64 * 1024),
	}
	return d
}

// Bind finishes wiring now that a Transport (the coap.Server) exists:
// the Notifier is constructed over it, RPL parent changes and the
// registry's resource defs are registered, and the Arbiter's
// per-resource handlers are bound to the registry.
func (d *Daemon) Bind(transport notify.Transport) {
	d.Notify = notify.New(transport, d.cfg.Notify.DebounceDelay)
	d.RPL.OnChange = onParentChangeFunc(func(old, new euiaddr.Addr) {
		d.Notify.SignalTopologyChange(d.dagSnapshot)
	})
	d.registerResources()
	for _, path := range d.Registry.Paths() {
		path := path
		d.Arbiter.Register(path, func(method string, body []byte) (arbiter.Response, error) {
			return d.Registry.Dispatch(registry.Request{
				Resource: path,
				Method:   method,
				Field:    d.pendingField,
				Query:    d.pendingQuery,
				Accept:   "application/json",
				Body:     body,
			})
		})
	}
}

// onParentChangeFunc adapts a plain function to mac.ParentChangeObserver.
type onParentChangeFunc func(old, new euiaddr.Addr)

func (f onParentChangeFunc) OnParentChange(old, new euiaddr.Addr) { f(old, new) }

func (d *Daemon) dagSnapshot() []byte {
	snap, err := d.Topo.GetParentAndChildren(context.Background())
	if err != nil {
		return []byte(`{}`)
	}
	b, _ := jsoniter.Marshal(dagObject(snap))
	return b
}

// VicinityDecayTask, CellListPeriodicTask, QueuePeriodicTask, and
// VicinityPeriodicTask each adapt one component's periodic work to
// hk.CallFunc's signature; the caller registers them on a Housekeeper.
func (d *Daemon) VicinityDecayTask() func() time.Duration { return d.Vicinity.DecayTask() }

func (d *Daemon) CellListPeriodicTask() func() time.Duration {
	return d.Notify.PeriodicTask(PathCellList, d.cfg.Notify.LinkUpdate, d.cellListSnapshot)
}

func (d *Daemon) QueuePeriodicTask() func() time.Duration {
	return d.Notify.PeriodicTask(PathQueue, d.cfg.Notify.QueueUpdate, d.queueSnapshot)
}

func (d *Daemon) VicinityPeriodicTask() func() time.Duration {
	return d.Notify.PeriodicTask(PathVicinity, 10*d.cfg.Vicinity.PheromoneWindow, d.vicinitySnapshot)
}

// Handler builds the coap.RequestHandler that decodes a Message,
// splits its resource string into the registered base path plus
// field selector and query variables (§4.A), and dispatches through
// the Arbiter.
func (d *Daemon) Handler() coap.RequestHandler {
	return func(msg coap.Message) coap.Message {
		base, field, query, err := splitResource(msg.Resource, d.Registry.Paths())
		if err != nil {
			return coap.Message{Status: uint8(arbiter.StatusNotFound)}
		}

		method, err := methodFromCode(msg.Code)
		if err != nil {
			return coap.Message{Status: uint8(arbiter.StatusNotImplemented)}
		}

		final := msg.Block1 == nil || !msg.Block1.More

		d.pendingField, d.pendingQuery = field, query
		resp := d.Arbiter.Dispatch(arbiter.Request{
			Resource: base, Method: method, MsgID: msg.MsgID, Final: final, Body: msg.Payload,
		})
		d.pendingField, d.pendingQuery = "", nil

		return coap.Message{Status: uint8(resp.Status), Payload: resp.Body}
	}
}

func methodFromCode(c coap.Code) (string, error) {
	switch c {
	case coap.CodeGET:
		return "GET", nil
	case coap.CodePOST:
		return "POST", nil
	case coap.CodeDELETE:
		return "DELETE", nil
	default:
		return "", cos.NewErrBadRequest("unsupported method code %d", c)
	}
}

// splitResource separates a raw resource string (path, optionally a
// field-selector tail, optionally a query string) into its registered
// base path, the field tail, and parsed query variables (§4.A: "URI
// suffix past the resource base... treated as a field selector
// subresource").
func splitResource(raw string, paths []string) (base, field string, query map[string]string, err error) {
	u, perr := url.Parse(raw)
	if perr != nil {
		return "", "", nil, cos.NewErrBadRequest("malformed resource %q: %v", raw, perr)
	}
	p := strings.TrimPrefix(u.Path, "/")

	for _, cand := range paths {
		if p == cand || strings.HasPrefix(p, cand+"/") {
			if len(cand) > len(base) {
				base = cand
			}
		}
	}
	if base == "" {
		return "", "", nil, cos.NewErrNotFound("no resource matches %q", p)
	}
	field = strings.TrimPrefix(strings.TrimPrefix(p, base), "/")

	query = make(map[string]string, len(u.Query()))
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}
	return base, field, query, nil
}

func parseUint32(s string) (uint32, bool) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func parseUint16(s string) (uint16, bool) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}
