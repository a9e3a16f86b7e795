// Package registry implements the Resource Registry & Dispatcher
// (§4.A): fixed URI paths routed to typed handlers, field-selector
// projection, AND-combined query filtering, and scalar collapse on a
// resource's own unique identifier. Grounded on the teacher's
// kind-keyed registry/lookup shape (xact/xreg/xreg.go), adapted from
// xaction-kind registration to REST-resource registration.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package registry

import (
	"errors"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/rich-project/plexid/internal/arbiter"
	"github.com/rich-project/plexid/internal/cos"
)

// Object is one resource instance rendered as a generic field map,
// the way a handler hands the dispatcher pre-decoded records to
// project and filter without either side needing reflection over
// concrete DTO types.
type Object map[string]any

// GetFunc answers a GET, already applying any selector fields the
// handler itself understands (e.g. schedule filtering by slotframe/
// timeslot/channel); the dispatcher applies the URI field-selector
// and query-driven AND-filtering/collapse on top of what it returns.
type GetFunc func(query map[string]string) ([]Object, error)

// PostFunc answers a POST with the body already reassembled by the
// Arbiter; it returns the created/updated object(s).
type PostFunc func(body []byte) ([]Object, error)

// DeleteFunc answers a DELETE, returning the object(s) removed.
type DeleteFunc func(query map[string]string) ([]Object, error)

// Def registers one of the fixed URI resources of §6.
type Def struct {
	Path string

	// UniqueIDKey is the query key naming this resource's own unique
	// identifier (e.g. "fd" for slotFrame, "cd" for cellList, "id"
	// for stats). When the request's query sets this key and exactly
	// one object remains after filtering, the response collapses
	// from a one-element array to a bare scalar/object (§4.A).
	UniqueIDKey string

	Observable bool

	Get    GetFunc
	Post   PostFunc
	Delete DeleteFunc
}

// Request is one dispatch-ready request: the resource path already
// split from any field-selector suffix, query variables already
// parsed, and (for POST) the fully reassembled body.
type Request struct {
	Resource string
	Method   string // "GET", "POST", "DELETE"
	Field    string // "" if the URI did not extend past the resource base
	Query    map[string]string
	Accept   string // empty or "application/json"
	Body     []byte
}

// Registry routes requests to registered Defs (§4.A).
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]*Def
	order []string
}

func New() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

func (r *Registry) Register(def Def) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Path]; !exists {
		r.order = append(r.order, def.Path)
	}
	d := def
	r.defs[def.Path] = &d
}

// Observable reports whether a registered resource is a valid
// Observe target (§4.F only debounces/schedules notification for
// resources the registry marks observable).
func (r *Registry) Observable(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[path]
	return ok && d.Observable
}

// Paths returns every registered resource path, insertion order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Dispatch implements §4.A's content negotiation, method routing,
// field-selector projection, AND query filtering, and unique-id
// collapse.
func (r *Registry) Dispatch(req Request) (arbiter.Response, error) {
	if req.Accept != "" && req.Accept != "application/json" {
		return arbiter.Response{Status: arbiter.StatusNotAcceptable}, nil
	}

	r.mu.RLock()
	def, ok := r.defs[req.Resource]
	r.mu.RUnlock()
	if !ok {
		return arbiter.Response{Status: arbiter.StatusNotFound}, nil
	}

	switch req.Method {
	case "GET":
		return r.dispatchGet(def, req)
	case "POST":
		return r.dispatchPost(def, req)
	case "DELETE":
		return r.dispatchDelete(def, req)
	default:
		return arbiter.Response{Status: arbiter.StatusNotImplemented}, nil
	}
}

func (r *Registry) dispatchGet(def *Def, req Request) (arbiter.Response, error) {
	if def.Get == nil {
		return arbiter.Response{Status: arbiter.StatusNotImplemented}, nil
	}
	objs, err := def.Get(req.Query)
	if err != nil {
		return errResponse(err), nil
	}
	objs = filterAND(objs, req.Query)
	body, err := render(objs, req.Field, def.UniqueIDKey, req.Query)
	if err != nil {
		return errResponse(err), nil
	}
	return arbiter.Response{Status: arbiter.StatusContent, Body: body}, nil
}

func (r *Registry) dispatchPost(def *Def, req Request) (arbiter.Response, error) {
	if def.Post == nil {
		return arbiter.Response{Status: arbiter.StatusNotImplemented}, nil
	}
	objs, err := def.Post(req.Body)
	if err != nil {
		return errResponse(err), nil
	}
	body, err := render(objs, "", "", nil)
	if err != nil {
		return errResponse(err), nil
	}
	return arbiter.Response{Status: arbiter.StatusChanged, Body: body}, nil
}

func (r *Registry) dispatchDelete(def *Def, req Request) (arbiter.Response, error) {
	if def.Delete == nil {
		return arbiter.Response{Status: arbiter.StatusNotImplemented}, nil
	}
	objs, err := def.Delete(req.Query)
	if err != nil {
		return errResponse(err), nil
	}
	body, err := render(objs, req.Field, def.UniqueIDKey, req.Query)
	if err != nil {
		return errResponse(err), nil
	}
	return arbiter.Response{Status: arbiter.StatusDeleted, Body: body}, nil
}

// filterAND keeps only objects where every query key (other than the
// field selector itself) matches, formatted as its %v string form
// (§4.A: "multiple queries AND").
func filterAND(objs []Object, query map[string]string) []Object {
	if len(query) == 0 {
		return objs
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := objs[:0:0]
	for _, o := range objs {
		match := true
		for _, k := range keys {
			v, ok := o[k]
			if !ok || formatValue(v) != query[k] {
				match = false
				break
			}
		}
		if match {
			out = append(out, o)
		}
	}
	return out
}

// render applies the field-selector projection and unique-id
// collapse, then marshals the result (§4.A).
func render(objs []Object, field, uniqueIDKey string, query map[string]string) ([]byte, error) {
	if objs == nil {
		objs = []Object{}
	}
	collapse := uniqueIDKey != "" && query[uniqueIDKey] != "" && len(objs) == 1

	if field != "" {
		values := make([]any, 0, len(objs))
		for _, o := range objs {
			values = append(values, o[field])
		}
		if collapse {
			if len(values) == 0 {
				return jsoniter.Marshal(nil)
			}
			return jsoniter.Marshal(values[0])
		}
		return jsoniter.Marshal(values)
	}

	if collapse {
		return jsoniter.Marshal(objs[0])
	}
	return jsoniter.Marshal(objs)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, _ := jsoniter.MarshalToString(t)
		return trimQuotes(b)
	}
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func errResponse(err error) arbiter.Response {
	switch {
	case err == nil:
		return arbiter.Response{Status: arbiter.StatusInternalError}
	default:
		status := arbiter.StatusInternalError
		switch {
		case errors.Is(err, cos.ErrNotFound):
			status = arbiter.StatusNotFound
		case errors.Is(err, cos.ErrExists):
			status = arbiter.StatusConflict
		case errors.Is(err, cos.ErrNoMem):
			status = arbiter.StatusInternalError
		case errors.Is(err, cos.ErrBadRequest):
			status = arbiter.StatusBadRequest
		case errors.Is(err, cos.ErrBusy):
			status = arbiter.StatusServiceUnavailable
		case errors.Is(err, cos.ErrNotAcceptable):
			status = arbiter.StatusNotAcceptable
		}
		return arbiter.Response{Status: status, Body: []byte(err.Error())}
	}
}
