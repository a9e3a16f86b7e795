/*
 * Copyright (c) 2024, RICH project contributors.
 */
package arbiter

import (
	"errors"
	"sync"

	"github.com/rich-project/plexid/internal/cos"
)

var (
	blockCtxPool sync.Pool
	zeroBlockCtx blockCtx
)

func allocBlockCtx() *blockCtx {
	if v := blockCtxPool.Get(); v != nil {
		return v.(*blockCtx)
	}
	return &blockCtx{}
}

func freeBlockCtx(b *blockCtx) {
	*b = zeroBlockCtx
	blockCtxPool.Put(b)
}

// lockState is the per-resource reassembly buffer and lock tag (§4.B:
// "the Arbiter maintains, per resource, a single reassembly buffer
// and an associated lock-tag"), plus the last-processed message id
// and response needed for idempotent retransmit detection after the
// lock has already been released.
type lockState struct {
	locked bool
	method string
	buf    []byte

	haveLast bool
	lastMsgID uint16
	lastResp  Response
}

// Arbiter serialises block-wise request reassembly per resource and
// dispatches the fully-reassembled payload to its registered Handler.
type Arbiter struct {
	mu       sync.Mutex
	states   map[string]*lockState
	handlers map[string]Handler
	maxBuf   int
}

func New(maxReassemblyBytes int) *Arbiter {
	return &Arbiter{
		states:   make(map[string]*lockState),
		handlers: make(map[string]Handler),
		maxBuf:   maxReassemblyBytes,
	}
}

// Register binds a resource's fully-reassembled-request handler.
func (a *Arbiter) Register(resource string, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[resource] = h
}

func (a *Arbiter) stateFor(resource string) *lockState {
	st, ok := a.states[resource]
	if !ok {
		st = &lockState{}
		a.states[resource] = st
	}
	return st
}

// Dispatch implements §4.B in full: lock contention, block
// reassembly, overflow handling, and idempotent retransmit of a
// final block's cached response.
func (a *Arbiter) Dispatch(req Request) Response {
	bc := allocBlockCtx()
	bc.resource, bc.method, bc.msgID, bc.final, bc.body = req.Resource, req.Method, req.MsgID, req.Final, req.Body
	defer freeBlockCtx(bc)

	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.stateFor(bc.resource)

	if st.locked && st.method != bc.method {
		return Response{Status: StatusServiceUnavailable}
	}

	if bc.final && st.haveLast && st.lastMsgID == bc.msgID {
		return st.lastResp
	}

	if !st.locked {
		st.locked = true
		st.method = bc.method
		st.buf = st.buf[:0]
	}
	st.buf = append(st.buf, bc.body...)

	if len(st.buf) > a.maxBuf {
		st.locked = false
		st.buf = nil
		return Response{Status: StatusNotImplemented, Body: []byte("reassembly buffer overflow")}
	}

	if !bc.final {
		return Response{Status: StatusContinue}
	}

	full := append([]byte(nil), st.buf...)
	st.locked = false
	st.buf = nil

	handler, ok := a.handlers[bc.resource]
	if !ok {
		return Response{Status: StatusNotFound}
	}

	resp, err := handler(bc.method, full)
	if err != nil {
		resp = errToResponse(err)
	}

	st.haveLast = true
	st.lastMsgID = bc.msgID
	st.lastResp = resp
	return resp
}

func errToResponse(err error) Response {
	body := []byte(err.Error())
	switch {
	case errors.Is(err, cos.ErrNotFound):
		return Response{Status: StatusNotFound, Body: body}
	case errors.Is(err, cos.ErrExists):
		return Response{Status: StatusConflict, Body: body}
	case errors.Is(err, cos.ErrNoMem):
		return Response{Status: StatusInternalError, Body: body}
	case errors.Is(err, cos.ErrBadRequest):
		return Response{Status: StatusBadRequest, Body: body}
	case errors.Is(err, cos.ErrBusy):
		return Response{Status: StatusServiceUnavailable, Body: body}
	case errors.Is(err, cos.ErrNotAcceptable):
		return Response{Status: StatusNotAcceptable, Body: body}
	default:
		return Response{Status: StatusInternalError, Body: body}
	}
}
