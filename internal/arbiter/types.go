// Package arbiter implements the Request-Lifecycle Arbiter (§4.B):
// per-resource block-wise reassembly, a per-resource lock tag (locked
// flag plus owning method), and idempotent retransmit detection, grounded on the
// teacher's per-request bctx pool idiom.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package arbiter

// Status is the arbiter-level outcome, independent of the concrete
// transport's status code space (§6 maps these at the CoAP layer).
type Status int

const (
	StatusContent Status = iota
	StatusChanged
	StatusDeleted
	StatusContinue // non-final block accepted, no body
	StatusBadRequest
	StatusNotFound
	StatusConflict
	StatusServiceUnavailable
	StatusNotImplemented
	StatusNotAcceptable
	StatusInternalError
)

// Request is one transport-layer request, possibly one block of a
// block-wise upload.
type Request struct {
	Resource string
	Method   string // "GET", "POST", "DELETE"
	MsgID    uint16 // transport message identity, for retransmit detection
	Final    bool   // last block of this upload (always true for a non-block-wise request)
	Body     []byte
}

// Response is the Arbiter's (and ultimately the handler's) answer.
type Response struct {
	Status Status
	Body   []byte
}

// Handler processes one fully-reassembled request for a resource.
type Handler func(method string, body []byte) (Response, error)

// blockCtx stages one block's worth of bookkeeping before it is
// merged into the resource's persistent lockState, the way the
// teacher's bctx stages one HTTP request's worth of derived fields
// before committing them to cluster state. Pooled because every
// request block passes through Dispatch and allocates one.
type blockCtx struct {
	resource string
	method   string
	msgID    uint16
	final    bool
	body     []byte
}
