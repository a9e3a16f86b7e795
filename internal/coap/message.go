// Package coap implements the minimal confirmable, block-wise
// (Block1/Block2), Observe-capable datagram transport §6 assumes
// (equivalent to RFC 7252 + RFC 7959), grounded on the teacher's
// length-prefixed PDU framing (transport/pdu.go) and retry/ack idiom
// (transport/sendmsg.go), generalised from long-lived TCP object
// streams to single UDP request/response datagrams.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package coap

import (
	"encoding/binary"
	"fmt"
)

// Type is the message's confirmability class.
type Type uint8

const (
	TypeConfirmable Type = iota
	TypeNonConfirmable
	TypeAck
	TypeReset
)

// Code carries either a request method or a response status,
// distinguished by the message Type at the call site.
type Code uint8

const (
	CodeGET Code = iota + 1
	CodePOST
	CodeDELETE
)

const maxPDU = 64 * 1024

// BlockOption is a Block1 (request body) or Block2 (response body)
// option (RFC 7959): which block, whether more follow, and the
// negotiated block size as a power-of-two exponent (size = 2^(4+Exp)).
type BlockOption struct {
	Num     uint32
	More    bool
	SizeExp uint8
}

func (b BlockOption) size() int { return 1 << (4 + b.SizeExp) }

// Message is one frame of the wire protocol: a request, a response,
// or a bare ACK/RST. Resource and the Observe sequence are carried as
// explicit fields rather than generic CoAP options, since this
// transport only ever needs to name a fixed Service resource path.
type Message struct {
	Type     Type
	Code     Code
	Status   uint8 // valid when this frame is a response or an Observe notification
	MsgID    uint16
	Token    []byte
	Resource string
	Block1   *BlockOption
	Block2   *BlockOption
	Observe  *uint32
	Payload  []byte
}

// pduWriter accumulates an encoded message the way the teacher's pdu
// buffer accumulates a frame payload before it is handed to the
// socket, tracking only a write offset since the Service always
// encodes a message in one pass.
type pduWriter struct {
	buf []byte
}

func (w *pduWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *pduWriter) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *pduWriter) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *pduWriter) bytes(b []byte) {
	w.u16(uint16(len(b)))
	w.buf = append(w.buf, b...)
}
func (w *pduWriter) str(s string) { w.bytes([]byte(s)) }

// Encode renders a Message to its wire form.
func Encode(m Message) ([]byte, error) {
	if len(m.Payload) > maxPDU {
		return nil, fmt.Errorf("coap: payload exceeds %d bytes", maxPDU)
	}
	w := &pduWriter{}
	w.u8(uint8(m.Type))
	w.u8(uint8(m.Code))
	w.u8(m.Status)
	w.u16(m.MsgID)
	w.bytes(m.Token)
	w.str(m.Resource)

	var flags uint8
	if m.Block1 != nil {
		flags |= 1
	}
	if m.Block2 != nil {
		flags |= 2
	}
	if m.Observe != nil {
		flags |= 4
	}
	w.u8(flags)
	if m.Block1 != nil {
		writeBlock(w, *m.Block1)
	}
	if m.Block2 != nil {
		writeBlock(w, *m.Block2)
	}
	if m.Observe != nil {
		w.u32(*m.Observe)
	}
	w.bytes(m.Payload)
	return w.buf, nil
}

func writeBlock(w *pduWriter, b BlockOption) {
	w.u32(b.Num)
	more := uint8(0)
	if b.More {
		more = 1
	}
	w.u8(more)
	w.u8(b.SizeExp)
}

// pduReader walks a decoded buffer with a read offset, mirroring the
// teacher's pdu.roff/woff reassembly bookkeeping.
type pduReader struct {
	buf  []byte
	roff int
}

func (r *pduReader) u8() (uint8, error) {
	if r.roff+1 > len(r.buf) {
		return 0, errShortFrame
	}
	v := r.buf[r.roff]
	r.roff++
	return v, nil
}

func (r *pduReader) u16() (uint16, error) {
	if r.roff+2 > len(r.buf) {
		return 0, errShortFrame
	}
	v := binary.BigEndian.Uint16(r.buf[r.roff:])
	r.roff += 2
	return v, nil
}

func (r *pduReader) u32() (uint32, error) {
	if r.roff+4 > len(r.buf) {
		return 0, errShortFrame
	}
	v := binary.BigEndian.Uint32(r.buf[r.roff:])
	r.roff += 4
	return v, nil
}

func (r *pduReader) bytes() ([]byte, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	if r.roff+int(n) > len(r.buf) {
		return nil, errShortFrame
	}
	b := r.buf[r.roff : r.roff+int(n)]
	r.roff += int(n)
	return b, nil
}

var errShortFrame = fmt.Errorf("coap: short frame")

// Decode parses a Message from its wire form.
func Decode(b []byte) (Message, error) {
	r := &pduReader{buf: b}
	var m Message

	t, err := r.u8()
	if err != nil {
		return m, err
	}
	m.Type = Type(t)

	c, err := r.u8()
	if err != nil {
		return m, err
	}
	m.Code = Code(c)

	status, err := r.u8()
	if err != nil {
		return m, err
	}
	m.Status = status

	m.MsgID, err = r.u16()
	if err != nil {
		return m, err
	}

	token, err := r.bytes()
	if err != nil {
		return m, err
	}
	m.Token = append([]byte(nil), token...)

	resBytes, err := r.bytes()
	if err != nil {
		return m, err
	}
	m.Resource = string(resBytes)

	flags, err := r.u8()
	if err != nil {
		return m, err
	}
	if flags&1 != 0 {
		blk, err := readBlock(r)
		if err != nil {
			return m, err
		}
		m.Block1 = &blk
	}
	if flags&2 != 0 {
		blk, err := readBlock(r)
		if err != nil {
			return m, err
		}
		m.Block2 = &blk
	}
	if flags&4 != 0 {
		obs, err := r.u32()
		if err != nil {
			return m, err
		}
		m.Observe = &obs
	}

	payload, err := r.bytes()
	if err != nil {
		return m, err
	}
	m.Payload = append([]byte(nil), payload...)
	return m, nil
}

func readBlock(r *pduReader) (BlockOption, error) {
	num, err := r.u32()
	if err != nil {
		return BlockOption{}, err
	}
	more, err := r.u8()
	if err != nil {
		return BlockOption{}, err
	}
	sizeExp, err := r.u8()
	if err != nil {
		return BlockOption{}, err
	}
	return BlockOption{Num: num, More: more != 0, SizeExp: sizeExp}, nil
}
