/*
 * Copyright (c) 2024, RICH project contributors.
 */
package coap

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rich-project/plexid/internal/nlog"
)

// RequestHandler answers one fully-formed request with a response
// message; MsgID/Type/Token are filled in by the Server around it.
type RequestHandler func(req Message) Message

// subscriber is one Observe registration: a resource, a client
// address, the token it registered with, and the next sequence
// number to stamp on a notification (§6's Observe extension).
type subscriber struct {
	addr  net.Addr
	token []byte
	seq   uint32
}

func subKey(addr net.Addr, token []byte) string {
	return addr.String() + "/" + string(token)
}

// Server is the Service's transport endpoint (§6): it serves
// requests on a single receive loop (§5's single-threaded cooperative
// model — there is exactly one goroutine processing inbound
// requests) and delivers Observe notifications on a separate path so
// a slow/lossy subscriber never blocks request processing.
type Server struct {
	pc      net.PacketConn
	handler RequestHandler

	mu          sync.Mutex
	pendingAcks map[uint16]chan struct{}
	subsByPath  map[string]map[string]*subscriber
	nextMsgID   uint16
}

func NewServer(pc net.PacketConn, handler RequestHandler) *Server {
	return &Server{
		pc:          pc,
		handler:     handler,
		pendingAcks: make(map[uint16]chan struct{}),
		subsByPath:  make(map[string]map[string]*subscriber),
	}
}

// Serve runs the single request-processing loop until ctx is done or
// the socket errors. It deliberately never spawns a goroutine per
// request: §5 requires the request loop, MAC callbacks, and periodic
// timers to interleave cooperatively, never run data-parallel.
func (s *Server) Serve(ctx context.Context) error {
	buf := make([]byte, maxPDU)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if dl, ok := ctx.Deadline(); ok {
			_ = s.pc.SetReadDeadline(dl)
		} else {
			_ = s.pc.SetReadDeadline(time.Now().Add(time.Second))
		}
		n, addr, err := s.pc.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		msg, err := Decode(buf[:n])
		if err != nil {
			nlog.Warningf("coap: dropping malformed frame from %s: %v", addr, err)
			continue
		}
		s.handleMessage(msg, addr)
	}
}

func (s *Server) handleMessage(msg Message, addr net.Addr) {
	if msg.Type == TypeAck || msg.Type == TypeReset {
		s.mu.Lock()
		if ch, ok := s.pendingAcks[msg.MsgID]; ok {
			close(ch)
			delete(s.pendingAcks, msg.MsgID)
		}
		s.mu.Unlock()
		return
	}

	if msg.Observe != nil && *msg.Observe == 0 {
		s.subscribe(msg.Resource, addr, msg.Token)
	}

	resp := s.handler(msg)
	resp.MsgID = msg.MsgID
	resp.Token = msg.Token
	resp.Resource = msg.Resource
	if msg.Type == TypeConfirmable {
		resp.Type = TypeAck
	} else {
		resp.Type = TypeNonConfirmable
	}

	b, err := Encode(resp)
	if err != nil {
		nlog.Warningf("coap: encoding response to %s: %v", addr, err)
		return
	}
	if _, err := s.pc.WriteTo(b, addr); err != nil {
		nlog.Warningf("coap: writing response to %s: %v", addr, err)
	}
}

func (s *Server) subscribe(path string, addr net.Addr, token []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, ok := s.subsByPath[path]
	if !ok {
		subs = make(map[string]*subscriber)
		s.subsByPath[path] = subs
	}
	subs[subKey(addr, token)] = &subscriber{addr: addr, token: append([]byte(nil), token...)}
}

// Notify implements the Observer component's delivery interface
// (§4.F: `Transport.Notify(path, body)`): it pushes the new
// representation to every subscriber of path, each as an
// independently-retried confirmable message so one unreachable
// subscriber cannot stall delivery to the others.
func (s *Server) Notify(path string, body []byte) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subsByPath[path]))
	for _, sub := range s.subsByPath[path] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		s.mu.Lock()
		sub.seq++
		seq := sub.seq
		s.mu.Unlock()
		msg := Message{
			Type: TypeConfirmable, Status: statusContent,
			Resource: path, Token: sub.token, Observe: &seq, Payload: body,
		}
		go func(addr net.Addr, m Message) {
			if err := s.sendConfirmable(context.Background(), addr, m, 4, 500*time.Millisecond); err != nil {
				nlog.Warningf("coap: notify %s to %s: %v", path, addr, err)
			}
		}(sub.addr, msg)
	}
}

const statusContent uint8 = 0x45 // CoAP 2.05 Content, by convention; the Service only compares these symbolically

func (s *Server) sendConfirmable(ctx context.Context, addr net.Addr, msg Message, maxRetries int, timeout time.Duration) error {
	s.mu.Lock()
	s.nextMsgID++
	msg.MsgID = s.nextMsgID
	ackCh := make(chan struct{})
	s.pendingAcks[msg.MsgID] = ackCh
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pendingAcks, msg.MsgID)
		s.mu.Unlock()
	}()

	b, err := Encode(msg)
	if err != nil {
		return err
	}

	backoff := timeout
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if _, err := s.pc.WriteTo(b, addr); err != nil {
			return err
		}
		select {
		case <-ackCh:
			return nil
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("coap: %s did not ack message %d after %d attempts", addr, msg.MsgID, maxRetries+1)
}
