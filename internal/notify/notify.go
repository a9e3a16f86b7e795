// Package notify implements the Observer / Notification component
// (§4.F): per-resource debounce for the topology resource, and
// periodic-schedule pushes for the link/queue/vicinity resources.
// Grounded on the teacher's periodic-cleanup goroutine shape
// (xact/xreg's registry sweep, re-purposed here to coalesce change
// signals instead of prune stale entries).
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package notify

import (
	"sync"
	"time"
)

// Transport is the downstream delivery interface (§4.F: "Downstream
// delivery is an interface... so the notification layer has no
// dependency on the concrete CoAP transport").
type Transport interface {
	Notify(path string, body []byte)
}

// Notifier coalesces change signals for the topology resource and
// drives periodic pushes for the others.
type Notifier struct {
	transport Transport
	delay     time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New(transport Transport, debounceDelay time.Duration) *Notifier {
	return &Notifier{transport: transport, delay: debounceDelay, timers: make(map[string]*time.Timer)}
}

// SignalTopologyChange debounces a topology-resource change by
// DEBOUNCE_DELAY (5s default): "a new signal during the window
// restarts the timer" (§4.F).
func (n *Notifier) SignalTopologyChange(snapshot func() []byte) {
	const path = "rpl/dag"
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.timers[path]; ok {
		t.Stop()
	}
	n.timers[path] = time.AfterFunc(n.delay, func() {
		n.transport.Notify(path, snapshot())
	})
}

// PeriodicTask adapts a resource's scheduled push to hk.CallFunc's
// signature, without this package importing internal/hk.
func (n *Notifier) PeriodicTask(path string, period time.Duration, snapshot func() []byte) func() time.Duration {
	return func() time.Duration {
		n.transport.Notify(path, snapshot())
		return period
	}
}
