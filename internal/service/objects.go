// Package service wires the Registry, Arbiter, Schedule Manager,
// Statistics Engine, and Topology & Vicinity Tracker into one CoAP
// request handler, and binds the Observer/Notification component to
// the periodic/debounced change sources §4.F names. It is the URI
// routing layer §4.A's dispatcher assumes upstream of it: splitting a
// raw resource string into a registered base path, a field-selector
// tail, and parsed query variables.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package service

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// toObject round-trips a wire DTO through JSON to a registry.Object
// field map, so every resource's Object keys exactly match its wire
// tags without a second hand-maintained field list.
func toObject(v any) (map[string]any, error) {
	b, err := jsoniter.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "service: marshal object")
	}
	var m map[string]any
	if err := jsoniter.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "service: unmarshal object")
	}
	return m, nil
}
