// Package euiaddr parses and formats the link-layer target node
// addresses carried on the wire (§6 of the specification): an 8-byte
// EUI-64 (or the 6-byte short form zero-extended to 8), rendered as
// colon-separated hex bytes with no leading zeros, and with the U/L
// bit of the first byte flipped relative to the in-memory value — the
// IPv6 interface-identifier convention the original Contiki-NG PLEXI
// plugin follows for its link-layer address debug printing.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package euiaddr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rich-project/plexid/internal/cos"
)

const Size = 8

// ulBit is the universal/local bit of the first octet of a modified
// EUI-64, per RFC 4291 appendix A.
const ulBit = 0x02

// Addr is an 8-byte link-layer target node address. The zero Addr is
// the broadcast address per §3 ("the broadcast address is only valid
// on shared or RX cells").
type Addr [Size]byte

var Broadcast = Addr{}

func (a Addr) IsBroadcast() bool { return a == Broadcast }

// Format renders a in the wire's shortened hex form, flipping the
// U/L bit of the first byte as it goes out.
func (a Addr) Format() string {
	w := a
	w[0] ^= ulBit
	parts := make([]string, Size)
	for i, b := range w {
		parts[i] = strconv.FormatUint(uint64(b), 16)
	}
	return strings.Join(parts, ":")
}

// Parse decodes the wire's shortened hex form back into an Addr,
// flipping the U/L bit back to its in-memory sense. Returns
// cos.ErrBadRequest on any malformed token or wrong field count.
func Parse(s string) (Addr, error) {
	fields := strings.Split(s, ":")
	if len(fields) != Size {
		return Addr{}, cos.NewErrBadRequest("malformed address %q: expected %d fields, got %d", s, Size, len(fields))
	}
	var a Addr
	for i, f := range fields {
		if f == "" || len(f) > 2 {
			return Addr{}, cos.NewErrBadRequest("malformed address %q: bad octet %q", s, f)
		}
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return Addr{}, cos.NewErrBadRequest("malformed address %q: %v", s, err)
		}
		a[i] = byte(v)
	}
	a[0] ^= ulBit
	return a, nil
}

func (a Addr) String() string { return a.Format() }

func (a Addr) GoString() string { return fmt.Sprintf("euiaddr.Addr(%s)", a.Format()) }
