/*
 * Copyright (c) 2024, RICH project contributors.
 */
package topology

import (
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/tidwall/buntdb"
)

const pheromoneIndex = "pheromone"

// record is the JSON shape stored under each peer's key in the buntdb
// instance; buntdb's IndexJSON ordering reads the "pheromone" field
// directly off this encoding.
type record struct {
	Pheromone int   `json:"pheromone"`
	Timestamp int64 `json:"timestamp"`
}

// Entry is a snapshot of one vicinity record for GET mac/vicinity.
type Entry struct {
	Peer      euiaddr.Addr
	Pheromone int
	Timestamp time.Time
}

// Tracker is the per-neighbour pheromone-decay freshness table (§4.E,
// §3 "vicinity entry"). It holds at most MaxProximates entries, kept
// in an in-memory buntdb instance indexed on pheromone so the
// minimum-pheromone eviction victim is found in O(log n) rather than
// by a linear scan.
type Tracker struct {
	db   *buntdb.DB
	max  int // MaxProximates
	chunk int
	decay int
	ceiling int
	window time.Duration
}

func NewTracker(maxProximates, chunk, decay, ceiling int, window time.Duration) (*Tracker, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	if err := db.CreateIndex(pheromoneIndex, "*", buntdb.IndexJSON("pheromone")); err != nil {
		db.Close()
		return nil, err
	}
	return &Tracker{db: db, max: maxProximates, chunk: chunk, decay: decay, ceiling: ceiling, window: window}, nil
}

func (t *Tracker) Close() error { return t.db.Close() }

// Observe implements the vicinity update rule (§4.E): "for every
// received and every acknowledged sent frame, look up the peer
// address; if present, set timestamp=now and add PHEROMONE_CHUNK
// (saturating). If absent and capacity remains, insert. If absent and
// at capacity, evict the entry with the minimum pheromone."
func (t *Tracker) Observe(peer euiaddr.Addr, now time.Time) error {
	key := peer.Format()
	return t.db.Update(func(tx *buntdb.Tx) error {
		if existing, err := tx.Get(key); err == nil {
			var rec record
			if err := jsoniter.UnmarshalFromString(existing, &rec); err != nil {
				return err
			}
			rec.Pheromone = saturatingAdd(rec.Pheromone, t.chunk, t.ceiling)
			rec.Timestamp = now.UnixNano()
			return setRecord(tx, key, rec)
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}

		count := 0
		_ = tx.AscendKeys("*", func(_, _ string) bool { count++; return count < t.max })
		if count >= t.max {
			if victim, ok := minPheromoneKey(tx); ok {
				if _, err := tx.Delete(victim); err != nil {
					return err
				}
			}
		}
		return setRecord(tx, key, record{Pheromone: t.chunk, Timestamp: now.UnixNano()})
	})
}

// Decay is the periodic decay task (§4.E), registered on the
// housekeeper with period PHEROMONE_WINDOW: "for each entry where
// (now - timestamp) > PHEROMONE_WINDOW, subtract PHEROMONE_DECAY from
// its pheromone. An entry whose pheromone falls to <= 0 is removed."
// DecayTask wraps it as a hk.CallFunc that returns the window, so the
// task re-arms itself.
func (t *Tracker) Decay(now time.Time) {
	_ = t.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		_ = tx.AscendKeys("*", func(k, _ string) bool { keys = append(keys, k); return true })

		var toDelete []string
		for _, k := range keys {
			v, err := tx.Get(k)
			if err != nil {
				continue
			}
			var rec record
			if err := jsoniter.UnmarshalFromString(v, &rec); err != nil {
				continue
			}
			if now.Sub(time.Unix(0, rec.Timestamp)) <= t.window {
				continue
			}
			rec.Pheromone -= t.decay
			if rec.Pheromone <= 0 {
				toDelete = append(toDelete, k)
				continue
			}
			if err := setRecord(tx, k, rec); err != nil {
				return err
			}
		}
		for _, k := range toDelete {
			if _, err := tx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns every vicinity entry, ascending by pheromone.
func (t *Tracker) List() []Entry {
	var out []Entry
	_ = t.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(pheromoneIndex, func(k, v string) bool {
			var rec record
			if err := jsoniter.UnmarshalFromString(v, &rec); err != nil {
				return true
			}
			addr, err := euiaddr.Parse(k)
			if err != nil {
				return true
			}
			out = append(out, Entry{Peer: addr, Pheromone: rec.Pheromone, Timestamp: time.Unix(0, rec.Timestamp)})
			return true
		})
	})
	return out
}

// Len reports the current entry count, for the |entries| <=
// MAX_PROXIMATES invariant check in tests.
func (t *Tracker) Len() int {
	n := 0
	_ = t.db.View(func(tx *buntdb.Tx) error {
		c, err := tx.Len()
		n = c
		return err
	})
	return n
}

// DecayTask adapts Decay to hk.CallFunc's signature (a zero-arg
// function returning the next-fire delay) without internal/topology
// importing internal/hk.
func (t *Tracker) DecayTask() func() time.Duration {
	return func() time.Duration {
		t.Decay(time.Now())
		return t.window
	}
}

func minPheromoneKey(tx *buntdb.Tx) (string, bool) {
	var key string
	found := false
	_ = tx.Ascend(pheromoneIndex, func(k, _ string) bool {
		key = k
		found = true
		return false
	})
	return key, found
}

func setRecord(tx *buntdb.Tx, key string, rec record) error {
	b, err := jsoniter.MarshalToString(rec)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(key, b, nil)
	return err
}

func saturatingAdd(v, delta, ceiling int) int {
	v += delta
	if v > ceiling {
		return ceiling
	}
	return v
}
