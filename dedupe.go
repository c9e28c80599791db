package sentinel

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"
)

const (
	// dedupeWindow is the trailing interval during which a repeated event is
	// suppressed.
	dedupeWindow = 2 * time.Second

	// dedupeShardCount spreads fingerprints over independent shards so
	// unrelated events do not contend on a single lock.
	dedupeShardCount = 16

	// dedupeShardSize bounds each shard; the oldest fingerprints are evicted
	// first.
	dedupeShardSize = 128
)

// Deduplicator suppresses near-immediate repeats of an already-sent event.
// Suppressed events never enter the pipeline and are not counted as discards.
//
// Safe for concurrent use.
type Deduplicator struct {
	disabled bool
	now      func() time.Time
	shards   [dedupeShardCount]dedupeShard
}

type dedupeShard struct {
	mu    sync.Mutex
	seen  map[uint64]time.Time
	order []uint64
}

// NewDeduplicator returns a Deduplicator. When disabled is true, ShouldSend
// always returns true.
func NewDeduplicator(disabled bool) *Deduplicator {
	d := &Deduplicator{disabled: disabled, now: time.Now}
	if !disabled {
		for i := range d.shards {
			d.shards[i].seen = make(map[uint64]time.Time, dedupeShardSize)
		}
	}
	return d
}

// ShouldSend reports whether the event should proceed through the pipeline.
// It returns false when an event with an identical fingerprint was accepted
// within the dedupe window.
func (d *Deduplicator) ShouldSend(event *Event) bool {
	if d == nil || d.disabled || event == nil {
		return true
	}

	fp := eventFingerprint(event)
	shard := &d.shards[fp%dedupeShardCount]
	now := d.now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if seenAt, ok := shard.seen[fp]; ok {
		if now.Sub(seenAt) < dedupeWindow {
			return false
		}
		shard.seen[fp] = now
		return true
	}

	shard.seen[fp] = now
	shard.order = append(shard.order, fp)
	for len(shard.order) > dedupeShardSize {
		oldest := shard.order[0]
		shard.order = shard.order[1:]
		delete(shard.seen, oldest)
	}
	return true
}

// eventFingerprint computes a stable identity hash for the event: the explicit
// fingerprint if supplied, otherwise the exception type, value and top stack
// frames, otherwise the message.
func eventFingerprint(event *Event) uint64 {
	h := fnv.New64a()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}

	write(event.Type)

	if len(event.Fingerprint) > 0 {
		for _, part := range event.Fingerprint {
			write(part)
		}
		return h.Sum64()
	}

	if len(event.Exception) > 0 {
		for _, exc := range event.Exception {
			write(exc.Type)
			write(exc.Value)
			if exc.Stacktrace == nil {
				continue
			}
			frames := exc.Stacktrace.Frames
			// The newest frames carry the identity; frames are stored oldest
			// first.
			start := len(frames) - 4
			if start < 0 {
				start = 0
			}
			for _, frame := range frames[start:] {
				write(frame.Module)
				write(frame.Function)
				write(strconv.Itoa(frame.Lineno))
			}
		}
		return h.Sum64()
	}

	write(event.Message)
	return h.Sum64()
}
