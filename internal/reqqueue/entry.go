package reqqueue

import "time"

// entryKey is the ordered pair (−priority_bid, arrival_time). Lexicographic
// min-heap ordering over this pair yields max-bid-first, then oldest-first
// (spec §3, §4.2). Lower key sorts first.
type entryKey struct {
	negPriority int
	arrival     time.Time
}

// less implements the strict total order spec.md §4.2 requires:
// (a,b) < (c,d) iff a<c, or a==c and b<d.
func (k entryKey) less(o entryKey) bool {
	if k.negPriority != o.negPriority {
		return k.negPriority < o.negPriority
	}
	return k.arrival.Before(o.arrival)
}

// Entry pairs a Request with its snapshotted ordering key. Once inserted,
// an Entry's key is never mutated — there is no re-heapify. Priority aging,
// if ever wanted, is implemented by pushing a fresh Entry with a new key,
// not by rewriting an existing one (spec §4.2, §9).
type Entry struct {
	key     entryKey
	Request Request
}

// NewEntry snapshots req's effective priority into an Entry key.
func NewEntry(req Request) Entry {
	return Entry{
		key: entryKey{
			negPriority: -req.PriorityBid,
			arrival:     req.ArrivalTime,
		},
		Request: req,
	}
}
