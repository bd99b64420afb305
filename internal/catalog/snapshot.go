package catalog

import "time"

// Entry is one named catalog item: the base ids it declares and its price tree.
type Entry struct {
	Name    string
	BaseIDs []int
	Prices  *Node
}

// Snapshot is an immutable view of one successful catalog fetch. It is replaced
// wholesale by the next fetch and never modified after NewSnapshot returns.
type Snapshot struct {
	Entries   []Entry
	FetchedAt time.Time
	Index     map[int][]*Entry
	Version   uint64
}

// NewSnapshot builds a snapshot and its base id index in one pass over entries.
func NewSnapshot(entries []Entry, fetchedAt time.Time, version uint64) *Snapshot {
	s := &Snapshot{
		Entries:   entries,
		FetchedAt: fetchedAt,
		Index:     make(map[int][]*Entry),
		Version:   version,
	}
	for i := range s.Entries {
		entry := &s.Entries[i]
		seen := make(map[int]bool, len(entry.BaseIDs))
		for _, id := range entry.BaseIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			s.Index[id] = append(s.Index[id], entry)
		}
	}
	return s
}

// Candidates returns the entries declaring baseID, in document order.
func (s *Snapshot) Candidates(baseID int) []*Entry {
	if s == nil {
		return nil
	}
	return s.Index[baseID]
}

// Age reports how old the snapshot is at now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
