// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import (
	"sync"
	"time"
)

// TimeBoundaryService computes and caches, per hybrid offline table, the
// cutoff timestamp separating offline responsibility (time <= boundary)
// from realtime responsibility (time > boundary).
type TimeBoundaryService struct {
	granularity time.Duration

	mu         sync.RWMutex
	boundaries map[TableName]TimeBoundaryInfo
}

// NewTimeBoundaryService builds a service whose boundary sits one
// granularity unit before the latest observed offline segment end-time.
func NewTimeBoundaryService(granularity time.Duration) *TimeBoundaryService {
	return &TimeBoundaryService{
		granularity: granularity,
		boundaries:  make(map[TableName]TimeBoundaryInfo),
	}
}

// Get returns the cached boundary for an offline table, if any.
func (s *TimeBoundaryService) Get(table TableName) (TimeBoundaryInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.boundaries[table]
	return info, ok
}

// Remove drops a table's cached boundary, used by markDataResourceOffline.
func (s *TimeBoundaryService) Remove(table TableName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.boundaries, table)
}

// Update recomputes and atomically replaces the boundary for an offline
// table's EV: the maximum end-time across its ONLINE segments, minus one
// granularity unit. A table with no ONLINE segments yet leaves the
// previous boundary (if any) untouched and reports ErrTimeBoundaryFailure,
// which callers only log per spec §7.
func (s *TimeBoundaryService) Update(ev *ExternalView, timeColumn string) error {
	var maxEndTime int64 = -1
	found := false
	for segment, meta := range ev.Metas {
		states, ok := ev.Segments[segment]
		if !ok {
			continue
		}
		isOnline := false
		for _, st := range states {
			if st == SegmentOnline {
				isOnline = true
				break
			}
		}
		if !isOnline {
			continue
		}
		found = true
		if meta.EndTimeMillis > maxEndTime {
			maxEndTime = meta.EndTimeMillis
		}
	}
	if !found {
		return ErrTimeBoundaryFailure.WithCausef("no ONLINE segment with end-time metadata for table %s", ev.Table)
	}

	boundary := maxEndTime - s.granularity.Milliseconds()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boundaries[ev.Table] = TimeBoundaryInfo{TimeColumn: timeColumn, BoundaryValue: boundary}
	return nil
}
