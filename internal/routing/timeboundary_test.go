// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeBoundaryServiceUpdateUsesMaxOnlineEndTime(t *testing.T) {
	svc := NewTimeBoundaryService(time.Minute)
	ev := &ExternalView{
		Table:   "t_OFFLINE",
		Version: 1,
		Segments: map[SegmentID]map[ServerID]SegmentState{
			"seg1": {"s1": SegmentOnline},
			"seg2": {"s1": SegmentOnline},
			"seg3": {"s1": SegmentOffline},
		},
		Metas: map[SegmentID]SegmentMeta{
			"seg1": {EndTimeMillis: 1000},
			"seg2": {EndTimeMillis: 5000},
			"seg3": {EndTimeMillis: 9000},
		},
	}

	err := svc.Update(ev, "ts")
	require.NoError(t, err)

	info, ok := svc.Get("t_OFFLINE")
	require.True(t, ok)
	assert.Equal(t, "ts", info.TimeColumn)
	assert.Equal(t, int64(5000-time.Minute.Milliseconds()), info.BoundaryValue)
}

func TestTimeBoundaryServiceNoOnlineSegmentFails(t *testing.T) {
	svc := NewTimeBoundaryService(time.Minute)
	ev := &ExternalView{
		Table:   "t_OFFLINE",
		Version: 1,
		Segments: map[SegmentID]map[ServerID]SegmentState{
			"seg1": {"s1": SegmentOffline},
		},
		Metas: map[SegmentID]SegmentMeta{"seg1": {EndTimeMillis: 1000}},
	}

	err := svc.Update(ev, "ts")
	assert.Error(t, err)
	_, ok := svc.Get("t_OFFLINE")
	assert.False(t, ok, "a failed update must not leave a partial boundary")
}

func TestTimeBoundaryServiceRemove(t *testing.T) {
	svc := NewTimeBoundaryService(time.Minute)
	ev := &ExternalView{
		Table: "t_OFFLINE", Version: 1,
		Segments: map[SegmentID]map[ServerID]SegmentState{"seg1": {"s1": SegmentOnline}},
		Metas:    map[SegmentID]SegmentMeta{"seg1": {EndTimeMillis: 1000}},
	}
	require.NoError(t, svc.Update(ev, "ts"))
	svc.Remove("t_OFFLINE")
	_, ok := svc.Get("t_OFFLINE")
	assert.False(t, ok)
}
