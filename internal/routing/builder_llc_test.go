// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLCBuilderSplitsCompletedAndConsuming(t *testing.T) {
	ev := &ExternalView{
		Table:   "t_REALTIME",
		Version: 1,
		Segments: map[SegmentID]map[ServerID]SegmentState{
			"completed1": {"s1": SegmentOnline},
			"consuming1": {"s2": SegmentConsuming},
		},
		Metas: map[SegmentID]SegmentMeta{
			"completed1": {Family: SegmentFamilyLLC, PartitionID: 0},
			"consuming1": {Family: SegmentFamilyLLC, PartitionID: 0},
		},
	}
	ics := map[ServerID]InstanceConfig{"s1": enabledIC("s1"), "s2": enabledIC("s2")}

	b := NewLLCBuilder()
	plans, err := b.Compute(ev.Table, ev, ics)
	require.NoError(t, err)
	require.NotEmpty(t, plans)

	for _, plan := range plans {
		assert.Contains(t, plan.SegmentsFor("s1"), SegmentID("completed1"))
		assert.Contains(t, plan.SegmentsFor("s2"), SegmentID("consuming1"))
	}
}

func TestLLCBuilderRotatesCompletedServerChoiceAcrossPlans(t *testing.T) {
	ev := &ExternalView{
		Table:   "t_REALTIME",
		Version: 1,
		Segments: map[SegmentID]map[ServerID]SegmentState{
			"completed1": {"s1": SegmentOnline, "s2": SegmentOnline},
		},
		Metas: map[SegmentID]SegmentMeta{
			"completed1": {Family: SegmentFamilyLLC, PartitionID: 0},
		},
	}
	ics := map[ServerID]InstanceConfig{"s1": enabledIC("s1"), "s2": enabledIC("s2")}

	b := NewLLCBuilder()
	plans, err := b.Compute(ev.Table, ev, ics)
	require.NoError(t, err)
	require.NotEmpty(t, plans)

	servers := map[ServerID]bool{}
	for _, plan := range plans {
		for _, s := range plan.ServerSet() {
			servers[s] = true
		}
	}
	assert.True(t, servers["s1"] && servers["s2"], "rotation should eventually exercise both eligible completed-segment servers")
}

func TestLLCBuilderNoConsumingServerLeavesPartitionIncomplete(t *testing.T) {
	ev := &ExternalView{
		Table:   "t_REALTIME",
		Version: 1,
		Segments: map[SegmentID]map[ServerID]SegmentState{
			"completed1": {"s1": SegmentOnline},
			"consuming1": {"s2": SegmentError},
		},
		Metas: map[SegmentID]SegmentMeta{
			"completed1": {Family: SegmentFamilyLLC, PartitionID: 0},
			"consuming1": {Family: SegmentFamilyLLC, PartitionID: 0},
		},
	}
	ics := map[ServerID]InstanceConfig{"s1": enabledIC("s1"), "s2": enabledIC("s2")}

	b := NewLLCBuilder()
	plans, err := b.Compute(ev.Table, ev, ics)
	require.NoError(t, err)
	for _, plan := range plans {
		assert.Contains(t, plan.SegmentsFor("s1"), SegmentID("completed1"))
		assert.Nil(t, plan.SegmentsFor("s2"))
	}
}

func TestLLCBuilderIgnoresHLCSegments(t *testing.T) {
	ev := &ExternalView{
		Table:   "t_REALTIME",
		Version: 1,
		Segments: map[SegmentID]map[ServerID]SegmentState{
			"seg1": {"s1": SegmentOnline},
		},
		Metas: map[SegmentID]SegmentMeta{
			"seg1": {Family: SegmentFamilyHLC, ConsumerGroup: "cg1"},
		},
	}
	ics := map[ServerID]InstanceConfig{"s1": enabledIC("s1")}

	b := NewLLCBuilder()
	plans, err := b.Compute(ev.Table, ev, ics)
	require.NoError(t, err)
	assert.Empty(t, plans, "an HLC-only EV must not yield LLC plans off the same segments")
}

func TestLLCBuilderDropsAllEmptyPlan(t *testing.T) {
	ev := &ExternalView{
		Table:   "t_REALTIME",
		Version: 1,
		Segments: map[SegmentID]map[ServerID]SegmentState{
			"consuming1": {"s1": SegmentError},
		},
		Metas: map[SegmentID]SegmentMeta{
			"consuming1": {Family: SegmentFamilyLLC, PartitionID: 0},
		},
	}
	ics := map[ServerID]InstanceConfig{"s1": enabledIC("s1")}

	b := NewLLCBuilder()
	plans, err := b.Compute(ev.Table, ev, ics)
	require.NoError(t, err)
	assert.Empty(t, plans, "no partition has an eligible server, so no plan should publish")
}
