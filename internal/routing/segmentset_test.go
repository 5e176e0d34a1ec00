// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanBuilderAssignAndQuery(t *testing.T) {
	pb := newPlanBuilder()
	pb.assign("s1", "seg1")
	pb.assign("s1", "seg2")
	pb.assign("s2", "seg3")

	assert.Equal(t, 2, pb.countFor("s1"))
	assert.Equal(t, 1, pb.countFor("s2"))
	assert.Equal(t, 0, pb.countFor("s3"))

	plan := pb.build()
	assert.ElementsMatch(t, []ServerID{"s1", "s2"}, plan.ServerSet())
	assert.Len(t, plan.SegmentsFor("s1"), 2)
	assert.False(t, plan.Empty())
}

func TestPlanEmpty(t *testing.T) {
	plan := newPlanBuilder().build()
	assert.True(t, plan.Empty())
}

func TestPlanToMapIsACopy(t *testing.T) {
	pb := newPlanBuilder()
	pb.assign("s1", "seg1")
	plan := pb.build()

	m := plan.ToMap()
	m["s1"]["seg2"] = struct{}{}

	require.Len(t, plan.SegmentsFor("s1"), 1, "mutating the returned map must not affect the plan")
}

func TestDedupPlansDropsContentIdenticalPlans(t *testing.T) {
	build := func() Plan {
		pb := newPlanBuilder()
		pb.assign("s1", "seg1")
		pb.assign("s2", "seg2")
		return pb.build()
	}
	different := func() Plan {
		pb := newPlanBuilder()
		pb.assign("s2", "seg1")
		pb.assign("s1", "seg2")
		return pb.build()
	}

	plans := []Plan{build(), build(), different()}
	out := dedupPlans(plans)
	require.Len(t, out, 2)
}

func TestHashKeyStableUnderAssignmentOrder(t *testing.T) {
	pb1 := newPlanBuilder()
	pb1.assign("s1", "seg1")
	pb1.assign("s2", "seg2")

	pb2 := newPlanBuilder()
	pb2.assign("s2", "seg2")
	pb2.assign("s1", "seg1")

	assert.Equal(t, pb1.build().hashKey(), pb2.build().hashKey())
}
