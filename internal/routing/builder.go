// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import (
	"crypto/rand"
	"math/big"
	"sort"
)

// Builder computes the list of equivalent routing plans for one table from
// a single external-view snapshot and the currently relevant instance
// configs. Implementations never error on empty input — an empty or fully
// unavailable EV simply yields an empty plan list, per spec §4.2.
type Builder interface {
	Compute(table TableName, ev *ExternalView, ics map[ServerID]InstanceConfig) ([]Plan, error)
}

// eligibleServers filters a candidate server list down to those with an
// enabled, non-shutting-down instance config. Unknown servers (no IC on
// record) are never eligible — invariant 4 in spec §3.
func eligibleServers(candidates []ServerID, ics map[ServerID]InstanceConfig) []ServerID {
	out := make([]ServerID, 0, len(candidates))
	for _, s := range candidates {
		ic, ok := ics[s]
		if ok && ic.eligible() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// sortedSegmentIDs returns ev's segment keys in a stable order, so
// builders are deterministic given identical inputs.
func sortedSegmentIDs(ev *ExternalView) []SegmentID {
	out := make([]SegmentID, 0, len(ev.Segments))
	for seg := range ev.Segments {
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// randIndex picks a uniform index in [0, n) using crypto/rand, matching
// the teacher's RandomNodePicker/RandomBalancedShardPicker tie-breaking
// idiom rather than a manager-wide seeded PRNG threaded through builders.
func randIndex(n int) int {
	if n <= 1 {
		return 0
	}
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(idx.Int64())
}

// dropEmptyPlans discards plans with no assignments at all, so a table whose
// segments currently have no eligible server reports no plans rather than a
// single plan that assigns nothing — otherwise callers see hasHLC/hasLLC as
// true for a family with no real coverage.
func dropEmptyPlans(plans []Plan) []Plan {
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		if !p.Empty() {
			out = append(out, p)
		}
	}
	return out
}

// relevantInstances returns the subset of ics referenced by any server
// appearing in plans, used to populate lastIcByTable after a successful
// build (spec §4.5 step 3).
func relevantInstances(plans []Plan, ics map[ServerID]InstanceConfig) map[ServerID]InstanceConfig {
	out := make(map[ServerID]InstanceConfig)
	for _, p := range plans {
		for _, server := range p.ServerSet() {
			if ic, ok := ics[server]; ok {
				out[server] = ic
			}
		}
	}
	return out
}
