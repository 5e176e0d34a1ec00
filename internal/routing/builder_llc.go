// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import "sort"

// llcBuilderPlanCount bounds how many per-partition server-choice
// alternatives are generated.
const llcBuilderPlanCount = 5

// LLCBuilder partitions realtime segments by stream partition. Each
// partition has at most one currently-consuming segment and zero or more
// completed segments; a plan assigns the completed segments of a partition
// to one eligible ONLINE server and the consuming segment to the eligible
// CONSUMING server (spec §4.2, §9: CONSUMING + IC enabled is the sole
// "eligible consuming server" criterion).
type LLCBuilder struct{}

func NewLLCBuilder() *LLCBuilder { return &LLCBuilder{} }

type partition struct {
	id        int
	completed []SegmentID
	consuming []SegmentID
}

func (b *LLCBuilder) Compute(_ TableName, ev *ExternalView, ics map[ServerID]InstanceConfig) ([]Plan, error) {
	partitions := groupSegmentsByPartition(ev)
	if len(partitions) == 0 {
		return nil, nil
	}

	// For each partition, precompute: the sorted candidate ONLINE
	// servers eligible to host every completed segment together, and
	// the single chosen eligible CONSUMING server (if any).
	type resolved struct {
		p                partition
		completedServers []ServerID
		consumingServer  ServerID
	}
	resolveds := make([]resolved, 0, len(partitions))
	for _, p := range partitions {
		completedServers := serversHoldingAllOnline(p.completed, ev, ics)
		var consumingServer ServerID
		if len(p.consuming) == 1 {
			candidates := eligibleServers(ev.serversInState(p.consuming[0], SegmentConsuming), ics)
			if len(candidates) > 0 {
				consumingServer = candidates[0]
			}
		}
		resolveds = append(resolveds, resolved{p: p, completedServers: completedServers, consumingServer: consumingServer})
	}

	plans := make([]Plan, 0, llcBuilderPlanCount)
	for planIdx := 0; planIdx < llcBuilderPlanCount; planIdx++ {
		pb := newPlanBuilder()
		for _, r := range resolveds {
			if len(r.completedServers) > 0 {
				server := r.completedServers[planIdx%len(r.completedServers)]
				for _, segment := range r.p.completed {
					pb.assign(server, segment)
				}
			}
			if r.consumingServer != "" {
				for _, segment := range r.p.consuming {
					pb.assign(r.consumingServer, segment)
				}
			}
		}
		plans = append(plans, pb.build())
	}

	return dedupPlans(dropEmptyPlans(plans)), nil
}

// groupSegmentsByPartition considers only this table's LLC segments: an EV
// with HLC segments (no partition/LLC provenance) must not have those
// segments swept up as "completed" LLC segments, or an HLC-only realtime
// table would spuriously get LLC plans too.
func groupSegmentsByPartition(ev *ExternalView) []partition {
	byPartition := make(map[int]*partition)
	order := make([]int, 0)
	for _, segment := range sortedSegmentIDs(ev) {
		meta, ok := ev.Metas[segment]
		if !ok || meta.Family != SegmentFamilyLLC {
			continue
		}
		servable := false
		for _, state := range ev.Segments[segment] {
			if state.eligible() {
				servable = true
				break
			}
		}
		if !servable {
			// No server reports this segment ONLINE or CONSUMING, so no plan
			// can route it; the rest of its partition still routes.
			continue
		}
		p, ok := byPartition[meta.PartitionID]
		if !ok {
			p = &partition{id: meta.PartitionID}
			byPartition[meta.PartitionID] = p
			order = append(order, meta.PartitionID)
		}
		if isConsuming(ev, segment) {
			p.consuming = append(p.consuming, segment)
		} else {
			p.completed = append(p.completed, segment)
		}
	}
	sort.Ints(order)
	out := make([]partition, 0, len(order))
	for _, id := range order {
		out = append(out, *byPartition[id])
	}
	return out
}

// isConsuming reports whether any server reports segment as CONSUMING.
func isConsuming(ev *ExternalView, segment SegmentID) bool {
	for _, state := range ev.Segments[segment] {
		if state == SegmentConsuming {
			return true
		}
	}
	return false
}
