// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import "sort"

// hlcBuilderPlanCap bounds the cross-product expansion across consumer
// groups, per spec §4.2 ("up to an implementation cap").
const hlcBuilderPlanCap = 10

// HLCBuilder groups realtime segments by their consumer-group tag and, for
// each group, finds every server holding every segment of that group. Each
// such server forms one candidate assignment of the whole group; plans
// across groups are the cross-product of each group's candidates.
type HLCBuilder struct{}

func NewHLCBuilder() *HLCBuilder { return &HLCBuilder{} }

func (b *HLCBuilder) Compute(_ TableName, ev *ExternalView, ics map[ServerID]InstanceConfig) ([]Plan, error) {
	groups := groupSegmentsByConsumerGroup(ev)
	if len(groups) == 0 {
		return nil, nil
	}

	groupNames := make([]string, 0, len(groups))
	for name := range groups {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)

	// candidatesPerGroup[i] is the sorted list of servers that hold every
	// segment of groupNames[i] in ONLINE state and are IC-eligible.
	candidatesPerGroup := make([][]ServerID, len(groupNames))
	for i, name := range groupNames {
		candidatesPerGroup[i] = serversHoldingAllOnline(groups[name], ev, ics)
	}

	combos := crossProduct(candidatesPerGroup, hlcBuilderPlanCap)
	if len(combos) == 0 {
		return nil, nil
	}

	plans := make([]Plan, 0, len(combos))
	for _, combo := range combos {
		pb := newPlanBuilder()
		for i, server := range combo {
			if server == "" {
				// This group had no eligible candidate at all; it is
				// simply left unrouted in this plan, same graceful
				// degradation as the offline builder.
				continue
			}
			for _, segment := range groups[groupNames[i]] {
				pb.assign(server, segment)
			}
		}
		plans = append(plans, pb.build())
	}
	return dedupPlans(dropEmptyPlans(plans)), nil
}

// groupSegmentsByConsumerGroup considers only this table's HLC segments: an
// EV with both HLC and LLC segments (or an LLC-only EV) must not have its
// non-HLC segments mistaken for an unlabeled consumer group, or an LLC-only
// realtime table would spuriously get HLC plans too.
func groupSegmentsByConsumerGroup(ev *ExternalView) map[string][]SegmentID {
	groups := make(map[string][]SegmentID)
	for _, segment := range sortedSegmentIDs(ev) {
		meta, ok := ev.Metas[segment]
		if !ok || meta.Family != SegmentFamilyHLC {
			continue
		}
		groups[meta.ConsumerGroup] = append(groups[meta.ConsumerGroup], segment)
	}
	return groups
}

// serversHoldingAllOnline returns, sorted, the eligible servers that hold
// every segment in the group with state ONLINE.
func serversHoldingAllOnline(group []SegmentID, ev *ExternalView, ics map[ServerID]InstanceConfig) []ServerID {
	if len(group) == 0 {
		return nil
	}
	counts := make(map[ServerID]int)
	for _, segment := range group {
		for _, server := range ev.serversInState(segment, SegmentOnline) {
			counts[server]++
		}
	}
	out := make([]ServerID, 0)
	for server, count := range counts {
		if count == len(group) {
			out = append(out, server)
		}
	}
	return eligibleServers(out, ics)
}

// crossProduct enumerates up to cap combinations, one choice per group, in
// lexicographic (mixed-radix) order. A group with zero candidates is
// represented by a single "" placeholder so it doesn't zero out the whole
// product — it is simply left unassigned in every resulting plan.
func crossProduct(lists [][]ServerID, cap int) [][]ServerID {
	radices := make([]int, len(lists))
	for i, l := range lists {
		if len(l) == 0 {
			radices[i] = 1
		} else {
			radices[i] = len(l)
		}
	}

	total := 1
	for _, r := range radices {
		total *= r
		if total > cap {
			total = cap
			break
		}
	}
	if total == 0 {
		return nil
	}

	out := make([][]ServerID, 0, total)
	counters := make([]int, len(lists))
	for len(out) < total {
		combo := make([]ServerID, len(lists))
		for i, l := range lists {
			if len(l) == 0 {
				combo[i] = ""
			} else {
				combo[i] = l[counters[i]]
			}
		}
		out = append(out, combo)

		// Increment the mixed-radix counter.
		for i := len(counters) - 1; i >= 0; i-- {
			counters[i]++
			if counters[i] < radices[i] {
				break
			}
			counters[i] = 0
		}
	}
	return out
}
