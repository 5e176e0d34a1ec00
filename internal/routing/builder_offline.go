// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

// offlineBuilderPlanCount bounds how many load-balanced alternatives the
// offline builder produces; random selection across them approximates
// uniform per-server load (spec §4.2).
const offlineBuilderPlanCount = 5

// OfflineBuilder assigns every segment of an offline table to exactly one
// eligible (ONLINE, enabled, not-shutting-down) server, balancing the
// number of segments assigned to each server within a plan.
type OfflineBuilder struct{}

func NewOfflineBuilder() *OfflineBuilder { return &OfflineBuilder{} }

func (b *OfflineBuilder) Compute(_ TableName, ev *ExternalView, ics map[ServerID]InstanceConfig) ([]Plan, error) {
	segments := sortedSegmentIDs(ev)
	if len(segments) == 0 {
		return nil, nil
	}

	plans := make([]Plan, 0, offlineBuilderPlanCount)
	for planIdx := 0; planIdx < offlineBuilderPlanCount; planIdx++ {
		pb := newPlanBuilder()
		// Rotate the segment processing order per plan so that, across
		// the returned alternatives, different segments get first pick
		// of the least-loaded server — this is what makes random
		// selection across plans approximate uniform load.
		offset := planIdx % len(segments)
		for i := range segments {
			segment := segments[(i+offset)%len(segments)]
			candidates := eligibleServers(ev.serversInState(segment, SegmentOnline), ics)
			if len(candidates) == 0 {
				// No eligible server can serve this segment right now;
				// the table still routes for every other segment.
				continue
			}
			pb.assign(pickLeastLoaded(pb, candidates), segment)
		}
		plans = append(plans, pb.build())
	}

	return dedupPlans(dropEmptyPlans(plans)), nil
}

// pickLeastLoaded returns the eligible candidate with the fewest segments
// already assigned in pb, breaking ties uniformly at random so that
// otherwise-equal candidates aren't always favored in the same order.
func pickLeastLoaded(pb *planBuilder, candidates []ServerID) ServerID {
	best := candidates[0]
	bestCount := pb.countFor(best)
	tied := []ServerID{best}
	for _, c := range candidates[1:] {
		count := pb.countFor(c)
		switch {
		case count < bestCount:
			best, bestCount = c, count
			tied = []ServerID{c}
		case count == bestCount:
			tied = append(tied, c)
		}
	}
	return tied[randIndex(len(tied))]
}
