// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import (
	"fmt"
	"sort"
	"strings"
)

// Plan is an immutable server -> segment-set assignment covering every
// queryable segment of one table at one rebuild. Equality is by content, so
// that builders can deduplicate equivalent alternatives before publishing a
// routing table.
type Plan struct {
	assignments map[ServerID]map[SegmentID]struct{}
}

// planBuilder is a mutable accumulator from newPlanBuilder; call build() once done.
type planBuilder struct {
	assignments map[ServerID]map[SegmentID]struct{}
}

func newPlanBuilder() *planBuilder {
	return &planBuilder{assignments: make(map[ServerID]map[SegmentID]struct{})}
}

func (b *planBuilder) assign(server ServerID, segment SegmentID) {
	segs, ok := b.assignments[server]
	if !ok {
		segs = make(map[SegmentID]struct{})
		b.assignments[server] = segs
	}
	segs[segment] = struct{}{}
}

// countFor returns the number of segments currently assigned to server,
// used by the offline builder to pick the least-loaded eligible server.
func (b *planBuilder) countFor(server ServerID) int {
	return len(b.assignments[server])
}

func (b *planBuilder) build() Plan {
	return Plan{assignments: b.assignments}
}

// ServerSet returns the servers participating in this plan, sorted for
// deterministic iteration.
func (p Plan) ServerSet() []ServerID {
	out := make([]ServerID, 0, len(p.assignments))
	for s := range p.assignments {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SegmentsFor returns the segments this plan assigns to server, or nil if
// server does not participate.
func (p Plan) SegmentsFor(server ServerID) map[SegmentID]struct{} {
	return p.assignments[server]
}

// ToMap renders the plan as the server -> segment-set mapping findServers
// returns to callers.
func (p Plan) ToMap() map[ServerID]map[SegmentID]struct{} {
	out := make(map[ServerID]map[SegmentID]struct{}, len(p.assignments))
	for server, segs := range p.assignments {
		cp := make(map[SegmentID]struct{}, len(segs))
		for s := range segs {
			cp[s] = struct{}{}
		}
		out[server] = cp
	}
	return out
}

// Empty reports whether the plan assigns no segments at all.
func (p Plan) Empty() bool {
	return len(p.assignments) == 0
}

// hashKey renders a canonical string used to deduplicate equivalent plans
// produced by a builder (same server->segment-set content, possibly built
// by a different assignment order).
func (p Plan) hashKey() string {
	servers := p.ServerSet()
	var sb strings.Builder
	for _, server := range servers {
		segs := make([]string, 0, len(p.assignments[server]))
		for seg := range p.assignments[server] {
			segs = append(segs, string(seg))
		}
		sort.Strings(segs)
		sb.WriteString(string(server))
		sb.WriteByte(':')
		sb.WriteString(strings.Join(segs, ","))
		sb.WriteByte(';')
	}
	return sb.String()
}

// String renders a debug view: server -> sorted segment list.
func (p Plan) String() string {
	servers := p.ServerSet()
	parts := make([]string, 0, len(servers))
	for _, server := range servers {
		segs := make([]string, 0, len(p.assignments[server]))
		for seg := range p.assignments[server] {
			segs = append(segs, string(seg))
		}
		sort.Strings(segs)
		parts = append(parts, fmt.Sprintf("%s=%v", server, segs))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// dedupPlans drops plans that are content-identical to an earlier one in
// the list, preserving order.
func dedupPlans(plans []Plan) []Plan {
	seen := make(map[string]struct{}, len(plans))
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		key := p.hashKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
