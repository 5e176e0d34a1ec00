// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

// Package routing implements the broker-side routing table manager: it
// reconciles coordinator-published cluster state into per-table routing
// plans and answers query-time "which servers, which segments" lookups.
package routing

import (
	"strings"
)

// SegmentID names one segment of a table. Opaque to this package.
type SegmentID string

// ServerID names one server instance, resolvable externally to a network
// endpoint. Opaque to this package.
type ServerID string

// TableName is the full coordinator-facing table name, including its
// _OFFLINE or _REALTIME suffix.
type TableName string

const (
	offlineSuffix  = "_OFFLINE"
	realtimeSuffix = "_REALTIME"
)

// TableType partitions a TableName into its offline or realtime physical
// half.
type TableType int

const (
	// TableTypeUnknown is returned for a table name carrying neither
	// recognized suffix.
	TableTypeUnknown TableType = iota
	TableTypeOffline
	TableTypeRealtime
)

func (t TableType) String() string {
	switch t {
	case TableTypeOffline:
		return "OFFLINE"
	case TableTypeRealtime:
		return "REALTIME"
	default:
		return "UNKNOWN"
	}
}

// Type reports whether name carries the offline or realtime suffix.
func (n TableName) Type() TableType {
	switch {
	case strings.HasSuffix(string(n), offlineSuffix):
		return TableTypeOffline
	case strings.HasSuffix(string(n), realtimeSuffix):
		return TableTypeRealtime
	default:
		return TableTypeUnknown
	}
}

// RawName strips the _OFFLINE/_REALTIME suffix, yielding the logical
// (hybrid) table name shared by the offline and realtime physical halves.
func (n TableName) RawName() string {
	s := string(n)
	s = strings.TrimSuffix(s, offlineSuffix)
	s = strings.TrimSuffix(s, realtimeSuffix)
	return s
}

// OfflineName and RealtimeName build the sibling physical table name for a
// raw (suffix-less) table name.
func OfflineName(raw string) TableName  { return TableName(raw + offlineSuffix) }
func RealtimeName(raw string) TableName { return TableName(raw + realtimeSuffix) }

// SegmentState is a server's reported state for one segment.
type SegmentState int

const (
	SegmentOnline SegmentState = iota
	SegmentConsuming
	SegmentOffline
	SegmentDropped
	SegmentError
)

func (s SegmentState) String() string {
	switch s {
	case SegmentOnline:
		return "ONLINE"
	case SegmentConsuming:
		return "CONSUMING"
	case SegmentOffline:
		return "OFFLINE"
	case SegmentDropped:
		return "DROPPED"
	case SegmentError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// eligible reports whether a server in this state may serve queries for the
// segment. Only ONLINE always qualifies; CONSUMING only qualifies for
// realtime low-level-consumer segments, checked by the caller.
func (s SegmentState) eligible() bool {
	return s == SegmentOnline || s == SegmentConsuming
}

// InvalidVersion is the sentinel that forces the next observation of a
// table to trigger a rebuild regardless of the coordinator's reported
// version.
const InvalidVersion int64 = -1

// SegmentFamily distinguishes which realtime consumer model produced a
// segment. A realtime table's segments are either all high-level-consumer
// (grouped by consumer group) or all low-level-consumer (grouped by stream
// partition with explicit consumption progress) — never a mix within the
// same table, but the discriminator lives on the segment, not the table,
// since that is what each builder needs to tell its own segments apart from
// the other family's when both happen to appear in one EV.
type SegmentFamily int

const (
	// SegmentFamilyUnspecified segments belong to neither realtime consumer
	// model; offline segments never set this field.
	SegmentFamilyUnspecified SegmentFamily = iota
	SegmentFamilyHLC
	SegmentFamilyLLC
)

func (f SegmentFamily) String() string {
	switch f {
	case SegmentFamilyHLC:
		return "HLC"
	case SegmentFamilyLLC:
		return "LLC"
	default:
		return "UNSPECIFIED"
	}
}

// SegmentMeta carries a segment's realtime provenance (which consumer family
// produced it, and which consumer group (HLC) or stream partition (LLC) it
// belongs to within that family) and, for offline segments, its end-time.
type SegmentMeta struct {
	Family        SegmentFamily
	ConsumerGroup string
	PartitionID   int
	// EndTimeMillis is the segment's observed end-time, used by offline
	// tables to compute their time boundary.
	EndTimeMillis int64
}

// ExternalView is one versioned coordinator snapshot of a table's segment
// placement: for every segment, which servers hold it and in what state.
type ExternalView struct {
	Table    TableName
	Version  int64
	Segments map[SegmentID]map[ServerID]SegmentState
	// Metas is optional per-segment metadata: for realtime tables the HLC
	// consumer-group tag or LLC partition id, for offline tables the
	// end-time their own time boundary is computed from.
	Metas map[SegmentID]SegmentMeta
	// TimeColumn names the column an offline table's time boundary is
	// expressed over. Empty for tables with no hybrid sibling.
	TimeColumn string
}

// serversInState returns the servers holding segment in the given state, in no
// particular order.
func (ev *ExternalView) serversInState(segment SegmentID, want SegmentState) []ServerID {
	var out []ServerID
	for server, state := range ev.Segments[segment] {
		if state == want {
			out = append(out, server)
		}
	}
	return out
}

// InstanceConfig is one server's registry entry: enablement flags, opaque
// tags, and the coordinator-reported version used for change detection.
type InstanceConfig struct {
	Instance     ServerID
	Enabled      bool
	ShuttingDown bool
	Tags         map[string]string
	Version      int64
}

// eligible reports whether this instance may serve traffic at all.
func (ic InstanceConfig) eligible() bool {
	return ic.Enabled && !ic.ShuttingDown
}

// TimeBoundaryInfo is the cutoff separating an offline table's query
// responsibility (time <= BoundaryValue) from its realtime sibling's
// (time > BoundaryValue).
type TimeBoundaryInfo struct {
	TimeColumn    string
	BoundaryValue int64
}
