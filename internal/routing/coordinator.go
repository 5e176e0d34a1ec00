// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import "context"

// Stat is the version metadata the coordinator returns for a batched
// "has this changed" probe, without paying for the full payload.
type Stat struct {
	Version int64
}

// CoordinatorClient is the narrow interface this package needs from the
// external cluster coordinator (a ZooKeeper-backed store in the system this
// module reimplements; see internal/coordclient for an etcd-backed
// implementation). Modeled as a capability interface per spec §9: no
// inheritance hierarchy, just the four operations the manager calls.
type CoordinatorClient interface {
	// FetchExternalView returns the current EV for table, or nil if the
	// table has no EV recorded (e.g. has not been created, or was just
	// dropped).
	FetchExternalView(ctx context.Context, table TableName) (*ExternalView, error)

	// FetchInstanceConfigs returns every registered server's current
	// config.
	FetchInstanceConfigs(ctx context.Context) ([]InstanceConfig, error)

	// FetchStats returns, in the same order as tables, the EV version
	// stat for each table, or nil for a table with no recorded EV. A
	// single batched round trip, used to detect which tables changed
	// without re-fetching every EV body.
	FetchStats(ctx context.Context, tables []TableName) ([]*Stat, error)

	// FetchInstanceStats is the FetchStats analogue for instance
	// configs, keyed by instance rather than table.
	FetchInstanceStats(ctx context.Context, instances []ServerID) ([]*Stat, error)
}
