// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import "github.com/brokerrouter/routingtable/pkg/coderr"

// Error kinds per the manager's error handling design: each is surfaced to
// callers or logged and recovered from as documented alongside it.
var (
	// ErrConflictingOptions is returned when a findServers request sets
	// both FORCE_HLC and FORCE_LLC.
	ErrConflictingOptions = coderr.NewCodeError(coderr.InvalidParams, "conflicting routing options: FORCE_HLC and FORCE_LLC both set")

	// ErrUnsatisfiableRoutingOption is returned when a forced consumer
	// model has no published plans for the requested table.
	ErrUnsatisfiableRoutingOption = coderr.NewCodeError(coderr.InvalidParams, "requested routing option is unsatisfiable for this table")

	// ErrBuilderFailure wraps a routing-table builder's failure to
	// produce plans from a given external view and instance set.
	ErrBuilderFailure = coderr.NewCodeError(coderr.Internal, "routing table builder failed")

	// ErrCoordinatorFetchFailure wraps a failed coordinator round-trip;
	// treated identically to a builder failure for the affected table.
	ErrCoordinatorFetchFailure = coderr.NewCodeError(coderr.Unavailable, "coordinator fetch failed")

	// ErrTimeBoundaryFailure is logged only; the last-published plans
	// remain in effect.
	ErrTimeBoundaryFailure = coderr.NewCodeError(coderr.Internal, "time boundary computation failed")

	// ErrTableNotFound is returned by FindServers for a table name that
	// carries neither the _OFFLINE nor the _REALTIME suffix. A suffixed
	// table the manager has never observed gets an empty result instead.
	ErrTableNotFound = coderr.NewCodeError(coderr.NotFound, "table not found")
)
