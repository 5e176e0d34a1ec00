// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import "github.com/looplab/fsm"

// Rebuild lifecycle states and events, purely for observability: the FSM
// records how a table's last buildRoutingTable call went, mirroring the
// teacher's per-operation shard FSM. It never gates or changes rebuild
// semantics, which are driven entirely by BuildRoutingTable itself.
const (
	rebuildStateIdle      = "Idle"
	rebuildStateBuilding  = "Building"
	rebuildStatePublished = "Published"
	rebuildStateFailed    = "Failed"

	rebuildEventStart     = "Start"
	rebuildEventPublished = "Published"
	rebuildEventFailed    = "Failed"
)

func newRebuildFSM() *fsm.FSM {
	return fsm.NewFSM(
		rebuildStateIdle,
		fsm.Events{
			{Name: rebuildEventStart, Src: []string{rebuildStateIdle, rebuildStatePublished, rebuildStateFailed}, Dst: rebuildStateBuilding},
			{Name: rebuildEventPublished, Src: []string{rebuildStateBuilding}, Dst: rebuildStatePublished},
			{Name: rebuildEventFailed, Src: []string{rebuildStateBuilding}, Dst: rebuildStateFailed},
		},
		fsm.Callbacks{},
	)
}
