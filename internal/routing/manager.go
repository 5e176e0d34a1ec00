// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brokerrouter/routingtable/pkg/log"
)

// Manager is the hub every broker query and every coordinator notification
// goes through: it holds the published plan sets for every known table, the
// bookkeeping needed to tell whether a rebuild is required, and drives the
// builders, selector and time-boundary service that turn coordinator state
// into query-ready plans.
//
// Plan publication is lock-free for readers: each of offlinePlans, hlcPlans
// and llcPlans is a sync.Map from TableName to an immutable []Plan, and a
// rebuild publishes a brand new slice with a single Store call. A reader's
// Load always observes either the previous complete plan set or the new
// complete plan set, never a partial one. Everything else a rebuild touches
// — lastEvVersion, lastIcByTable, lastIcByInstance, instanceToTables, and
// the per-table rebuild FSMs — is protected by indexMu, since those maps are
// mutated as a set on every build and change-processing pass.
type Manager struct {
	coordinator CoordinatorClient

	offlineBuilder Builder
	hlcBuilder     Builder
	llcBuilder     Builder

	selector       Selector
	timeBoundaries *TimeBoundaryService
	metrics        Metrics

	offlinePlans sync.Map // TableName -> []Plan
	hlcPlans     sync.Map // TableName -> []Plan
	llcPlans     sync.Map // TableName -> []Plan

	indexMu          sync.Mutex
	lastEvVersion    map[TableName]int64
	lastIcByTable    map[TableName]map[ServerID]InstanceConfig
	lastIcByInstance map[ServerID]InstanceConfig
	instanceToTables map[ServerID]map[TableName]struct{}
	rebuildFSMs      map[TableName]*fsm.FSM

	hostID string
}

// ManagerOption customizes NewManager's defaults.
type ManagerOption func(*Manager)

func WithSelector(s Selector) ManagerOption     { return func(m *Manager) { m.selector = s } }
func WithMetrics(metrics Metrics) ManagerOption { return func(m *Manager) { m.metrics = metrics } }
func WithHostID(hostID string) ManagerOption    { return func(m *Manager) { m.hostID = hostID } }

// NewManager wires a Manager with the three builder variants (spec §4.2),
// a time-boundary service at the given granularity (spec §4.3) and, unless
// overridden, the always-HLC default selector (spec §4.4).
func NewManager(coordinator CoordinatorClient, timeBoundaryGranularity time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		coordinator:      coordinator,
		offlineBuilder:   NewOfflineBuilder(),
		hlcBuilder:       NewHLCBuilder(),
		llcBuilder:       NewLLCBuilder(),
		selector:         NewDefaultSelector(),
		timeBoundaries:   NewTimeBoundaryService(timeBoundaryGranularity),
		metrics:          NoopMetrics{},
		lastEvVersion:    make(map[TableName]int64),
		lastIcByTable:    make(map[TableName]map[ServerID]InstanceConfig),
		lastIcByInstance: make(map[ServerID]InstanceConfig),
		instanceToTables: make(map[ServerID]map[TableName]struct{}),
		rebuildFSMs:      make(map[TableName]*fsm.FSM),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func loadPlans(m *sync.Map, table TableName) ([]Plan, bool) {
	v, ok := m.Load(table)
	if !ok {
		return nil, false
	}
	plans, _ := v.([]Plan)
	return plans, len(plans) > 0
}

func pickRandomPlan(plans []Plan) Plan {
	return plans[randIndex(len(plans))]
}

// FindServers is the query-time entry point (C6, spec §4.5). It never
// touches the coordinator; it only reads whatever is currently published.
func (m *Manager) FindServers(req FindServersRequest) (map[ServerID]map[SegmentID]struct{}, error) {
	switch req.Table.Type() {
	case TableTypeOffline:
		plans, ok := loadPlans(&m.offlinePlans, req.Table)
		if !ok {
			return map[ServerID]map[SegmentID]struct{}{}, nil
		}
		return pickRandomPlan(plans).ToMap(), nil

	case TableTypeRealtime:
		return m.findRealtimeServers(req)

	default:
		return nil, ErrTableNotFound.WithCausef("table %s has neither _OFFLINE nor _REALTIME suffix", req.Table)
	}
}

func (m *Manager) findRealtimeServers(req FindServersRequest) (map[ServerID]map[SegmentID]struct{}, error) {
	forceHLC := req.Options&OptionForceHLC != 0
	forceLLC := req.Options&OptionForceLLC != 0
	if forceHLC && forceLLC {
		return nil, ErrConflictingOptions
	}

	hlc, hasHLC := loadPlans(&m.hlcPlans, req.Table)
	llc, hasLLC := loadPlans(&m.llcPlans, req.Table)

	switch {
	case hasHLC && hasLLC:
		useLLC := forceLLC
		if !forceHLC && !forceLLC {
			useLLC = m.selector.ShouldUseLLC(req.Table)
		}
		if useLLC {
			m.metrics.IncrCounter(MetricLLCQueryCount, req.Table)
			return pickRandomPlan(llc).ToMap(), nil
		}
		m.metrics.IncrCounter(MetricHLCQueryCount, req.Table)
		return pickRandomPlan(hlc).ToMap(), nil

	case hasHLC:
		if forceLLC {
			return nil, ErrUnsatisfiableRoutingOption
		}
		m.metrics.IncrCounter(MetricHLCQueryCount, req.Table)
		return pickRandomPlan(hlc).ToMap(), nil

	case hasLLC:
		if forceHLC {
			return nil, ErrUnsatisfiableRoutingOption
		}
		m.metrics.IncrCounter(MetricLLCQueryCount, req.Table)
		return pickRandomPlan(llc).ToMap(), nil

	default:
		return map[ServerID]map[SegmentID]struct{}{}, nil
	}
}

// RoutingTableExists reports whether table has any published plan set,
// offline or realtime.
func (m *Manager) RoutingTableExists(table TableName) bool {
	if _, ok := loadPlans(&m.offlinePlans, table); ok {
		return true
	}
	if _, ok := loadPlans(&m.hlcPlans, table); ok {
		return true
	}
	if _, ok := loadPlans(&m.llcPlans, table); ok {
		return true
	}
	return false
}

// MarkDataResourceOnline is called when a table transitions into (or
// remains in) the online state. A nil ev means the coordinator confirmed
// the table exists but has no EV yet; that is recorded as the INVALID
// sentinel so the next real EV observation always triggers a rebuild,
// without attempting to build from nothing.
func (m *Manager) MarkDataResourceOnline(ctx context.Context, table TableName, ev *ExternalView, ics []InstanceConfig) error {
	if ev == nil {
		m.indexMu.Lock()
		m.lastEvVersion[table] = InvalidVersion
		m.indexMu.Unlock()
		return nil
	}
	return m.BuildRoutingTable(ctx, table, ev, ics)
}

// BuildRoutingTable is the critical rebuild procedure (spec §4.5). It never
// rolls back a partial publish: plans already stored by an earlier step of
// this very call stay stored even if a later step fails, since they are
// strictly more current than what callers saw before this call started.
func (m *Manager) BuildRoutingTable(ctx context.Context, table TableName, ev *ExternalView, ics []InstanceConfig) error {
	start := time.Now()
	defer func() { m.metrics.ObserveTimer(MetricRoutingTableUpdateTime, table, time.Since(start)) }()

	// Step 1: record the version unconditionally; only a failure later in
	// this call overwrites it back to the INVALID sentinel.
	m.indexMu.Lock()
	m.lastEvVersion[table] = ev.Version
	fsmachine, ok := m.rebuildFSMs[table]
	if !ok {
		fsmachine = newRebuildFSM()
		m.rebuildFSMs[table] = fsmachine
	}
	m.indexMu.Unlock()
	_ = fsmachine.Event(context.Background(), rebuildEventStart)

	icsMap := make(map[ServerID]InstanceConfig, len(ics))
	for _, ic := range ics {
		icsMap[ic.Instance] = ic
	}

	isRealtime := table.Type() == TableTypeRealtime
	primaryBuilder := m.offlineBuilder
	primaryPlans := &m.offlinePlans
	if isRealtime {
		primaryBuilder = m.hlcBuilder
		primaryPlans = &m.hlcPlans
	}

	// Step 2-3: run the primary builder (offline balanced-random, or HLC
	// for realtime tables) and publish on success.
	plans, err := primaryBuilder.Compute(table, ev, icsMap)
	if err != nil {
		m.failBuild(table, fsmachine)
		return errors.WithMessage(ErrBuilderFailure.WithCause(err), fmt.Sprintf("table %s", table))
	}
	primaryPlans.Store(table, plans)
	relevant := relevantInstances(plans, icsMap)

	// Step 4: realtime tables additionally get an LLC plan set. A failure
	// here never fails the whole build — HLC plans published above remain
	// authoritative and queryable.
	if isRealtime {
		m.selector.Register(table)
		llcPlans, llcErr := m.llcBuilder.Compute(table, ev, icsMap)
		if llcErr != nil {
			log.With(zap.String("table", string(table))).Warn("LLC builder failed, HLC plans remain in effect", zap.Error(llcErr))
			m.llcPlans.Delete(table)
		} else {
			m.llcPlans.Store(table, llcPlans)
			for server, ic := range relevantInstances(llcPlans, icsMap) {
				relevant[server] = ic
			}
		}
	}

	// Step 5: replace the cached relevant-instance set and its reverse
	// index under one indexMu hold; this happens after, not together with,
	// the plan publication already committed above.
	m.updateIndices(table, relevant)

	// Step 6: reconcile the hybrid time boundary, logged-only on failure.
	if tbErr := m.reconcileTimeBoundary(ctx, table, ev); tbErr != nil {
		log.With(zap.String("table", string(table))).Warn("time boundary reconciliation failed", zap.Error(tbErr))
	}

	_ = fsmachine.Event(context.Background(), rebuildEventPublished)
	return nil
}

// failBuild marks table's EV version INVALID, forcing the next observation
// to retry, and counts the failure. Plans from the previous successful
// build, if any, are left untouched and keep serving queries.
func (m *Manager) failBuild(table TableName, fsmachine *fsm.FSM) {
	m.indexMu.Lock()
	m.lastEvVersion[table] = InvalidVersion
	m.indexMu.Unlock()
	m.metrics.IncrCounter(MetricRebuildFailures, table)
	_ = fsmachine.Event(context.Background(), rebuildEventFailed)
}

// updateIndices replaces lastIcByTable[table] with relevant, and keeps
// lastIcByInstance/instanceToTables consistent with the new set.
func (m *Manager) updateIndices(table TableName, relevant map[ServerID]InstanceConfig) {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	old := m.lastIcByTable[table]
	for instance := range old {
		if _, stillRelevant := relevant[instance]; stillRelevant {
			continue
		}
		if tables, ok := m.instanceToTables[instance]; ok {
			delete(tables, table)
			if len(tables) == 0 {
				delete(m.instanceToTables, instance)
			}
		}
	}
	for instance, ic := range relevant {
		m.lastIcByInstance[instance] = ic
		tables, ok := m.instanceToTables[instance]
		if !ok {
			tables = make(map[TableName]struct{})
			m.instanceToTables[instance] = tables
		}
		tables[table] = struct{}{}
	}
	m.lastIcByTable[table] = relevant
}

// reconcileTimeBoundary implements spec §4.5 step 6. The boundary is always
// computed from the offline table's own EV: when table is the offline half,
// ev is already that EV; when table is the realtime half and no boundary is
// cached yet, the offline EV is fetched on demand.
func (m *Manager) reconcileTimeBoundary(ctx context.Context, table TableName, ev *ExternalView) error {
	raw := table.RawName()
	switch table.Type() {
	case TableTypeOffline:
		if !m.RoutingTableExists(RealtimeName(raw)) {
			return nil
		}
		return m.timeBoundaries.Update(ev, ev.TimeColumn)

	case TableTypeRealtime:
		offlineName := OfflineName(raw)
		if !m.RoutingTableExists(offlineName) {
			return nil
		}
		if _, ok := m.timeBoundaries.Get(offlineName); ok {
			return nil
		}
		offlineEv, err := m.coordinator.FetchExternalView(ctx, offlineName)
		if err != nil {
			return errors.WithMessage(err, "fetching offline EV for time boundary")
		}
		if offlineEv == nil {
			return nil
		}
		return m.timeBoundaries.Update(offlineEv, offlineEv.TimeColumn)

	default:
		return nil
	}
}

// IsRebuildRequired implements spec §4.5 / invariant P5: a rebuild is
// needed when the EV version moved, the table is unknown, or the relevant
// instance set changed membership or an observable field (enabled,
// shutting down). A version bump with no observable field change refreshes
// the cache in place without flagging a rebuild.
func (m *Manager) IsRebuildRequired(table TableName, ev *ExternalView, ics []InstanceConfig) bool {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	lastVersion, known := m.lastEvVersion[table]
	if !known || lastVersion == InvalidVersion || ev.Version != lastVersion {
		return true
	}

	lastICs := m.lastIcByTable[table]
	if len(lastICs) == 0 {
		return true
	}

	relevant := make(map[ServerID]InstanceConfig, len(lastICs))
	for _, ic := range ics {
		if _, ok := lastICs[ic.Instance]; ok {
			relevant[ic.Instance] = ic
		}
	}
	if len(relevant) != len(lastICs) {
		return true
	}

	for instance, ic := range relevant {
		old := lastICs[instance]
		if ic.Version == old.Version {
			continue
		}
		if ic.Enabled != old.Enabled || ic.ShuttingDown != old.ShuttingDown {
			return true
		}
	}

	for instance, ic := range relevant {
		lastICs[instance] = ic
		m.lastIcByInstance[instance] = ic
	}
	return false
}

// knownTables snapshots every table the manager currently tracks an EV
// version for.
func (m *Manager) knownTables() []TableName {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	out := make([]TableName, 0, len(m.lastEvVersion))
	for t := range m.lastEvVersion {
		out = append(out, t)
	}
	return out
}

// ProcessExternalViewChange implements the coalesced EV-change handling
// side of spec §4.5 / §5: a single batched stats probe across every known
// table, full rebuilds only for the ones whose version actually moved.
func (m *Manager) ProcessExternalViewChange(ctx context.Context) error {
	tables := m.knownTables()
	if len(tables) == 0 {
		return nil
	}

	stats, err := m.coordinator.FetchStats(ctx, tables)
	if err != nil {
		return errors.WithMessage(ErrCoordinatorFetchFailure.WithCause(err), "fetching EV stats")
	}

	// A nil stat means the coordinator has no znode stat for this table right
	// now (e.g. its EV key was deleted but no offline callback has landed
	// yet); the original HelixExternalViewBasedRouting.processExternalViewChange
	// skips those rather than treating a missing stat as "changed", since
	// there is nothing here to rebuild from and forcing INVALID would just
	// re-fail every reconcile tick.
	var changed []TableName
	m.indexMu.Lock()
	for i, table := range tables {
		if stats[i] == nil {
			continue
		}
		if stats[i].Version != m.lastEvVersion[table] {
			changed = append(changed, table)
		}
	}
	m.indexMu.Unlock()
	if len(changed) == 0 {
		return nil
	}

	ics, err := m.coordinator.FetchInstanceConfigs(ctx)
	if err != nil {
		for _, table := range changed {
			m.failCoordinatorFetch(table)
		}
		return errors.WithMessage(ErrCoordinatorFetchFailure.WithCause(err), "fetching instance configs")
	}

	// Distinct tables rebuild independently of each other: each has its own
	// plan-map entries, its own rebuild FSM and its own indexMu-guarded
	// cache slice, so fanning the per-table fetch+build out concurrently is
	// safe. errgroup mirrors the teacher's own fan-out-then-join fetch
	// pattern in server/coordinator/procedure rather than a bespoke
	// WaitGroup.
	grp, grpCtx := errgroup.WithContext(ctx)
	for _, table := range changed {
		table := table
		grp.Go(func() error {
			ev, err := m.coordinator.FetchExternalView(grpCtx, table)
			if err != nil || ev == nil {
				m.failCoordinatorFetch(table)
				if err != nil {
					log.With(zap.String("table", string(table))).Error("fetching EV failed", zap.Error(err))
				}
				return nil
			}
			if err := m.BuildRoutingTable(grpCtx, table, ev, ics); err != nil {
				log.With(zap.String("table", string(table))).Error("rebuild failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = grp.Wait()
	return nil
}

// failCoordinatorFetch handles a CoordinatorFetchFailure exactly like a
// builder failure for the affected table (spec §4.5 step 7).
func (m *Manager) failCoordinatorFetch(table TableName) {
	m.indexMu.Lock()
	m.lastEvVersion[table] = InvalidVersion
	fsmachine, ok := m.rebuildFSMs[table]
	if !ok {
		fsmachine = newRebuildFSM()
		m.rebuildFSMs[table] = fsmachine
	}
	m.indexMu.Unlock()
	m.metrics.IncrCounter(MetricRebuildFailures, table)
	_ = fsmachine.Event(context.Background(), rebuildEventStart)
	_ = fsmachine.Event(context.Background(), rebuildEventFailed)
}

// ProcessInstanceConfigChange implements the coalesced IC-change handling
// side of spec §4.5 / §5: a single batched stats probe across every
// instance the manager currently has cached, rebuilds limited to tables
// whose relevant instance set actually changed.
func (m *Manager) ProcessInstanceConfigChange(ctx context.Context) error {
	m.indexMu.Lock()
	instances := make([]ServerID, 0, len(m.lastIcByInstance))
	for instance := range m.lastIcByInstance {
		instances = append(instances, instance)
	}
	m.indexMu.Unlock()
	if len(instances) == 0 {
		return nil
	}

	stats, err := m.coordinator.FetchInstanceStats(ctx, instances)
	if err != nil {
		return errors.WithMessage(ErrCoordinatorFetchFailure.WithCause(err), "fetching instance stats")
	}

	m.indexMu.Lock()
	affected := make(map[TableName]struct{})
	for i, instance := range instances {
		// A nil stat means the coordinator has no znode stat for this
		// instance right now; skip it rather than treating a missing stat
		// as "changed", matching processExternalViewChange's handling above.
		if stats[i] == nil {
			continue
		}
		if stats[i].Version == m.lastIcByInstance[instance].Version {
			continue
		}
		for table := range m.instanceToTables[instance] {
			affected[table] = struct{}{}
		}
	}
	m.indexMu.Unlock()
	if len(affected) == 0 {
		return nil
	}

	ics, err := m.coordinator.FetchInstanceConfigs(ctx)
	if err != nil {
		return errors.WithMessage(ErrCoordinatorFetchFailure.WithCause(err), "fetching instance configs")
	}

	grp, grpCtx := errgroup.WithContext(ctx)
	for table := range affected {
		table := table
		grp.Go(func() error {
			ev, err := m.coordinator.FetchExternalView(grpCtx, table)
			if err != nil || ev == nil {
				m.failCoordinatorFetch(table)
				if err != nil {
					log.With(zap.String("table", string(table))).Error("fetching EV failed", zap.Error(err))
				}
				return nil
			}
			if m.IsRebuildRequired(table, ev, ics) {
				if err := m.BuildRoutingTable(grpCtx, table, ev, ics); err != nil {
					log.With(zap.String("table", string(table))).Error("rebuild failed", zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = grp.Wait()
	return nil
}

// MarkDataResourceOffline removes every trace of table from the manager's
// state. It iterates instanceToTables' own keys to find instances that
// referenced table, rather than the departing table's own plan key set —
// a table with zero published plans (e.g. one that failed every build)
// would otherwise leave stale instanceToTables/lastIcByInstance entries
// behind forever, since there would be no plan-derived server list to walk.
func (m *Manager) MarkDataResourceOffline(table TableName) {
	m.offlinePlans.Delete(table)
	m.hlcPlans.Delete(table)
	m.llcPlans.Delete(table)
	m.timeBoundaries.Remove(table)

	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	delete(m.lastEvVersion, table)
	delete(m.lastIcByTable, table)
	delete(m.rebuildFSMs, table)
	for instance, tables := range m.instanceToTables {
		if _, ok := tables[table]; !ok {
			continue
		}
		delete(tables, table)
		if len(tables) == 0 {
			delete(m.instanceToTables, instance)
			delete(m.lastIcByInstance, instance)
		}
	}
}

// snapshotView is the JSON shape DumpSnapshot renders.
type snapshotView struct {
	Host         string                  `json:"host"`
	Offline      map[TableName][]string  `json:"offline_plans"`
	LLC          map[TableName][]string  `json:"llc_plans"`
	RebuildState map[TableName]string    `json:"rebuild_state"`
}

// DumpSnapshot renders a human-readable JSON view of the offline and LLC
// plan tables, each table's rebuild FSM state, and host identity, optionally
// restricted to tables whose raw name has the given prefix. HLC plans are
// intentionally omitted: they are the common case and rarely what an
// operator debugging a routing anomaly reaches for first, while offline and
// LLC are where hand-picked-server skew tends to show up.
func (m *Manager) DumpSnapshot(tablePrefix string) (string, error) {
	view := snapshotView{
		Host:         m.hostID,
		Offline:      make(map[TableName][]string),
		LLC:          make(map[TableName][]string),
		RebuildState: make(map[TableName]string),
	}

	collect := func(src *sync.Map, dst map[TableName][]string) {
		src.Range(func(key, value any) bool {
			table := key.(TableName)
			if tablePrefix != "" && !hasTablePrefix(table, tablePrefix) {
				return true
			}
			plans := value.([]Plan)
			rendered := make([]string, len(plans))
			for i, p := range plans {
				rendered[i] = p.String()
			}
			dst[table] = rendered
			return true
		})
	}
	collect(&m.offlinePlans, view.Offline)
	collect(&m.llcPlans, view.LLC)

	m.indexMu.Lock()
	for table, fsmachine := range m.rebuildFSMs {
		if tablePrefix != "" && !hasTablePrefix(table, tablePrefix) {
			continue
		}
		view.RebuildState[table] = fsmachine.Current()
	}
	m.indexMu.Unlock()

	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", errors.WithMessage(err, "marshaling snapshot")
	}
	return string(out), nil
}

func hasTablePrefix(table TableName, prefix string) bool {
	s := string(table)
	if len(s) < len(prefix) {
		return false
	}
	return s[:len(prefix)] == prefix
}
