package domain

import "time"

// BatchState is the lifecycle state of one reconciliation batch.
type BatchState string

const (
	BatchStatePending         BatchState = "PENDING"
	BatchStateApplying        BatchState = "APPLYING"
	BatchStateReconciled      BatchState = "RECONCILED"
	BatchStatePartiallyFailed BatchState = "PARTIALLY_FAILED"
	// BatchStateIncomplete marks a batch cancelled between entity upserts.
	// Applied upserts are kept.
	BatchStateIncomplete BatchState = "INCOMPLETE"
)

// EntityStatus is the per-entity retry state.
type EntityStatus string

const (
	EntityStatusPending      EntityStatus = "PENDING"
	EntityStatusApplying     EntityStatus = "APPLYING"
	EntityStatusRetrying     EntityStatus = "RETRYING"
	EntityStatusSucceeded    EntityStatus = "SUCCEEDED"
	EntityStatusDeadLettered EntityStatus = "DEAD_LETTERED"
	EntityStatusSkipped      EntityStatus = "SKIPPED"
)

// EntityKind names the kind of record an ingestion entity carries.
type EntityKind string

const (
	EntityKindAsset      EntityKind = "asset"
	EntityKindColumn     EntityKind = "column"
	EntityKindAssetLink  EntityKind = "asset_link"
	EntityKindColumnLink EntityKind = "column_link"
	EntityKindPrune      EntityKind = "prune"
)

// ReconcileRequest is one connector-produced batch for a resource.
// When FullResync is set, stored assets of the resource that are absent
// from the batch are pruned after every upsert succeeded.
type ReconcileRequest struct {
	WorkspaceID string
	ResourceID  string
	Assets      []Asset
	Columns     []Column
	AssetLinks  []AssetLink
	ColumnLinks []ColumnLink
	FullResync  bool
}

// EntityCount returns the number of records carried by the batch.
func (r *ReconcileRequest) EntityCount() int {
	return len(r.Assets) + len(r.Columns) + len(r.AssetLinks) + len(r.ColumnLinks)
}

// EntityFailure records an entity that was dead-lettered after exhausting
// retries or failing permanently.
type EntityFailure struct {
	Kind     EntityKind
	Key      string
	Attempts int
	Error    string
}

// ReconciliationReport is the structured outcome of a batch.
type ReconciliationReport struct {
	ID             string
	WorkspaceID    string
	ResourceID     string
	FullResync     bool
	State          BatchState
	Succeeded      int
	Failed         int
	Skipped        int
	Failures       []EntityFailure
	PrunedAssets   []string
	PrunedChildren int64
	PruneSkipped   bool
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Degraded reports whether the batch finished without reaching RECONCILED.
func (r *ReconciliationReport) Degraded() bool {
	return r.State != BatchStateReconciled
}

// FailedKeys lists the keys of all dead-lettered entities.
func (r *ReconciliationReport) FailedKeys() []string {
	keys := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		keys[i] = string(f.Kind) + ":" + f.Key
	}
	return keys
}

// ResourceChildren is the set of columns and links a full resync keeps for
// a resource. Anything else emitted by the resource is pruned.
type ResourceChildren struct {
	Columns     []ColumnRef
	AssetLinks  []AssetLink
	ColumnLinks []ColumnLink
}
