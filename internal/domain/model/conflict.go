package model

import "time"

type ConflictType string

const (
	ConflictTypeUpdate ConflictType = "update"
	ConflictTypeDelete ConflictType = "delete"
	ConflictTypeInsert ConflictType = "insert"
)

type ResolutionStrategy string

const (
	StrategyLastWriteWins  ResolutionStrategy = "last_write_wins"
	StrategyFirstWriteWins ResolutionStrategy = "first_write_wins"
	StrategyMerge          ResolutionStrategy = "merge"
	StrategyManual         ResolutionStrategy = "manual"
)

type ConflictStatus string

const (
	ConflictStatusPending   ConflictStatus = "pending"
	ConflictStatusResolved  ConflictStatus = "resolved"
	ConflictStatusEscalated ConflictStatus = "escalated"
)

// ConflictResolution is one detected write conflict plus its adjudication.
// Rows are retained indefinitely for audit and statistics.
type ConflictResolution struct {
	ID             string                 `json:"id"` // ULID; sortable by detection time
	TableName      string                 `json:"table_name"`
	RecordID       string                 `json:"record_id"`
	Type           ConflictType           `json:"conflict_type"`
	Strategy       ResolutionStrategy     `json:"resolution_strategy"`
	Status         ConflictStatus         `json:"status"`
	ConflictData   map[string]interface{} `json:"conflict_data,omitempty"`   // snapshot: current, incoming, detected_at
	ResolutionData map[string]interface{} `json:"resolution_data,omitempty"` // winning payload once resolved
	ResolvedBy     *string                `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Rows read back from the store are normalized leniently: unknown enum values
// fall back to a safe default instead of failing the read, so one malformed
// audit row can never break an admin listing. The repository logs a warning
// when a fallback fires.

func NormalizeConflictType(s string) (ConflictType, bool) {
	switch ConflictType(s) {
	case ConflictTypeUpdate, ConflictTypeDelete, ConflictTypeInsert:
		return ConflictType(s), true
	}
	return ConflictTypeUpdate, false
}

func NormalizeStrategy(s string) (ResolutionStrategy, bool) {
	switch ResolutionStrategy(s) {
	case StrategyLastWriteWins, StrategyFirstWriteWins, StrategyMerge, StrategyManual:
		return ResolutionStrategy(s), true
	}
	return StrategyManual, false
}

func NormalizeConflictStatus(s string) (ConflictStatus, bool) {
	switch ConflictStatus(s) {
	case ConflictStatusPending, ConflictStatusResolved, ConflictStatusEscalated:
		return ConflictStatus(s), true
	}
	return ConflictStatusPending, false
}

// ConflictStats aggregates conflicts detected within a window.
type ConflictStats struct {
	Counts               map[ConflictStatus]int `json:"counts"`
	MeanResolutionMillis int64                  `json:"mean_resolution_millis"` // over resolved conflicts in the window; 0 when none
	DaysBack             int                    `json:"days_back"`
}
