// File: internal/usecase/conflict_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"theglocal-monetization/internal/domain"
	"theglocal-monetization/internal/domain/model"
	"theglocal-monetization/internal/domain/ports/repository"
	"theglocal-monetization/internal/infra/metrics"
)

// Compile-time check
var _ ConflictUseCase = (*conflictUC)(nil)

// ConflictUseCase adjudicates concurrent writes against the same logical
// record. It is generic: any caller that detects two disagreeing payloads
// for one record hands both here and proceeds with the returned winner.
type ConflictUseCase interface {
	// ResolveUpdateConflict records the conflict and, when auto-resolve is
	// enabled, applies the strategy. The returned record carries the outcome:
	// status resolved with ResolutionData set, or escalated when no winner
	// could be determined. A failure to persist the audit record is logged
	// but never blocks the caller from using the computed resolution.
	ResolveUpdateConflict(ctx context.Context, table, recordID string, current, incoming map[string]interface{}, strategy model.ResolutionStrategy) (*model.ConflictResolution, error)

	// ResolveDeleteConflict lets the delete proceed: deletions are treated
	// as authoritative user intent.
	ResolveDeleteConflict(ctx context.Context, table, recordID string, current map[string]interface{}) (*model.ConflictResolution, error)

	// ResolveInsertConflict keeps the incoming payload: the newer write is
	// assumed to supersede a stale duplicate insert attempt.
	ResolveInsertConflict(ctx context.Context, table, recordID string, incoming map[string]interface{}) (*model.ConflictResolution, error)

	GetPendingConflicts(ctx context.Context, table string, limit int) ([]*model.ConflictResolution, error)
	ResolveConflictManually(ctx context.Context, id, resolvedBy string, data map[string]interface{}) (bool, error)
	EscalateConflict(ctx context.Context, id, reason string) (bool, error)
	GetConflictStats(ctx context.Context, daysBack int) (*model.ConflictStats, error)
}

type conflictUC struct {
	conflicts       repository.ConflictRepository
	autoResolve     bool
	defaultStrategy model.ResolutionStrategy
	now             func() time.Time
	log             *zerolog.Logger
}

func NewConflictUseCase(conflicts repository.ConflictRepository, autoResolve bool, defaultStrategy model.ResolutionStrategy, logger *zerolog.Logger) *conflictUC {
	if defaultStrategy == "" {
		defaultStrategy = model.StrategyLastWriteWins
	}
	l := logger.With().Str("component", "ConflictUC").Logger()
	return &conflictUC{
		conflicts:       conflicts,
		autoResolve:     autoResolve,
		defaultStrategy: defaultStrategy,
		now:             time.Now,
		log:             &l,
	}
}

func (u *conflictUC) ResolveUpdateConflict(ctx context.Context, table, recordID string, current, incoming map[string]interface{}, strategy model.ResolutionStrategy) (*model.ConflictResolution, error) {
	if table == "" || recordID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if strategy == "" {
		strategy = u.defaultStrategy
	}

	now := u.now()
	c := &model.ConflictResolution{
		ID:        ulid.Make().String(),
		TableName: table,
		RecordID:  recordID,
		Type:      model.ConflictTypeUpdate,
		Strategy:  strategy,
		Status:    model.ConflictStatusPending,
		ConflictData: map[string]interface{}{
			"current":     current,
			"incoming":    incoming,
			"detected_at": now.UTC().Format(time.RFC3339Nano),
		},
		CreatedAt: now,
	}
	metrics.IncConflictDetected(string(model.ConflictTypeUpdate))

	if u.autoResolve {
		if winner, ok := applyStrategy(strategy, current, incoming); ok {
			resolvedAt := u.now()
			by := "auto:" + string(strategy)
			c.Status = model.ConflictStatusResolved
			c.ResolutionData = winner
			c.ResolvedBy = &by
			c.ResolvedAt = &resolvedAt
			metrics.IncConflictResolved("auto")
			metrics.ObserveConflictResolution(resolvedAt.Sub(now).Seconds())
		} else {
			c.Status = model.ConflictStatusEscalated
			metrics.IncConflictResolved("escalated")
			u.log.Warn().Str("table", table).Str("record_id", recordID).Str("strategy", string(strategy)).Msg("auto-resolve declined, conflict escalated")
		}
	}

	u.persist(ctx, c)
	return c, nil
}

func (u *conflictUC) ResolveDeleteConflict(ctx context.Context, table, recordID string, current map[string]interface{}) (*model.ConflictResolution, error) {
	if table == "" || recordID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := u.now()
	c := &model.ConflictResolution{
		ID:        ulid.Make().String(),
		TableName: table,
		RecordID:  recordID,
		Type:      model.ConflictTypeDelete,
		Strategy:  u.defaultStrategy,
		Status:    model.ConflictStatusPending,
		ConflictData: map[string]interface{}{
			"current":     current,
			"detected_at": now.UTC().Format(time.RFC3339Nano),
		},
		CreatedAt: now,
	}
	metrics.IncConflictDetected(string(model.ConflictTypeDelete))

	if u.autoResolve {
		resolvedAt := u.now()
		by := "auto:delete_wins"
		c.Status = model.ConflictStatusResolved
		c.ResolutionData = map[string]interface{}{"action": "delete"}
		c.ResolvedBy = &by
		c.ResolvedAt = &resolvedAt
		metrics.IncConflictResolved("auto")
	}

	u.persist(ctx, c)
	return c, nil
}

func (u *conflictUC) ResolveInsertConflict(ctx context.Context, table, recordID string, incoming map[string]interface{}) (*model.ConflictResolution, error) {
	if table == "" || recordID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := u.now()
	c := &model.ConflictResolution{
		ID:        ulid.Make().String(),
		TableName: table,
		RecordID:  recordID,
		Type:      model.ConflictTypeInsert,
		Strategy:  u.defaultStrategy,
		Status:    model.ConflictStatusPending,
		ConflictData: map[string]interface{}{
			"incoming":    incoming,
			"detected_at": now.UTC().Format(time.RFC3339Nano),
		},
		CreatedAt: now,
	}
	metrics.IncConflictDetected(string(model.ConflictTypeInsert))

	if u.autoResolve {
		resolvedAt := u.now()
		by := "auto:incoming_wins"
		c.Status = model.ConflictStatusResolved
		c.ResolutionData = incoming
		c.ResolvedBy = &by
		c.ResolvedAt = &resolvedAt
		metrics.IncConflictResolved("auto")
	}

	u.persist(ctx, c)
	return c, nil
}

func (u *conflictUC) GetPendingConflicts(ctx context.Context, table string, limit int) ([]*model.ConflictResolution, error) {
	return u.conflicts.ListPending(ctx, repository.NoTX, table, limit)
}

func (u *conflictUC) ResolveConflictManually(ctx context.Context, id, resolvedBy string, data map[string]interface{}) (bool, error) {
	if id == "" || resolvedBy == "" {
		return false, domain.ErrInvalidArgument
	}
	ok, err := u.conflicts.MarkResolved(ctx, repository.NoTX, id, resolvedBy, data, u.now())
	if err != nil {
		u.log.Error().Err(err).Str("conflict_id", id).Msg("manual resolution failed")
		return false, err
	}
	if ok {
		metrics.IncConflictResolved("manual")
	}
	return ok, nil
}

func (u *conflictUC) EscalateConflict(ctx context.Context, id, reason string) (bool, error) {
	if id == "" {
		return false, domain.ErrInvalidArgument
	}
	ok, err := u.conflicts.MarkEscalated(ctx, repository.NoTX, id, reason)
	if err != nil {
		u.log.Error().Err(err).Str("conflict_id", id).Msg("escalation failed")
		return false, err
	}
	if ok {
		metrics.IncConflictResolved("escalated")
	}
	return ok, nil
}

func (u *conflictUC) GetConflictStats(ctx context.Context, daysBack int) (*model.ConflictStats, error) {
	if daysBack <= 0 {
		daysBack = 30
	}
	stats, err := u.conflicts.Stats(ctx, repository.NoTX, u.now().AddDate(0, 0, -daysBack))
	if err != nil {
		return nil, err
	}
	stats.DaysBack = daysBack
	return stats, nil
}

// persist writes the audit record; the caller's resolution is already
// computed, so a storage failure here is logged and not propagated.
func (u *conflictUC) persist(ctx context.Context, c *model.ConflictResolution) {
	if err := u.conflicts.Save(ctx, repository.NoTX, c); err != nil {
		u.log.Error().Err(err).Str("conflict_id", c.ID).Str("table", c.TableName).Msg("conflict audit write failed")
	}
}

// applyStrategy returns the winning payload, or ok=false when the strategy
// cannot determine one.
func applyStrategy(strategy model.ResolutionStrategy, current, incoming map[string]interface{}) (map[string]interface{}, bool) {
	switch strategy {
	case model.StrategyLastWriteWins:
		tc, okC := payloadTime(current)
		ti, okI := payloadTime(incoming)
		// A missing timestamp means "just happened": incoming wins.
		if !okC || !okI || !ti.Before(tc) {
			return incoming, true
		}
		return current, true

	case model.StrategyFirstWriteWins:
		tc, okC := payloadTime(current)
		ti, okI := payloadTime(incoming)
		// An ambiguous incoming write never overrides an established record.
		if !okC || !okI || !ti.Before(tc) {
			return current, true
		}
		return incoming, true

	case model.StrategyMerge:
		return mergePayloads(current, incoming), true
	}
	return nil, false
}

// payloadTime extracts updated_at, falling back to created_at. Payloads may
// have passed through JSON, so time.Time, RFC 3339 strings and numeric epoch
// values are all accepted.
func payloadTime(payload map[string]interface{}) (time.Time, bool) {
	for _, key := range []string{"updated_at", "created_at"} {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		if t, ok := parseTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	case float64:
		return epochTime(int64(t)), true
	case int64:
		return epochTime(t), true
	case int:
		return epochTime(int64(t)), true
	}
	return time.Time{}, false
}

// epochTime treats values past the year ~33658 as milliseconds.
func epochTime(n int64) time.Time {
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// mergePayloads shallow-merges incoming into a copy of current, except that
// when the same key holds an object on both sides that key is merged one
// level deeper. Nil values in incoming never overwrite existing values.
func mergePayloads(current, incoming map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(current)+len(incoming))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range incoming {
		if v == nil {
			continue
		}
		inObj, inIsObj := v.(map[string]interface{})
		curObj, curIsObj := out[k].(map[string]interface{})
		if inIsObj && curIsObj {
			merged := make(map[string]interface{}, len(curObj)+len(inObj))
			for ck, cv := range curObj {
				merged[ck] = cv
			}
			for ik, iv := range inObj {
				if iv == nil {
					continue
				}
				merged[ik] = iv
			}
			out[k] = merged
			continue
		}
		out[k] = v
	}
	return out
}
