//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"theglocal-monetization/internal/domain"
	"theglocal-monetization/internal/domain/model"
	"theglocal-monetization/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Payment repository
// =============================

// memPaymentRepo is an in-memory PaymentRepository that preserves the
// compare-and-set semantics of the real Postgres repository: status updates
// and retry marks only fire when the stored row satisfies the guard.
type memPaymentRepo struct {
	mu    sync.RWMutex
	store map[string]*model.PaymentTransaction // by id
	byKey map[string]string                    // idempotency key -> id

	CreateErr error // simulate insert failures
	UpdateErr error
	FindErr   error
}

var _ repository.PaymentRepository = (*memPaymentRepo)(nil)

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{
		store: make(map[string]*model.PaymentTransaction),
		byKey: make(map[string]string),
	}
}

func (m *memPaymentRepo) CreateIdempotent(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) (string, bool, error) {
	if m.CreateErr != nil {
		return "", false, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[p.IdempotencyKey]; ok {
		return id, false, nil
	}
	cp := *p
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.store[cp.ID] = &cp
	m.byKey[cp.IdempotencyKey] = cp.ID
	return cp.ID, true, nil
}

func (m *memPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string, method model.PaymentMethod) (*model.PaymentTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.ExternalPaymentID != nil && *p.ExternalPaymentID == externalID && p.PaymentMethod == method {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) UpdateStatusValidated(ctx context.Context, tx repository.Tx, id string, newStatus model.PaymentStatus, opts model.StatusUpdate) (bool, error) {
	if m.UpdateErr != nil {
		return false, m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || !model.IsValidTransition(p.Status, newStatus) {
		return false, nil
	}
	now := time.Now()
	entry := model.StateTransition{
		From:              p.Status,
		To:                newStatus,
		Timestamp:         now,
		ExternalPaymentID: opts.ExternalPaymentID,
		ErrorMessage:      opts.ErrorMessage,
		ErrorCode:         opts.ErrorCode,
	}
	p.PreviousStatus = p.Status
	p.Status = newStatus
	p.StateTransitions = append(p.StateTransitions, entry)
	p.UpdatedAt = now
	if opts.ExternalPaymentID != "" {
		v := opts.ExternalPaymentID
		p.ExternalPaymentID = &v
	}
	if opts.ErrorMessage != "" {
		v := opts.ErrorMessage
		p.ErrorMessage = &v
	}
	if opts.ErrorCode != "" {
		v := opts.ErrorCode
		p.ErrorCode = &v
	}
	switch newStatus {
	case model.PaymentStatusCompleted:
		p.CompletedAt = &now
	case model.PaymentStatusFailed:
		p.FailedAt = &now
	case model.PaymentStatusRefunded:
		p.RefundedAt = &now
	}
	return true, nil
}

func (m *memPaymentRepo) MarkRetry(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.Status != model.PaymentStatusFailed || p.RetryCount >= p.MaxRetries {
		return false, nil
	}
	now := time.Now()
	p.StateTransitions = append(p.StateTransitions, model.StateTransition{
		From:      p.Status,
		To:        model.PaymentStatusPending,
		Timestamp: now,
	})
	p.PreviousStatus = p.Status
	p.Status = model.PaymentStatusPending
	p.RetryCount++
	p.UpdatedAt = now
	return true, nil
}

func (m *memPaymentRepo) ListFailedSince(ctx context.Context, tx repository.Tx, failedBefore time.Time, limit int) ([]*model.PaymentTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PaymentTransaction
	for _, p := range m.store {
		if p.Status != model.PaymentStatusFailed || p.RetryCount >= p.MaxRetries {
			continue
		}
		if p.FailedAt == nil || !p.FailedAt.Before(failedBefore) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.PaymentTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PaymentTransaction
	for _, p := range m.store {
		if p.UserID != userID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPaymentRepo) DeleteOldFailed(ctx context.Context, tx repository.Tx, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.store {
		if p.Status != model.PaymentStatusFailed || p.RetryCount < p.MaxRetries {
			continue
		}
		if p.FailedAt == nil || !p.FailedAt.Before(olderThan) {
			continue
		}
		delete(m.store, id)
		delete(m.byKey, p.IdempotencyKey)
		n++
	}
	return n, nil
}

func (m *memPaymentRepo) Stats(ctx context.Context, tx repository.Tx, since time.Time) (*model.PaymentStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &model.PaymentStats{Counts: make(map[model.PaymentStatus]int)}
	for _, p := range m.store {
		if p.CreatedAt.Before(since) {
			continue
		}
		stats.Counts[p.Status]++
		if p.Status == model.PaymentStatusCompleted {
			stats.TotalAmount += p.Amount
		}
	}
	return stats, nil
}

// helpers for test setup

func (m *memPaymentRepo) get(id string) *model.PaymentTransaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store[id]
}

func (m *memPaymentRepo) put(p *model.PaymentTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[cp.ID] = &cp
	if cp.IdempotencyKey != "" {
		m.byKey[cp.IdempotencyKey] = cp.ID
	}
}

// =============================
// Subscription state repository
// =============================

type memSubscriptionStateRepo struct {
	mu    sync.RWMutex
	store map[string]*model.SubscriptionState // by entity id

	SetGraceErr   error
	SetExpiredErr error
	SetActiveErr  error
	// SetExpiredErrFor fails SetExpired for one specific entity only.
	SetExpiredErrFor map[string]error
}

var _ repository.SubscriptionStateRepository = (*memSubscriptionStateRepo)(nil)

func newMemSubscriptionStateRepo() *memSubscriptionStateRepo {
	return &memSubscriptionStateRepo{
		store:            make(map[string]*model.SubscriptionState),
		SetExpiredErrFor: make(map[string]error),
	}
}

func (m *memSubscriptionStateRepo) put(s *model.SubscriptionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[cp.EntityID] = &cp
}

func (m *memSubscriptionStateRepo) FindByEntity(ctx context.Context, tx repository.Tx, entityID string) (*model.SubscriptionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[entityID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubscriptionStateRepo) SetGracePeriod(ctx context.Context, tx repository.Tx, entityID string, start time.Time, reason string) error {
	if m.SetGraceErr != nil {
		return m.SetGraceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[entityID]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = model.SubscriptionStatusGrace
	s.GracePeriodStart = &start
	s.GraceReason = &reason
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memSubscriptionStateRepo) SetExpired(ctx context.Context, tx repository.Tx, entityID string, at time.Time) error {
	if m.SetExpiredErr != nil {
		return m.SetExpiredErr
	}
	if err := m.SetExpiredErrFor[entityID]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[entityID]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = model.SubscriptionStatusExpired
	s.GracePeriodStart = nil
	s.ExpiredAt = &at
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memSubscriptionStateRepo) SetActive(ctx context.Context, tx repository.Tx, entityID string, at time.Time) error {
	if m.SetActiveErr != nil {
		return m.SetActiveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[entityID]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = model.SubscriptionStatusActive
	s.GracePeriodStart = nil
	s.GraceReason = nil
	s.ExpiredAt = nil
	s.RestoredAt = &at
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memSubscriptionStateRepo) ListInGracePeriod(ctx context.Context, tx repository.Tx, limit int) ([]*model.SubscriptionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionState
	for _, s := range m.store {
		if s.Status != model.SubscriptionStatusGrace {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSubscriptionStateRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.SubscriptionStatus]int)
	for _, s := range m.store {
		out[s.Status]++
	}
	return out, nil
}

// =============================
// Notification repository
// =============================

type memNotificationRow struct {
	EntityID  string
	Kind      string
	Detail    string
	DayOffset int
}

type memNotificationRepo struct {
	mu   sync.RWMutex
	rows []memNotificationRow

	SaveErr error
}

var _ repository.NotificationRepository = (*memNotificationRepo)(nil)

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{}
}

func (m *memNotificationRepo) Save(ctx context.Context, tx repository.Tx, entityID, kind, detail string, dayOffset int) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.EntityID == entityID && r.Kind == kind && r.DayOffset == dayOffset {
			return nil
		}
	}
	m.rows = append(m.rows, memNotificationRow{EntityID: entityID, Kind: kind, Detail: detail, DayOffset: dayOffset})
	return nil
}

func (m *memNotificationRepo) Exists(ctx context.Context, tx repository.Tx, entityID, kind string, dayOffset int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rows {
		if r.EntityID == entityID && r.Kind == kind && r.DayOffset == dayOffset {
			return true, nil
		}
	}
	return false, nil
}

func (m *memNotificationRepo) byKind(kind string) []memNotificationRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []memNotificationRow
	for _, r := range m.rows {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// =============================
// Conflict repository
// =============================

type memConflictRepo struct {
	mu    sync.RWMutex
	store map[string]*model.ConflictResolution

	SaveErr error
}

var _ repository.ConflictRepository = (*memConflictRepo)(nil)

func newMemConflictRepo() *memConflictRepo {
	return &memConflictRepo{store: make(map[string]*model.ConflictResolution)}
}

func (m *memConflictRepo) Save(ctx context.Context, tx repository.Tx, c *model.ConflictResolution) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.store[cp.ID] = &cp
	return nil
}

func (m *memConflictRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ConflictResolution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConflictRepo) ListPending(ctx context.Context, tx repository.Tx, table string, limit int) ([]*model.ConflictResolution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ConflictResolution
	for _, c := range m.store {
		if c.Status != model.ConflictStatusPending && c.Status != model.ConflictStatusEscalated {
			continue
		}
		if table != "" && c.TableName != table {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memConflictRepo) MarkResolved(ctx context.Context, tx repository.Tx, id string, resolvedBy string, data map[string]interface{}, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return false, nil
	}
	if c.Status != model.ConflictStatusPending && c.Status != model.ConflictStatusEscalated {
		return false, nil
	}
	c.Status = model.ConflictStatusResolved
	c.ResolvedBy = &resolvedBy
	c.ResolvedAt = &at
	c.ResolutionData = data
	return true, nil
}

func (m *memConflictRepo) MarkEscalated(ctx context.Context, tx repository.Tx, id string, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok || c.Status != model.ConflictStatusPending {
		return false, nil
	}
	c.Status = model.ConflictStatusEscalated
	return true, nil
}

func (m *memConflictRepo) Stats(ctx context.Context, tx repository.Tx, since time.Time) (*model.ConflictStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &model.ConflictStats{Counts: make(map[model.ConflictStatus]int)}
	var sum int64
	var n int64
	for _, c := range m.store {
		if c.CreatedAt.Before(since) {
			continue
		}
		stats.Counts[c.Status]++
		if c.Status == model.ConflictStatusResolved && c.ResolvedAt != nil {
			sum += c.ResolvedAt.Sub(c.CreatedAt).Milliseconds()
			n++
		}
	}
	if n > 0 {
		stats.MeanResolutionMillis = sum / n
	}
	return stats, nil
}
