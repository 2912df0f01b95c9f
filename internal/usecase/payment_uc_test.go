//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"theglocal-monetization/internal/domain"
	"theglocal-monetization/internal/domain/model"
	"theglocal-monetization/internal/usecase"
)

func validCreateParams() usecase.CreatePaymentParams {
	return usecase.CreatePaymentParams{
		UserID:        "user-1",
		Amount:        49900,
		Currency:      "INR",
		PaymentMethod: model.PaymentMethodRazorpay,
	}
}

func TestPaymentUseCase_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a payment with a generated idempotency key", func(t *testing.T) {
		// --- Arrange ---
		repo := newMemPaymentRepo()
		uc := usecase.NewPaymentUseCase(repo, 3, newTestLogger())

		// --- Act ---
		id, err := uc.Create(ctx, validCreateParams())

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		stored := repo.get(id)
		if stored == nil {
			t.Fatal("expected a stored transaction")
		}
		if stored.Status != model.PaymentStatusCreated {
			t.Errorf("expected status 'created', got '%s'", stored.Status)
		}
		if len(stored.IdempotencyKey) != 32 {
			t.Errorf("expected a 32-char hex idempotency key, got %q", stored.IdempotencyKey)
		}
		if stored.MaxRetries != 3 {
			t.Errorf("expected max retries 3, got %d", stored.MaxRetries)
		}
	})

	t.Run("should return the existing id when the idempotency key replays", func(t *testing.T) {
		// --- Arrange ---
		repo := newMemPaymentRepo()
		uc := usecase.NewPaymentUseCase(repo, 3, newTestLogger())
		params := validCreateParams()
		params.IdempotencyKey = "replay-key"

		// --- Act ---
		first, err := uc.Create(ctx, params)
		if err != nil {
			t.Fatalf("first create: %v", err)
		}
		second, err := uc.Create(ctx, params)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error on replay, but got: %v", err)
		}
		if first != second {
			t.Errorf("expected the same transaction id on replay, got %s then %s", first, second)
		}
		if len(repo.store) != 1 {
			t.Errorf("expected exactly one stored row, got %d", len(repo.store))
		}
	})

	t.Run("should reject invalid parameters", func(t *testing.T) {
		repo := newMemPaymentRepo()
		uc := usecase.NewPaymentUseCase(repo, 3, newTestLogger())

		cases := map[string]func(*usecase.CreatePaymentParams){
			"missing user":    func(p *usecase.CreatePaymentParams) { p.UserID = "" },
			"zero amount":     func(p *usecase.CreatePaymentParams) { p.Amount = 0 },
			"negative amount": func(p *usecase.CreatePaymentParams) { p.Amount = -100 },
			"no currency":     func(p *usecase.CreatePaymentParams) { p.Currency = "" },
			"unknown method":  func(p *usecase.CreatePaymentParams) { p.PaymentMethod = "bitcoin" },
		}
		for name, mutate := range cases {
			params := validCreateParams()
			mutate(&params)
			if _, err := uc.Create(ctx, params); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("%s: expected ErrInvalidArgument, got %v", name, err)
			}
		}
	})

	t.Run("should propagate storage errors", func(t *testing.T) {
		repo := newMemPaymentRepo()
		repo.CreateErr = errors.New("connection refused")
		uc := usecase.NewPaymentUseCase(repo, 3, newTestLogger())

		if _, err := uc.Create(ctx, validCreateParams()); err == nil {
			t.Fatal("expected an error when storage fails")
		}
	})
}

func TestPaymentUseCase_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*memPaymentRepo, usecase.PaymentUseCase, string) {
		t.Helper()
		repo := newMemPaymentRepo()
		uc := usecase.NewPaymentUseCase(repo, 3, newTestLogger())
		id, err := uc.Create(ctx, validCreateParams())
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		return repo, uc, id
	}

	t.Run("should walk the happy path and append one log entry per hop", func(t *testing.T) {
		repo, uc, id := setup(t)

		for _, next := range []model.PaymentStatus{
			model.PaymentStatusPending,
			model.PaymentStatusProcessing,
			model.PaymentStatusCompleted,
		} {
			if !uc.UpdateStatus(ctx, id, next, model.StatusUpdate{}) {
				t.Fatalf("expected transition to %s to be applied", next)
			}
		}

		stored := repo.get(id)
		if stored.Status != model.PaymentStatusCompleted {
			t.Errorf("expected final status 'completed', got '%s'", stored.Status)
		}
		if stored.PreviousStatus != model.PaymentStatusProcessing {
			t.Errorf("expected previous status 'processing', got '%s'", stored.PreviousStatus)
		}
		if len(stored.StateTransitions) != 3 {
			t.Fatalf("expected 3 log entries, got %d", len(stored.StateTransitions))
		}
		if stored.StateTransitions[0].From != model.PaymentStatusCreated || stored.StateTransitions[2].To != model.PaymentStatusCompleted {
			t.Errorf("unexpected transition log: %+v", stored.StateTransitions)
		}
		if stored.CompletedAt == nil {
			t.Error("expected completed_at to be stamped")
		}
	})

	t.Run("should reject transitions the lifecycle table disallows", func(t *testing.T) {
		repo, uc, id := setup(t)

		if uc.UpdateStatus(ctx, id, model.PaymentStatusCompleted, model.StatusUpdate{}) {
			t.Error("expected created -> completed to be rejected")
		}
		if uc.UpdateStatus(ctx, id, model.PaymentStatusRefunded, model.StatusUpdate{}) {
			t.Error("expected created -> refunded to be rejected")
		}
		stored := repo.get(id)
		if stored.Status != model.PaymentStatusCreated {
			t.Errorf("expected status to stay 'created', got '%s'", stored.Status)
		}
		if len(stored.StateTransitions) != 0 {
			t.Errorf("expected no log entries after rejected transitions, got %d", len(stored.StateTransitions))
		}
	})

	t.Run("refunded is terminal", func(t *testing.T) {
		_, uc, id := setup(t)
		for _, next := range []model.PaymentStatus{
			model.PaymentStatusPending,
			model.PaymentStatusCompleted,
			model.PaymentStatusRefunded,
		} {
			if !uc.UpdateStatus(ctx, id, next, model.StatusUpdate{}) {
				t.Fatalf("transition to %s", next)
			}
		}
		for _, next := range []model.PaymentStatus{
			model.PaymentStatusPending,
			model.PaymentStatusCompleted,
			model.PaymentStatusFailed,
		} {
			if uc.UpdateStatus(ctx, id, next, model.StatusUpdate{}) {
				t.Errorf("expected refunded -> %s to be rejected", next)
			}
		}
	})

	t.Run("should record error context on failure", func(t *testing.T) {
		repo, uc, id := setup(t)

		if !uc.UpdateStatus(ctx, id, model.PaymentStatusFailed, model.StatusUpdate{
			ErrorMessage: "card declined",
			ErrorCode:    "card_declined",
		}) {
			t.Fatal("expected created -> failed to be applied")
		}

		stored := repo.get(id)
		if stored.ErrorMessage == nil || *stored.ErrorMessage != "card declined" {
			t.Error("expected error message to be recorded")
		}
		if stored.FailedAt == nil {
			t.Error("expected failed_at to be stamped")
		}
		entry := stored.StateTransitions[len(stored.StateTransitions)-1]
		if entry.ErrorCode != "card_declined" {
			t.Errorf("expected error code in the log entry, got %q", entry.ErrorCode)
		}
	})

	t.Run("should return false for unknown status or id", func(t *testing.T) {
		_, uc, id := setup(t)
		if uc.UpdateStatus(ctx, id, "cancelled", model.StatusUpdate{}) {
			t.Error("expected unknown status to be rejected")
		}
		if uc.UpdateStatus(ctx, "no-such-id", model.PaymentStatusPending, model.StatusUpdate{}) {
			t.Error("expected unknown id to be rejected")
		}
	})
}

func TestPaymentUseCase_Retry(t *testing.T) {
	ctx := context.Background()

	failOnce := func(t *testing.T, uc usecase.PaymentUseCase, id string) {
		t.Helper()
		if !uc.UpdateStatus(ctx, id, model.PaymentStatusPending, model.StatusUpdate{}) {
			t.Fatal("to pending")
		}
		if !uc.UpdateStatus(ctx, id, model.PaymentStatusFailed, model.StatusUpdate{}) {
			t.Fatal("to failed")
		}
	}

	t.Run("retry re-enters pending and consumes budget", func(t *testing.T) {
		repo := newMemPaymentRepo()
		uc := usecase.NewPaymentUseCase(repo, 3, newTestLogger())
		id, _ := uc.Create(ctx, validCreateParams())
		failOnce(t, uc, id)

		if !uc.Retry(ctx, id) {
			t.Fatal("expected first retry to succeed")
		}
		stored := repo.get(id)
		if stored.Status != model.PaymentStatusPending {
			t.Errorf("expected status 'pending' after retry, got '%s'", stored.Status)
		}
		if stored.RetryCount != 1 {
			t.Errorf("expected retry count 1, got %d", stored.RetryCount)
		}
	})

	t.Run("retry budget is exhausted after max retries", func(t *testing.T) {
		repo := newMemPaymentRepo()
		uc := usecase.NewPaymentUseCase(repo, 2, newTestLogger())
		id, _ := uc.Create(ctx, validCreateParams())
		failOnce(t, uc, id)

		for i := 0; i < 2; i++ {
			if !uc.Retry(ctx, id) {
				t.Fatalf("expected retry %d to succeed", i+1)
			}
			if !uc.UpdateStatus(ctx, id, model.PaymentStatusFailed, model.StatusUpdate{}) {
				t.Fatalf("expected re-fail %d to be applied", i+1)
			}
		}

		if uc.Retry(ctx, id) {
			t.Error("expected third retry to be refused, budget is 2")
		}
		stored := repo.get(id)
		if stored.Status != model.PaymentStatusFailed {
			t.Errorf("expected status to stay 'failed', got '%s'", stored.Status)
		}
		if stored.RetryCount != 2 {
			t.Errorf("expected retry count 2, got %d", stored.RetryCount)
		}
	})

	t.Run("retry refuses non-failed transactions", func(t *testing.T) {
		repo := newMemPaymentRepo()
		uc := usecase.NewPaymentUseCase(repo, 3, newTestLogger())
		id, _ := uc.Create(ctx, validCreateParams())

		if uc.Retry(ctx, id) {
			t.Error("expected retry of a created transaction to be refused")
		}
	})
}

func TestPaymentUseCase_FailedForRetry(t *testing.T) {
	ctx := context.Background()
	repo := newMemPaymentRepo()
	uc := usecase.NewPaymentUseCase(repo, 3, newTestLogger())

	old := time.Now().Add(-12 * time.Hour)
	fresh := time.Now().Add(-1 * time.Hour)
	repo.put(&model.PaymentTransaction{
		ID: "p-old", IdempotencyKey: "k1", UserID: "u", Amount: 100, Currency: "INR",
		PaymentMethod: model.PaymentMethodStripe, Status: model.PaymentStatusFailed,
		MaxRetries: 3, FailedAt: &old,
	})
	repo.put(&model.PaymentTransaction{
		ID: "p-fresh", IdempotencyKey: "k2", UserID: "u", Amount: 100, Currency: "INR",
		PaymentMethod: model.PaymentMethodStripe, Status: model.PaymentStatusFailed,
		MaxRetries: 3, FailedAt: &fresh,
	})
	repo.put(&model.PaymentTransaction{
		ID: "p-spent", IdempotencyKey: "k3", UserID: "u", Amount: 100, Currency: "INR",
		PaymentMethod: model.PaymentMethodStripe, Status: model.PaymentStatusFailed,
		RetryCount: 3, MaxRetries: 3, FailedAt: &old,
	})

	got := uc.FailedForRetry(ctx, 6)
	if len(got) != 1 || got[0].ID != "p-old" {
		t.Fatalf("expected only p-old to be eligible, got %+v", got)
	}
}

func TestPaymentUseCase_Stats(t *testing.T) {
	ctx := context.Background()
	repo := newMemPaymentRepo()
	uc := usecase.NewPaymentUseCase(repo, 3, newTestLogger())

	id, _ := uc.Create(ctx, validCreateParams())
	uc.UpdateStatus(ctx, id, model.PaymentStatusPending, model.StatusUpdate{})
	uc.UpdateStatus(ctx, id, model.PaymentStatusCompleted, model.StatusUpdate{})
	id2, _ := uc.Create(ctx, usecase.CreatePaymentParams{
		UserID: "user-2", Amount: 100, Currency: "INR", PaymentMethod: model.PaymentMethodStripe,
	})
	uc.UpdateStatus(ctx, id2, model.PaymentStatusFailed, model.StatusUpdate{})

	stats, err := uc.Stats(ctx, 0)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.DaysBack != 30 {
		t.Errorf("expected default window of 30 days, got %d", stats.DaysBack)
	}
	if stats.Counts[model.PaymentStatusCompleted] != 1 || stats.Counts[model.PaymentStatusFailed] != 1 {
		t.Errorf("unexpected counts: %+v", stats.Counts)
	}
	if stats.TotalAmount != 49900 {
		t.Errorf("expected revenue from completed payments only, got %d", stats.TotalAmount)
	}
}

func TestPaymentUseCase_History(t *testing.T) {
	ctx := context.Background()
	repo := newMemPaymentRepo()
	uc := usecase.NewPaymentUseCase(repo, 3, newTestLogger())

	if _, err := uc.History(ctx, "", 10); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for empty user, got %v", err)
	}

	uc.Create(ctx, validCreateParams())
	got, err := uc.History(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 row, got %d", len(got))
	}
}
