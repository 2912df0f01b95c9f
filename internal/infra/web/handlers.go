package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"theglocal-monetization/internal/domain"
	"theglocal-monetization/internal/domain/model"
	"theglocal-monetization/internal/infra/logging"
	"theglocal-monetization/internal/usecase"
)

// paymentWebhook is the shape a gateway callback is normalized into by the
// fronting ingress before it reaches this core.
type paymentWebhook struct {
	ExternalPaymentID string                 `json:"external_payment_id"`
	Method            string                 `json:"payment_method"`
	Event             string                 `json:"event"` // completed | failed | refunded | processing | pending
	UserID            string                 `json:"user_id"`
	ArtistID          *string                `json:"artist_id,omitempty"`
	SubscriptionID    *string                `json:"subscription_id,omitempty"`
	Amount            int64                  `json:"amount"`
	Currency          string                 `json:"currency"`
	IdempotencyKey    string                 `json:"idempotency_key,omitempty"`
	ErrorMessage      string                 `json:"error_message,omitempty"`
	ErrorCode         string                 `json:"error_code,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// handlePaymentWebhook maps an inbound gateway callback to a transaction:
// known external id -> status update; unknown -> create-then-update. The
// subscription side effects (restore on completion, grace period on failure)
// are wired here, keeping the two state machines decoupled from each other.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var hook paymentWebhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	status := model.PaymentStatus(hook.Event)
	if !model.KnownPaymentStatus(status) || status == model.PaymentStatusCreated {
		writeError(w, http.StatusBadRequest, "unknown event")
		return
	}
	ctx := r.Context()
	l := logging.With(ctx, s.log)

	method := model.PaymentMethod(hook.Method)
	tx, err := s.payments.GetByExternalID(ctx, hook.ExternalPaymentID, method)
	if err != nil && err != domain.ErrNotFound && err != domain.ErrInvalidArgument {
		writeError(w, http.StatusServiceUnavailable, "lookup failed")
		return
	}

	var txID string
	if tx != nil {
		txID = tx.ID
	} else {
		txID, err = s.payments.Create(ctx, usecase.CreatePaymentParams{
			UserID:         hook.UserID,
			ArtistID:       hook.ArtistID,
			SubscriptionID: hook.SubscriptionID,
			Amount:         hook.Amount,
			Currency:       hook.Currency,
			PaymentMethod:  method,
			IdempotencyKey: hook.IdempotencyKey,
			Metadata:       hook.Metadata,
		})
		if err != nil {
			if err == domain.ErrInvalidArgument {
				writeError(w, http.StatusBadRequest, "invalid payment parameters")
			} else {
				writeError(w, http.StatusServiceUnavailable, "create failed")
			}
			return
		}
	}

	applied := s.payments.UpdateStatus(ctx, txID, status, model.StatusUpdate{
		ExternalPaymentID: hook.ExternalPaymentID,
		ErrorMessage:      hook.ErrorMessage,
		ErrorCode:         hook.ErrorCode,
		Metadata:          hook.Metadata,
	})

	// Duplicate deliveries land here: the transition was already applied, so
	// the CAS rejects the replay and no side effect fires twice.
	if applied && hook.ArtistID != nil {
		switch status {
		case model.PaymentStatusCompleted:
			s.subs.RestoreSubscription(ctx, *hook.ArtistID, txID)
		case model.PaymentStatusFailed:
			s.subs.StartGracePeriod(ctx, *hook.ArtistID, "payment_failed")
		}
	}

	l.Info().Str("payment_tx_id", txID).Str("event", hook.Event).Bool("applied", applied).Msg("webhook processed")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id": txID,
		"applied":        applied,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || s.apiSecret == "" || body.Secret != s.apiSecret {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.auth.Mint()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session mint failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handlePendingConflicts(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	limit := queryInt(r, "limit", 100)
	conflicts, err := s.conflicts.GetPendingConflicts(r.Context(), table, limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conflicts": conflicts})
}

func (s *Server) handleConflictStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.conflicts.GetConflictStats(r.Context(), queryInt(r, "days", 30))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		ResolvedBy     string                 `json:"resolved_by"`
		ResolutionData map[string]interface{} `json:"resolution_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	ok, err := s.conflicts.ResolveConflictManually(r.Context(), id, body.ResolvedBy, body.ResolutionData)
	if err == domain.ErrInvalidArgument {
		writeError(w, http.StatusBadRequest, "resolved_by is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "resolution failed")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "conflict is not pending")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resolved": true})
}

func (s *Server) handleEscalateConflict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	ok, err := s.conflicts.EscalateConflict(r.Context(), id, body.Reason)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "escalation failed")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "conflict is not pending")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"escalated": true})
}

func (s *Server) handlePaymentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.payments.Stats(r.Context(), queryInt(r, "days", 30))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePaymentHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	history, err := s.payments.History(r.Context(), userID, queryInt(r, "limit", 50))
	if err == domain.ErrInvalidArgument {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "history failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": history})
}

func (s *Server) handleGraceStatus(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	status := s.subs.CheckGracePeriodStatus(r.Context(), entityID)
	writeJSON(w, http.StatusOK, status)
}

// ===== helpers =====

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
