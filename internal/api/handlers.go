package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/loyalty-rewards/internal/ledger"
	"github.com/ignite/loyalty-rewards/internal/loyalty"
	"github.com/ignite/loyalty-rewards/internal/pkg/httputil"
	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
	"github.com/ignite/loyalty-rewards/internal/worker"
)

// RunController starts and reports reward runs.
type RunController interface {
	Trigger(ctx context.Context) (uuid.UUID, error)
	Running() bool
	LastReport() *worker.RunReport
}

// LedgerReader exposes the send-once ledger.
type LedgerReader interface {
	Records() []ledger.SendRecord
}

// Handlers contains all admin HTTP handlers
type Handlers struct {
	ledger  LedgerReader
	tiers   loyalty.Tiers
	runs    RunController
	maxAge  time.Duration
	baseCtx context.Context
}

// NewHandlers creates the handlers. Runs triggered over HTTP are bound to
// baseCtx, not to the request.
func NewHandlers(baseCtx context.Context, l LedgerReader, tiers loyalty.Tiers, runs RunController, maxAge time.Duration) *Handlers {
	if maxAge <= 0 {
		maxAge = ledger.DefaultMaxAge
	}
	return &Handlers{
		ledger:  l,
		tiers:   tiers,
		runs:    runs,
		maxAge:  maxAge,
		baseCtx: baseCtx,
	}
}

type ledgerEntry struct {
	CustomerID string    `json:"customer_id"`
	SentAt     time.Time `json:"sent_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type tierView struct {
	Threshold       float64 `json:"threshold"`
	DiscountPercent int     `json:"discount_percent"`
	Label           string  `json:"label"`
}

// HealthCheck returns service status
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status":     "ok",
		"timestamp":  time.Now().UTC(),
		"run_active": h.runs.Running(),
	})
}

// ListLedger returns every active send record with its expiry.
func (h *Handlers) ListLedger(w http.ResponseWriter, r *http.Request) {
	records := h.ledger.Records()
	entries := make([]ledgerEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, ledgerEntry{
			CustomerID: rec.CustomerID,
			SentAt:     rec.SentAt,
			ExpiresAt:  rec.SentAt.Add(h.maxAge),
		})
	}
	httputil.OK(w, map[string]interface{}{
		"count":   len(entries),
		"records": entries,
	})
}

// ListTiers returns the discount table, lowest tier first.
func (h *Handlers) ListTiers(w http.ResponseWriter, r *http.Request) {
	views := make([]tierView, 0, len(h.tiers))
	for _, t := range h.tiers {
		views = append(views, tierView{Threshold: t.Threshold, DiscountPercent: t.DiscountPercent, Label: t.Label()})
	}
	httputil.OK(w, map[string]interface{}{"tiers": views})
}

// ResolveTier maps ?spend= to a discount and tier label.
func (h *Handlers) ResolveTier(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("spend")
	if raw == "" {
		httputil.BadRequest(w, "spend is required")
		return
	}
	spend, err := strconv.ParseFloat(raw, 64)
	if err != nil || spend < 0 || math.IsNaN(spend) || math.IsInf(spend, 0) {
		httputil.BadRequest(w, "spend must be a finite non-negative number")
		return
	}
	discount, label := h.tiers.Resolve(spend)
	httputil.OK(w, map[string]interface{}{
		"spend":            spend,
		"discount_percent": discount,
		"tier":             label,
	})
}

// TriggerRun starts a run in the background.
func (h *Handlers) TriggerRun(w http.ResponseWriter, r *http.Request) {
	id, err := h.runs.Trigger(h.baseCtx)
	if errors.Is(err, worker.ErrRunInProgress) {
		httputil.Conflict(w, "a reward run is already in progress")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	logger.Info("reward run triggered over HTTP", "run_id", id.String())
	httputil.Accepted(w, map[string]interface{}{
		"run_id": id.String(),
		"status": "started",
	})
}

// LastRun returns the most recent run report.
func (h *Handlers) LastRun(w http.ResponseWriter, r *http.Request) {
	report := h.runs.LastReport()
	if report == nil {
		httputil.NotFound(w, "no run has finished yet")
		return
	}
	httputil.OK(w, report)
}
