package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/repository"
)

// --- ClosePeriod ---

type closePeriodRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

func (h *Handlers) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	var req closePeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, err := parseDayParam("from", req.From)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	to, err := parseDayParam("to", req.To)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := h.settlementSvc.ClosePeriod(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if len(result.CreatedPayments) == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"from":               result.From.Format(domain.DateLayout),
		"to":                 result.To.Format(domain.DateLayout),
		"created_payments":   result.CreatedPayments,
		"skipped_publishers": result.SkippedPublishers,
		"skipped_leads":      result.SkippedLeads,
		"total_amount":       result.TotalAmount,
	})
}

// --- ListPayments ---

func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.PaymentFilter{
		PublisherID: q.Get("publisher_id"),
		Status:      q.Get("status"),
		From:        parseTime(q.Get("from")),
		To:          parseRangeEnd(q.Get("to")),
		Flagged:     parseBool(q.Get("flagged")),
		Page:        parseIntDefault(q.Get("page"), 1),
		Limit:       parseIntDefault(q.Get("limit"), 50),
	}
	if filter.Status != "" && !domain.PaymentStatus(filter.Status).Valid() {
		writeError(w, http.StatusBadRequest, "validation_error", "unknown status "+filter.Status)
		return
	}

	payments, total, err := h.paymentRepo.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payments": payments,
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})
}

// --- GetPayment ---

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.paymentRepo.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	items, err := h.paymentRepo.Items(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.PaymentItem{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payment": p,
		"items":   items,
	})
}

// --- ConfirmPayment ---

type confirmRequest struct {
	PaidAt       string           `json:"paid_at"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate"`
}

func (h *Handlers) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}

	var paidAt time.Time
	if req.PaidAt != "" {
		t := parseTime(req.PaidAt)
		if t == nil {
			writeError(w, http.StatusBadRequest, "validation_error", "paid_at must be RFC3339 or YYYY-MM-DD")
			return
		}
		paidAt = *t
	}

	p, err := h.settlementSvc.ConfirmPayment(r.Context(), chi.URLParam(r, "id"), paidAt, req.ExchangeRate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- FailPayment ---

type failRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handlers) FailPayment(w http.ResponseWriter, r *http.Request) {
	var req failRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.settlementSvc.FailPayment(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- DeletePayment ---

func (h *Handlers) DeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.settlementSvc.DeletePayment(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Fraud review ---

func (h *Handlers) ReviewPayment(w http.ResponseWriter, r *http.Request) {
	p, verdict, err := h.reviewer.Review(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payment": p,
		"verdict": verdict,
	})
}

func (h *Handlers) ReviewPending(w http.ResponseWriter, r *http.Request) {
	sum, err := h.reviewer.ReviewPending(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// --- Rates ---

func (h *Handlers) GetRates(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.rates.GetRates(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type ratesRequest struct {
	USDToVES *decimal.Decimal `json:"usd_to_ves_rate"`
	USDToCOP *decimal.Decimal `json:"usd_to_cop_rate"`
}

// UpdateRates overwrites the rates present in the body and keeps the rest.
func (h *Handlers) UpdateRates(w http.ResponseWriter, r *http.Request) {
	var req ratesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.USDToVES == nil && req.USDToCOP == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "at least one rate is required")
		return
	}
	for name, rate := range map[string]*decimal.Decimal{"usd_to_ves_rate": req.USDToVES, "usd_to_cop_rate": req.USDToCOP} {
		if rate != nil && !rate.IsPositive() {
			writeError(w, http.StatusBadRequest, "validation_error", name+" must be positive")
			return
		}
	}

	cfg, err := h.rates.GetRates(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.USDToVES != nil {
		cfg.USDToVES = decimal.NewNullDecimal(*req.USDToVES)
	}
	if req.USDToCOP != nil {
		cfg.USDToCOP = decimal.NewNullDecimal(*req.USDToCOP)
	}
	cfg.UpdatedAt = h.nowFn()

	if err := h.rates.SaveRates(r.Context(), cfg); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
