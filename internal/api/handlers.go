package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/fraud"
	"github.com/wakala/payouts/internal/ingestion"
	"github.com/wakala/payouts/internal/ratecache"
	"github.com/wakala/payouts/internal/reporting"
	"github.com/wakala/payouts/internal/repository"
	"github.com/wakala/payouts/internal/settlement"
)

// maxBodyBytes bounds JSON request bodies; lead imports have their own limit.
const maxBodyBytes = 1 << 20

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	offerRepo     *repository.OfferRepo
	publisherRepo *repository.PublisherRepo
	paymentRepo   *repository.PaymentRepo
	rates         ratecache.Store
	settlementSvc *settlement.Service
	reviewer      *fraud.Reviewer
	ingestionSvc  *ingestion.Service
	reportingSvc  *reporting.Service
	validate      *validator.Validate
	nowFn         func() time.Time
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// writeDomainError maps the domain sentinels onto HTTP statuses. Anything
// else is an internal error and is logged rather than echoed.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrStateConflict):
		writeError(w, http.StatusConflict, "state_conflict", err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// decode reads a JSON body into dst and runs the struct validators.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, e.Tag(), e.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, e.Tag()))
		}
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(domain.DateLayout, s)
		if err != nil {
			return nil
		}
	}
	return &t
}

// parseRangeEnd is parseTime for an upper bound: a bare date covers the
// whole day.
func parseRangeEnd(s string) *time.Time {
	t := parseTime(s)
	if t != nil && len(s) == len(domain.DateLayout) {
		end := t.Add(24*time.Hour - time.Nanosecond)
		return &end
	}
	return t
}

func parseDayParam(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	t, err := domain.ParseDay(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", domain.ErrValidation, name, s)
	}
	return t, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func parseBool(s string) *bool {
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &b
}
