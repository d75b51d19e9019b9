package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/ingestion"
	"github.com/wakala/payouts/internal/repository"
)

// --- Offers ---

type offerRequest struct {
	ID     string          `json:"id" validate:"omitempty,max=64"`
	Name   string          `json:"name" validate:"required,max=200"`
	Payout decimal.Decimal `json:"payout"`
	Status string          `json:"status" validate:"omitempty,oneof=active paused removed"`
}

func (h *Handlers) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.offerRepo.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if offers == nil {
		offers = []domain.Offer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers, "total": len(offers)})
}

func (h *Handlers) GetOffer(w http.ResponseWriter, r *http.Request) {
	o, err := h.offerRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handlers) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if !h.decode(w, r, &req) {
		return
	}
	now := h.nowFn()
	o := &domain.Offer{
		ID:        req.ID,
		Name:      strings.TrimSpace(req.Name),
		Payout:    req.Payout,
		Status:    domain.OfferStatus(req.Status),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = domain.OfferActive
	}
	if err := o.Validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.offerRepo.Insert(r.Context(), o); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handlers) UpdateOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.offerRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	o.Name = strings.TrimSpace(req.Name)
	o.Payout = req.Payout
	if req.Status != "" {
		o.Status = domain.OfferStatus(req.Status)
	}
	o.UpdatedAt = h.nowFn()
	if err := o.Validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.offerRepo.Update(r.Context(), o); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// --- Publishers ---

type publisherRequest struct {
	ID            string            `json:"id" validate:"omitempty,max=64"`
	Name          string            `json:"name" validate:"required,max=200"`
	Email         string            `json:"email" validate:"omitempty,email"`
	AvatarURL     string            `json:"avatar_url" validate:"omitempty,url"`
	PaymentMethod domain.MethodSpec `json:"payment_method"`
}

func (req publisherRequest) apply(p *domain.Publisher) error {
	method, err := req.PaymentMethod.Method()
	if err != nil {
		return err
	}
	p.Name = strings.TrimSpace(req.Name)
	p.Email = req.Email
	p.AvatarURL = req.AvatarURL
	p.PaymentMethod = method
	return p.Validate()
}

func (h *Handlers) ListPublishers(w http.ResponseWriter, r *http.Request) {
	pubs, err := h.publisherRepo.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if pubs == nil {
		pubs = []domain.Publisher{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"publishers": pubs, "total": len(pubs)})
}

func (h *Handlers) GetPublisher(w http.ResponseWriter, r *http.Request) {
	p, err := h.publisherRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) CreatePublisher(w http.ResponseWriter, r *http.Request) {
	var req publisherRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := &domain.Publisher{ID: req.ID, CreatedAt: h.nowFn()}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := req.apply(p); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.publisherRepo.Insert(r.Context(), p); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePublisher replaces the publisher's profile and payment method.
// Payments already created keep the method they were issued with.
func (h *Handlers) UpdatePublisher(w http.ResponseWriter, r *http.Request) {
	var req publisherRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.publisherRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := req.apply(p); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.publisherRepo.Update(r.Context(), p); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) PublisherStatement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDayParam("from", q.Get("from"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	to, err := parseDayParam("to", q.Get("to"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	st, err := h.reportingSvc.PublisherStatement(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- Leads ---

type leadRequest struct {
	PublisherID string `json:"publisher_id" validate:"required"`
	OfferID     string `json:"offer_id" validate:"required"`
	Date        string `json:"date" validate:"required"`
	Count       *int   `json:"count" validate:"required,gte=0"`
}

func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.LeadFilter{
		PublisherID: q.Get("publisher_id"),
		OfferID:     q.Get("offer_id"),
		From:        parseTime(q.Get("from")),
		To:          parseTime(q.Get("to")),
		Page:        parseIntDefault(q.Get("page"), 1),
		Limit:       parseIntDefault(q.Get("limit"), 50),
	}

	leads, total, err := h.ingestionSvc.ListLeads(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if leads == nil {
		leads = []domain.Lead{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"leads": leads,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

func (h *Handlers) PutLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDayParam("date", req.Date)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	l, err := h.ingestionSvc.SetLeadCount(r.Context(), ingestion.LeadInput{
		PublisherID: req.PublisherID,
		OfferID:     req.OfferID,
		Date:        date,
		Count:       *req.Count,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// ImportLeads accepts a multipart upload with a "file" part. The format
// field wins; otherwise the file extension decides.
func (h *Handlers) ImportLeads(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	format := r.FormValue("format")
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "read file: "+err.Error())
		return
	}

	result, err := h.ingestionSvc.ImportLeads(r.Context(), data, format)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Dashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.reportingSvc.Dashboard(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
