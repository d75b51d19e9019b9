package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/wakala/payouts/internal/fraud"
	"github.com/wakala/payouts/internal/ingestion"
	"github.com/wakala/payouts/internal/metrics"
	"github.com/wakala/payouts/internal/ratecache"
	"github.com/wakala/payouts/internal/reporting"
	"github.com/wakala/payouts/internal/repository"
	"github.com/wakala/payouts/internal/settlement"
)

// Deps are the collaborators mounted by NewRouter.
type Deps struct {
	DB            *sql.DB
	OfferRepo     *repository.OfferRepo
	PublisherRepo *repository.PublisherRepo
	PaymentRepo   *repository.PaymentRepo
	Rates         ratecache.Store
	Settlement    *settlement.Service
	Reviewer      *fraud.Reviewer
	Ingestion     *ingestion.Service
	Reporting     *reporting.Service
	Metrics       *metrics.Metrics

	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(d Deps) http.Handler {
	h := &Handlers{
		offerRepo:     d.OfferRepo,
		publisherRepo: d.PublisherRepo,
		paymentRepo:   d.PaymentRepo,
		rates:         d.Rates,
		settlementSvc: d.Settlement,
		reviewer:      d.Reviewer,
		ingestionSvc:  d.Ingestion,
		reportingSvc:  d.Reporting,
		validate:      validator.New(),
		nowFn:         func() time.Time { return time.Now().UTC() },
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	if len(d.AllowedOrigins) == 0 {
		d.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", d.Metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if d.DB != nil {
			if err := d.DB.PingContext(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Settlement.
		r.Post("/periods/close", h.ClosePeriod)
		r.Get("/payments", h.ListPayments)
		r.Post("/payments/review-pending", h.ReviewPending)
		r.Route("/payments/{id}", func(r chi.Router) {
			r.Get("/", h.GetPayment)
			r.Delete("/", h.DeletePayment)
			r.Post("/confirm", h.ConfirmPayment)
			r.Post("/fail", h.FailPayment)
			r.Post("/review", h.ReviewPayment)
		})

		// Rates.
		r.Get("/rates", h.GetRates)
		r.Put("/rates", h.UpdateRates)

		// Catalog.
		r.Get("/offers", h.ListOffers)
		r.Post("/offers", h.CreateOffer)
		r.Get("/offers/{id}", h.GetOffer)
		r.Put("/offers/{id}", h.UpdateOffer)

		r.Get("/publishers", h.ListPublishers)
		r.Post("/publishers", h.CreatePublisher)
		r.Get("/publishers/{id}", h.GetPublisher)
		r.Put("/publishers/{id}", h.UpdatePublisher)
		r.Get("/publishers/{id}/statement", h.PublisherStatement)

		// Leads.
		r.Get("/leads", h.ListLeads)
		r.Put("/leads", h.PutLead)
		r.Post("/leads/import", h.ImportLeads)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
