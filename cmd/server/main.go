package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/wakala/payouts/internal/api"
	"github.com/wakala/payouts/internal/config"
	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/events"
	"github.com/wakala/payouts/internal/fraud"
	"github.com/wakala/payouts/internal/ingestion"
	"github.com/wakala/payouts/internal/metrics"
	"github.com/wakala/payouts/internal/ratecache"
	"github.com/wakala/payouts/internal/reporting"
	"github.com/wakala/payouts/internal/repository"
	"github.com/wakala/payouts/internal/settlement"
	"github.com/wakala/payouts/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	defer db.Close()

	// Repositories.
	leadRepo := repository.NewLeadRepo(db)
	offerRepo := repository.NewOfferRepo(db)
	publisherRepo := repository.NewPublisherRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = ratecache.Open(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("rate cache disabled", "err", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	rates := ratecache.New(repository.NewRateRepo(db), redisClient, cfg.RateCacheTTL)

	publisher := events.Connect(cfg.RabbitMQURL, cfg.EventsExchange)
	defer publisher.Close()

	m := metrics.New()

	// Services.
	ingestionSvc := ingestion.NewService(leadRepo, offerRepo, m)
	settlementSvc := settlement.NewService(settlement.Deps{
		Leads:      leadRepo,
		Offers:     offerRepo,
		Publishers: publisherRepo,
		Ledger:     paymentRepo,
		Rates:      rates,
		Events:     publisher,
		Metrics:    m,
	}, settlement.Options{SkipSettledLeads: cfg.SkipSettledLeads})
	evaluator := fraud.NewEvaluator(fraud.NewScorer(cfg.FraudOracleURL, cfg.FraudOracleTimeout), cfg.FraudOracleTimeout, m)
	reviewer := fraud.NewReviewer(evaluator, paymentRepo, publisher)
	reportingSvc := reporting.NewService(leadRepo, offerRepo, publisherRepo, paymentRepo)

	if err := seedIfEmpty(ctx, offerRepo, publisherRepo, ingestionSvc); err != nil {
		slog.Warn("seeding failed", "err", err)
	}

	router := api.NewRouter(api.Deps{
		DB:             db,
		OfferRepo:      offerRepo,
		PublisherRepo:  publisherRepo,
		PaymentRepo:    paymentRepo,
		Rates:          rates,
		Settlement:     settlementSvc,
		Reviewer:       reviewer,
		Ingestion:      ingestionSvc,
		Reporting:      reportingSvc,
		Metrics:        m,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("publisher payout settlement engine listening",
			"addr", "http://localhost:"+cfg.Port, "api", "/api/v1",
			"fraud_oracle", cfg.FraudOracleURL != "", "skip_settled_leads", cfg.SkipSettledLeads)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type seedOffer struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Payout decimal.Decimal `json:"payout"`
	Status string          `json:"status"`
}

type seedPublisher struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Email         string            `json:"email"`
	AvatarURL     string            `json:"avatar_url"`
	PaymentMethod domain.MethodSpec `json:"payment_method"`
}

// seedIfEmpty loads the testdata fixtures into a fresh database. Leads go
// through the regular CSV import so the file hash is recorded. Offers start
// active so their historical leads are accepted, then take their seeded
// status.
func seedIfEmpty(ctx context.Context, offers *repository.OfferRepo, pubs *repository.PublisherRepo, ingest *ingestion.Service) error {
	n, err := offers.Count(ctx)
	if err != nil {
		return fmt.Errorf("count offers: %w", err)
	}
	if n > 0 {
		slog.Info("database already seeded, skipping", "offers", n)
		return nil
	}

	dir, err := findTestdataDir()
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	var offerSeeds []seedOffer
	if err := readJSON(filepath.Join(dir, "offers.json"), &offerSeeds); err != nil {
		return err
	}
	var retire []*domain.Offer
	for _, s := range offerSeeds {
		o := &domain.Offer{ID: s.ID, Name: s.Name, Payout: s.Payout, Status: domain.OfferStatus(s.Status), CreatedAt: now, UpdatedAt: now}
		if err := o.Validate(); err != nil {
			return fmt.Errorf("offer %s: %w", s.ID, err)
		}
		if o.Status != domain.OfferActive {
			final := *o
			retire = append(retire, &final)
			o.Status = domain.OfferActive
		}
		if err := offers.Insert(ctx, o); err != nil {
			return err
		}
	}

	var pubSeeds []seedPublisher
	if err := readJSON(filepath.Join(dir, "publishers.json"), &pubSeeds); err != nil {
		return err
	}
	for _, s := range pubSeeds {
		method, err := s.PaymentMethod.Method()
		if err != nil {
			return fmt.Errorf("publisher %s: %w", s.ID, err)
		}
		p := &domain.Publisher{ID: s.ID, Name: s.Name, Email: s.Email, AvatarURL: s.AvatarURL, PaymentMethod: method, CreatedAt: now}
		if err := pubs.Insert(ctx, p); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "leads.csv"))
	if err != nil {
		return fmt.Errorf("read leads: %w", err)
	}
	res, err := ingest.ImportLeads(ctx, data, ingestion.FormatCSV)
	if err != nil {
		return fmt.Errorf("import leads: %w", err)
	}
	for _, o := range retire {
		if err := offers.Update(ctx, o); err != nil {
			return fmt.Errorf("offer %s status: %w", o.ID, err)
		}
	}

	slog.Info("seeded database from testdata",
		"dir", dir, "offers", len(offerSeeds), "publishers", len(pubSeeds), "leads", res.LeadsInserted)
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}

// findTestdataDir tries the working directory, then paths relative to the
// executable.
func findTestdataDir() (string, error) {
	candidates := []string{"testdata"}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata"),
			filepath.Join(dir, "..", "..", "testdata"),
		)
	}
	for _, c := range candidates {
		if _, err := os.Stat(filepath.Join(c, "offers.json")); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no testdata directory with offers.json found")
}
