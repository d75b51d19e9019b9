package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/metrics"
	"github.com/wakala/payouts/internal/repository"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// LeadRow is one parsed entry of a lead file.
type LeadRow struct {
	Line        int
	Date        string
	PublisherID string
	OfferID     string
	Count       int
}

func (r LeadRow) lead() (domain.Lead, error) {
	if r.PublisherID == "" || r.OfferID == "" {
		return domain.Lead{}, fmt.Errorf("%w: line %d: publisher_id and offer_id are required", domain.ErrValidation, r.Line)
	}
	if r.Count < 0 {
		return domain.Lead{}, fmt.Errorf("%w: line %d: count must not be negative, got %d", domain.ErrValidation, r.Line, r.Count)
	}
	day, err := domain.ParseDay(r.Date)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("%w: line %d date %q: %v", domain.ErrValidation, r.Line, r.Date, err)
	}
	return domain.Lead{PublisherID: r.PublisherID, OfferID: r.OfferID, Date: day, Count: r.Count}, nil
}

// ImportResult is returned from a lead file import.
type ImportResult struct {
	ImportID          string `json:"import_id"`
	AlreadyImported   bool   `json:"already_imported"`
	RecordsParsed     int    `json:"records_parsed"`
	LeadsInserted     int    `json:"leads_inserted"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
}

// OfferCatalog resolves offers by id. Unknown ids are absent from the map.
type OfferCatalog interface {
	OffersByID(ctx context.Context, ids []string) (map[string]domain.Offer, error)
}

// Service records lead counts, one at a time or from files.
type Service struct {
	leadRepo *repository.LeadRepo
	offers   OfferCatalog
	metrics  *metrics.Metrics
	nowFn    func() time.Time
}

func NewService(leadRepo *repository.LeadRepo, offers OfferCatalog, m *metrics.Metrics) *Service {
	return &Service{
		leadRepo: leadRepo,
		offers:   offers,
		metrics:  m,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// checkOffers fails unless every id names an active offer.
func (s *Service) checkOffers(ctx context.Context, ids []string) error {
	found, err := s.offers.OffersByID(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve offers: %w", err)
	}
	for _, id := range ids {
		o, ok := found[id]
		if !ok {
			return fmt.Errorf("%w: unknown offer %s", domain.ErrValidation, id)
		}
		if o.Status != domain.OfferActive {
			return fmt.Errorf("%w: offer %s is %s and does not accept leads", domain.ErrValidation, id, o.Status)
		}
	}
	return nil
}

// ImportLeads parses a lead file and stores its rows. A file whose sha256
// was seen before is acknowledged without touching the ledger. Every row
// must reference an active offer or nothing is stored.
//
// format must be one of: csv, json
func (s *Service) ImportLeads(ctx context.Context, data []byte, format string) (*ImportResult, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.leadRepo.ImportExistsByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if exists {
		slog.Info("lead file already imported", "hash", hash)
		return &ImportResult{AlreadyImported: true}, nil
	}

	var rows []LeadRow
	switch strings.ToLower(format) {
	case FormatCSV:
		rows, err = ParseLeadsCSV(data)
	case FormatJSON:
		rows, err = ParseLeadsJSON(data)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", domain.ErrValidation, format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}

	now := s.nowFn()
	imp := &domain.LeadImport{
		ID:          uuid.NewString(),
		Format:      strings.ToLower(format),
		FileHash:    hash,
		RecordCount: len(rows),
		ImportedAt:  now,
	}

	leads := make([]domain.Lead, 0, len(rows))
	var offerIDs []string
	seen := make(map[string]bool)
	for _, r := range rows {
		l, err := r.lead()
		if err != nil {
			return nil, err
		}
		l.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", hash, r.Line))).String()
		l.CreatedAt = now
		leads = append(leads, l)
		if !seen[l.OfferID] {
			seen[l.OfferID] = true
			offerIDs = append(offerIDs, l.OfferID)
		}
	}
	if len(offerIDs) > 0 {
		if err := s.checkOffers(ctx, offerIDs); err != nil {
			return nil, err
		}
	}

	inserted, err := s.leadRepo.InsertImport(ctx, imp, leads)
	if err != nil {
		return nil, fmt.Errorf("store import: %w", err)
	}
	s.metrics.LeadsImported.Add(float64(inserted))

	slog.Info("lead file imported",
		"import_id", imp.ID, "format", imp.Format, "records", len(rows), "inserted", inserted)

	return &ImportResult{
		ImportID:          imp.ID,
		RecordsParsed:     len(rows),
		LeadsInserted:     inserted,
		DuplicatesSkipped: len(rows) - inserted,
	}, nil
}

// LeadInput is a single lead count entered by hand.
type LeadInput struct {
	PublisherID string
	OfferID     string
	Date        time.Time
	Count       int
}

// SetLeadCount records the count of a publisher's leads on an offer for one
// day. An open lead for the same key is overwritten; once that lead is
// settled a new one is opened instead.
func (s *Service) SetLeadCount(ctx context.Context, in LeadInput) (*domain.Lead, error) {
	in.PublisherID = strings.TrimSpace(in.PublisherID)
	in.OfferID = strings.TrimSpace(in.OfferID)
	if in.PublisherID == "" || in.OfferID == "" {
		return nil, fmt.Errorf("%w: publisher_id and offer_id are required", domain.ErrValidation)
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", domain.ErrValidation)
	}
	if in.Count < 0 {
		return nil, fmt.Errorf("%w: count must not be negative, got %d", domain.ErrValidation, in.Count)
	}
	if err := s.checkOffers(ctx, []string{in.OfferID}); err != nil {
		return nil, err
	}
	day := domain.Day(in.Date)

	l, err := s.leadRepo.FindOpen(ctx, in.PublisherID, in.OfferID, day)
	if err != nil {
		return nil, fmt.Errorf("find lead: %w", err)
	}
	if l == nil {
		l = &domain.Lead{
			ID:          uuid.NewString(),
			PublisherID: in.PublisherID,
			OfferID:     in.OfferID,
			Date:        day,
			CreatedAt:   s.nowFn(),
		}
	}
	l.Count = in.Count

	if err := s.leadRepo.Upsert(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) ListLeads(ctx context.Context, f repository.LeadFilter) ([]domain.Lead, int, error) {
	return s.leadRepo.List(ctx, f)
}
