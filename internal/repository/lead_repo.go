package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wakala/payouts/internal/domain"
)

type LeadRepo struct {
	db *sql.DB
}

func NewLeadRepo(db *sql.DB) *LeadRepo {
	return &LeadRepo{db: db}
}

const leadColumns = "id, publisher_id, offer_id, date, count, settled_payment_id, created_at"

// Upsert inserts the lead or updates the count of an existing one. Leads
// already folded into a payment are immutable.
func (r *LeadRepo) Upsert(ctx context.Context, l *domain.Lead) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES (?,?,?,?,?,NULL,?)
		ON CONFLICT(id) DO UPDATE SET count = excluded.count
		WHERE leads.settled_payment_id IS NULL`,
		l.ID, l.PublisherID, l.OfferID, formatDay(l.Date), l.Count, formatTime(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: lead %s is already settled", domain.ErrStateConflict, l.ID)
	}
	return nil
}

// FindOpen returns the unsettled lead recorded for a publisher, offer and
// day, or nil when there is none.
func (r *LeadRepo) FindOpen(ctx context.Context, publisherID, offerID string, day time.Time) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads
		WHERE publisher_id = ? AND offer_id = ? AND date = ? AND settled_payment_id IS NULL
		ORDER BY created_at LIMIT 1`,
		publisherID, offerID, formatDay(day),
	)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

// ListInRange returns every lead dated within [from, to], both inclusive.
func (r *LeadRepo) ListInRange(ctx context.Context, from, to time.Time, unsettledOnly bool) ([]domain.Lead, error) {
	q := "SELECT " + leadColumns + " FROM leads WHERE date >= ? AND date <= ?"
	if unsettledOnly {
		q += " AND settled_payment_id IS NULL"
	}
	q += " ORDER BY date, id"

	rows, err := r.db.QueryContext(ctx, q, formatDay(from), formatDay(to))
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

func (r *LeadRepo) ListByPublisher(ctx context.Context, publisherID string, from, to time.Time) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads
		WHERE publisher_id = ? AND date >= ? AND date <= ?
		ORDER BY date, offer_id, id`,
		publisherID, formatDay(from), formatDay(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

type LeadFilter struct {
	PublisherID string
	OfferID     string
	From        *time.Time
	To          *time.Time
	Page        int
	Limit       int
}

func (r *LeadRepo) List(ctx context.Context, f LeadFilter) ([]domain.Lead, int, error) {
	where, args := buildLeadWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM leads"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	_, limit, offset := normalizePage(f.Page, f.Limit)
	q := "SELECT " + leadColumns + " FROM leads" + where + " ORDER BY date DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	leads, err := scanLeads(rows)
	return leads, total, err
}

// ImportExistsByHash checks whether a lead file with the given hash has
// already been imported.
func (r *LeadRepo) ImportExistsByHash(ctx context.Context, hash string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM lead_imports WHERE file_hash = ?", hash,
	).Scan(&count)
	return count > 0, err
}

// InsertImport stores the import record and its leads in one transaction.
// It returns the number of leads actually inserted.
func (r *LeadRepo) InsertImport(ctx context.Context, imp *domain.LeadImport, leads []domain.Lead) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lead_imports (id, format, file_hash, record_count, imported_at)
		VALUES (?,?,?,?,?)`,
		imp.ID, imp.Format, imp.FileHash, imp.RecordCount, formatTime(imp.ImportedAt),
	); err != nil {
		return 0, fmt.Errorf("insert import: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO leads (`+leadColumns+`) VALUES (?,?,?,?,?,NULL,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range leads {
		l := &leads[i]
		res, err := stmt.ExecContext(ctx,
			l.ID, l.PublisherID, l.OfferID, formatDay(l.Date), l.Count, formatTime(l.CreatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("insert lead %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *LeadRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM leads").Scan(&n)
	return n, err
}

func buildLeadWhere(f LeadFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.PublisherID != "" {
		clauses = append(clauses, "publisher_id = ?")
		args = append(args, f.PublisherID)
	}
	if f.OfferID != "" {
		clauses = append(clauses, "offer_id = ?")
		args = append(args, f.OfferID)
	}
	if f.From != nil {
		clauses = append(clauses, "date >= ?")
		args = append(args, formatDay(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "date <= ?")
		args = append(args, formatDay(*f.To))
	}
	return whereClause(clauses), args
}

func scanLeads(rows *sql.Rows) ([]domain.Lead, error) {
	var leads []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, rows.Err()
}

func scanLead(s scanner) (*domain.Lead, error) {
	var l domain.Lead
	var date, created string
	var settled sql.NullString
	if err := s.Scan(&l.ID, &l.PublisherID, &l.OfferID, &date, &l.Count, &settled, &created); err != nil {
		return nil, err
	}
	l.Date = parseDay(date)
	l.CreatedAt = parseTime(created)
	if settled.Valid {
		l.SettledPaymentID = settled.String
	}
	return &l, nil
}
