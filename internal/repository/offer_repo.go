package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wakala/payouts/internal/domain"
)

type OfferRepo struct {
	db *sql.DB
}

func NewOfferRepo(db *sql.DB) *OfferRepo {
	return &OfferRepo{db: db}
}

const offerColumns = "id, name, payout, status, created_at, updated_at"

func (r *OfferRepo) Insert(ctx context.Context, o *domain.Offer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO offers (`+offerColumns+`) VALUES (?,?,?,?,?,?)`,
		o.ID, o.Name, o.Payout.String(), string(o.Status),
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: offer %s already exists", domain.ErrStateConflict, o.ID)
	}
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

// Update overwrites name, payout and status. Payments already created keep
// the amount they were priced at.
func (r *OfferRepo) Update(ctx context.Context, o *domain.Offer) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE offers SET name = ?, payout = ?, status = ?, updated_at = ? WHERE id = ?",
		o.Name, o.Payout.String(), string(o.Status), formatTime(o.UpdatedAt), o.ID,
	)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: offer %s", domain.ErrNotFound, o.ID)
	}
	return nil
}

func (r *OfferRepo) GetByID(ctx context.Context, id string) (*domain.Offer, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+offerColumns+" FROM offers WHERE id = ?", id)
	o, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: offer %s", domain.ErrNotFound, id)
	}
	return o, err
}

// List returns offers ordered by name, optionally restricted to one status.
func (r *OfferRepo) List(ctx context.Context, status string) ([]domain.Offer, error) {
	q := "SELECT " + offerColumns + " FROM offers"
	var args []any
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, status)
	}
	q += " ORDER BY name"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

// OffersByID resolves the given ids. Unknown ids are absent from the map.
func (r *OfferRepo) OffersByID(ctx context.Context, ids []string) (map[string]domain.Offer, error) {
	out := make(map[string]domain.Offer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+offerColumns+" FROM offers WHERE id IN ("+placeholders(len(ids))+")",
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out[o.ID] = *o
	}
	return out, rows.Err()
}

func (r *OfferRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM offers").Scan(&n)
	return n, err
}

func scanOffer(s scanner) (*domain.Offer, error) {
	var o domain.Offer
	var status, created, updated string
	if err := s.Scan(&o.ID, &o.Name, &o.Payout, &status, &created, &updated); err != nil {
		return nil, err
	}
	o.Status = domain.OfferStatus(status)
	o.CreatedAt = parseTime(created)
	o.UpdatedAt = parseTime(updated)
	return &o, nil
}
