package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wakala/payouts/internal/domain"
)

type PublisherRepo struct {
	db *sql.DB
}

func NewPublisherRepo(db *sql.DB) *PublisherRepo {
	return &PublisherRepo{db: db}
}

const publisherColumns = "id, name, email, avatar_url, payment_method, created_at"

func (r *PublisherRepo) Insert(ctx context.Context, p *domain.Publisher) error {
	method, err := domain.EncodeMethod(p.PaymentMethod)
	if err != nil {
		return fmt.Errorf("encode method: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO publishers (`+publisherColumns+`) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, p.Email, p.AvatarURL, method, formatTime(p.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: publisher %s already exists", domain.ErrStateConflict, p.ID)
	}
	if err != nil {
		return fmt.Errorf("insert publisher: %w", err)
	}
	return nil
}

func (r *PublisherRepo) Update(ctx context.Context, p *domain.Publisher) error {
	method, err := domain.EncodeMethod(p.PaymentMethod)
	if err != nil {
		return fmt.Errorf("encode method: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE publishers SET name = ?, email = ?, avatar_url = ?, payment_method = ? WHERE id = ?",
		p.Name, p.Email, p.AvatarURL, method, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update publisher: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: publisher %s", domain.ErrNotFound, p.ID)
	}
	return nil
}

func (r *PublisherRepo) GetByID(ctx context.Context, id string) (*domain.Publisher, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+publisherColumns+" FROM publishers WHERE id = ?", id)
	p, err := scanPublisher(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: publisher %s", domain.ErrNotFound, id)
	}
	return p, err
}

func (r *PublisherRepo) List(ctx context.Context) ([]domain.Publisher, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+publisherColumns+" FROM publishers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pubs []domain.Publisher
	for rows.Next() {
		p, err := scanPublisher(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, *p)
	}
	return pubs, rows.Err()
}

// PublishersByID resolves the given ids. Unknown ids are absent from the map.
func (r *PublisherRepo) PublishersByID(ctx context.Context, ids []string) (map[string]domain.Publisher, error) {
	out := make(map[string]domain.Publisher, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+publisherColumns+" FROM publishers WHERE id IN ("+placeholders(len(ids))+")",
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query publishers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPublisher(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = *p
	}
	return out, rows.Err()
}

func (r *PublisherRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM publishers").Scan(&n)
	return n, err
}

func scanPublisher(s scanner) (*domain.Publisher, error) {
	var p domain.Publisher
	var method, created string
	if err := s.Scan(&p.ID, &p.Name, &p.Email, &p.AvatarURL, &method, &created); err != nil {
		return nil, err
	}
	m, err := domain.DecodeMethod(method)
	if err != nil {
		return nil, fmt.Errorf("publisher %s: %w", p.ID, err)
	}
	p.PaymentMethod = m
	p.CreatedAt = parseTime(created)
	return &p, nil
}
