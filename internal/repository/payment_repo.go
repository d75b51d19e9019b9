package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/payouts/internal/domain"
)

type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

const paymentColumns = `id, publisher_id, amount, currency, payment_method, status, created_at,
	paid_at, exchange_rate, final_amount, final_currency, notes, failure_reason,
	period_from, period_to, lead_count, fraud_flagged, fraud_reason, fraud_checked_at`

// CreateBatch persists a settlement run in a single transaction: the
// payments, their line items, and the settled marker on every lead the items
// reference. Any failure rolls the whole batch back.
func (r *PaymentRepo) CreateBatch(ctx context.Context, payments []domain.Payment, items []domain.PaymentItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	payStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare payment: %w", err)
	}
	defer payStmt.Close()

	for i := range payments {
		p := &payments[i]
		method, err := domain.EncodeMethod(p.PaymentMethod)
		if err != nil {
			return fmt.Errorf("encode method for %s: %w", p.PublisherID, err)
		}
		if _, err := payStmt.ExecContext(ctx,
			p.ID, p.PublisherID, p.Amount, p.Currency, method, string(p.Status),
			formatTime(p.CreatedAt), formatNullableTime(p.PaidAt), p.ExchangeRate, p.FinalAmount,
			nullableString(p.FinalCurrency), p.Notes, nullableString(p.FailureReason),
			formatDay(p.PeriodFrom), formatDay(p.PeriodTo), p.LeadCount, p.FraudFlagged,
			nullableString(p.FraudReason), formatNullableTime(p.FraudCheckedAt),
		); err != nil {
			return fmt.Errorf("insert payment %d: %w", i, err)
		}
	}

	itemStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO payment_items (payment_id, lead_id, offer_id, count, payout, subtotal)
		VALUES (?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare item: %w", err)
	}
	defer itemStmt.Close()

	leadStmt, err := tx.PrepareContext(ctx, "UPDATE leads SET settled_payment_id = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("prepare lead: %w", err)
	}
	defer leadStmt.Close()

	for i := range items {
		it := &items[i]
		if _, err := itemStmt.ExecContext(ctx,
			it.PaymentID, it.LeadID, it.OfferID, it.Count, it.Payout, it.Subtotal,
		); err != nil {
			return fmt.Errorf("insert item %d: %w", i, err)
		}
		if _, err := leadStmt.ExecContext(ctx, it.PaymentID, it.LeadID); err != nil {
			return fmt.Errorf("mark lead %s: %w", it.LeadID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
	}
	return p, err
}

// MarkPaid moves a pending payment to paid. The write only applies while
// the row is still pending, so concurrent confirmations cannot both win.
func (r *PaymentRepo) MarkPaid(ctx context.Context, id string, s domain.Settlement) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, paid_at = ?, exchange_rate = ?, final_amount = ?, final_currency = ?
		WHERE id = ? AND status = ?`,
		string(domain.PaymentPaid), formatTime(s.PaidAt), s.ExchangeRate, s.FinalAmount,
		s.FinalCurrency, id, string(domain.PaymentPending),
	)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	return r.checkTransition(ctx, res, id)
}

// MarkFailed moves a pending payment to failed under the same condition as
// MarkPaid.
func (r *PaymentRepo) MarkFailed(ctx context.Context, id, reason string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE payments SET status = ?, failure_reason = ? WHERE id = ? AND status = ?",
		string(domain.PaymentFailed), reason, id, string(domain.PaymentPending),
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return r.checkTransition(ctx, res, id)
}

func (r *PaymentRepo) checkTransition(ctx context.Context, res sql.Result, id string) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var status string
	err := r.db.QueryRowContext(ctx, "SELECT status FROM payments WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	return fmt.Errorf("%w: payment %s is %s", domain.ErrStateConflict, id, status)
}

// Delete removes the payment and its items and releases the leads it had
// settled.
func (r *PaymentRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE leads SET settled_payment_id = NULL WHERE settled_payment_id = ?", id,
	); err != nil {
		return fmt.Errorf("release leads: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM payment_items WHERE payment_id = ?", id); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PaymentRepo) SetFraudVerdict(ctx context.Context, id string, v domain.FraudVerdict) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE payments SET fraud_flagged = ?, fraud_reason = ?, fraud_checked_at = ? WHERE id = ?",
		v.Flagged, nullableString(v.Reason), formatTime(v.CheckedAt), id,
	)
	if err != nil {
		return fmt.Errorf("set fraud verdict: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
	}
	return nil
}

// ListByPublisher returns all payments of one publisher, oldest first.
func (r *PaymentRepo) ListByPublisher(ctx context.Context, publisherID string) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE publisher_id = ? ORDER BY created_at, id",
		publisherID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (r *PaymentRepo) ListByStatus(ctx context.Context, status domain.PaymentStatus) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE status = ? ORDER BY created_at, id",
		string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (r *PaymentRepo) Items(ctx context.Context, paymentID string) ([]domain.PaymentItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT payment_id, lead_id, offer_id, count, payout, subtotal
		FROM payment_items WHERE payment_id = ? ORDER BY lead_id`,
		paymentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.PaymentItem
	for rows.Next() {
		var it domain.PaymentItem
		if err := rows.Scan(&it.PaymentID, &it.LeadID, &it.OfferID, &it.Count, &it.Payout, &it.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type PaymentFilter struct {
	PublisherID string
	Status      string
	From        *time.Time
	To          *time.Time
	Flagged     *bool
	Page        int
	Limit       int
}

func (r *PaymentRepo) List(ctx context.Context, f PaymentFilter) ([]domain.Payment, int, error) {
	where, args := buildPaymentWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payments"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	_, limit, offset := normalizePage(f.Page, f.Limit)
	q := "SELECT " + paymentColumns + " FROM payments" + where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	payments, err := scanPayments(rows)
	return payments, total, err
}

func (r *PaymentRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payments").Scan(&n)
	return n, err
}

// PaymentStats aggregates the ledger for the dashboard.
type PaymentStats struct {
	Total          int                                      `json:"total"`
	ByStatus       map[domain.PaymentStatus]int             `json:"by_status"`
	AmountByStatus map[domain.PaymentStatus]decimal.Decimal `json:"amount_by_status"`
	TotalAmount    decimal.Decimal                          `json:"total_amount"`
	Flagged        int                                      `json:"flagged"`
}

type PublisherTotal struct {
	PublisherID string          `json:"publisher_id"`
	Payments    int             `json:"payments"`
	Amount      decimal.Decimal `json:"amount"`
}

// GetStats sums the ledger in Go so amounts stay exact decimals.
func (r *PaymentRepo) GetStats(ctx context.Context) (*PaymentStats, []PublisherTotal, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT publisher_id, status, amount, fraud_flagged FROM payments")
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	s := &PaymentStats{
		ByStatus:       make(map[domain.PaymentStatus]int),
		AmountByStatus: make(map[domain.PaymentStatus]decimal.Decimal),
	}
	byPublisher := make(map[string]*PublisherTotal)

	for rows.Next() {
		var pubID, status string
		var amount decimal.Decimal
		var flagged bool
		if err := rows.Scan(&pubID, &status, &amount, &flagged); err != nil {
			return nil, nil, err
		}
		st := domain.PaymentStatus(status)
		s.Total++
		s.ByStatus[st]++
		s.AmountByStatus[st] = s.AmountByStatus[st].Add(amount)
		s.TotalAmount = s.TotalAmount.Add(amount)
		if flagged {
			s.Flagged++
		}

		pt, ok := byPublisher[pubID]
		if !ok {
			pt = &PublisherTotal{PublisherID: pubID}
			byPublisher[pubID] = pt
		}
		pt.Payments++
		pt.Amount = pt.Amount.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	totals := make([]PublisherTotal, 0, len(byPublisher))
	for _, pt := range byPublisher {
		totals = append(totals, *pt)
	}
	sort.Slice(totals, func(i, j int) bool {
		if c := totals[i].Amount.Cmp(totals[j].Amount); c != 0 {
			return c > 0
		}
		return totals[i].PublisherID < totals[j].PublisherID
	})
	return s, totals, nil
}

func buildPaymentWhere(f PaymentFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.PublisherID != "" {
		clauses = append(clauses, "publisher_id = ?")
		args = append(args, f.PublisherID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, formatTime(*f.To))
	}
	if f.Flagged != nil {
		clauses = append(clauses, "fraud_flagged = ?")
		args = append(args, *f.Flagged)
	}
	return whereClause(clauses), args
}

func scanPayments(rows *sql.Rows) ([]domain.Payment, error) {
	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	var method, status, created, periodFrom, periodTo string
	var paidAt, finalCurrency, failureReason, fraudReason, fraudCheckedAt sql.NullString

	err := s.Scan(
		&p.ID, &p.PublisherID, &p.Amount, &p.Currency, &method, &status, &created,
		&paidAt, &p.ExchangeRate, &p.FinalAmount, &finalCurrency, &p.Notes, &failureReason,
		&periodFrom, &periodTo, &p.LeadCount, &p.FraudFlagged, &fraudReason, &fraudCheckedAt,
	)
	if err != nil {
		return nil, err
	}

	m, err := domain.DecodeMethod(method)
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", p.ID, err)
	}
	p.PaymentMethod = m
	p.Status = domain.PaymentStatus(status)
	p.CreatedAt = parseTime(created)
	p.PaidAt = parseNullableTime(paidAt)
	p.FinalCurrency = finalCurrency.String
	p.FailureReason = failureReason.String
	p.PeriodFrom = parseDay(periodFrom)
	p.PeriodTo = parseDay(periodTo)
	p.FraudReason = fraudReason.String
	p.FraudCheckedAt = parseNullableTime(fraudCheckedAt)
	return &p, nil
}
