package domain

import "time"

// DateLayout is the calendar-day format used for lead dates, period bounds
// and fraud oracle payloads.
const DateLayout = "2006-01-02"

// Lead is one recorded count of performance events for a publisher, offer
// and calendar day.
type Lead struct {
	ID               string    `json:"id"`
	PublisherID      string    `json:"publisher_id"`
	OfferID          string    `json:"offer_id"`
	Date             time.Time `json:"date"`
	Count            int       `json:"count"`
	SettledPaymentID string    `json:"settled_payment_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Settled reports whether the lead was folded into a committed payment.
func (l Lead) Settled() bool {
	return l.SettledPaymentID != ""
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date, falling back to RFC3339.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return Day(t), nil
}
