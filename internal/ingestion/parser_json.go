package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wakala/payouts/internal/domain"
)

type jsonLead struct {
	Date        string `json:"date"`
	PublisherID string `json:"publisher_id"`
	OfferID     string `json:"offer_id"`
	Count       *int   `json:"count"`
}

// ParseLeadsJSON parses a JSON array of lead objects:
//
//	[{"date":"2024-01-05","publisher_id":"P1","offer_id":"O1","count":12}]
//
// Errors name the 1-based record index in place of a line number.
func ParseLeadsJSON(data []byte) ([]LeadRow, error) {
	var entries []jsonLead
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", domain.ErrValidation, err)
	}

	rows := make([]LeadRow, 0, len(entries))
	for i, e := range entries {
		if e.Count == nil {
			return nil, fmt.Errorf("%w: record %d: count is required", domain.ErrValidation, i+1)
		}
		r := LeadRow{
			Line:        i + 1,
			Date:        strings.TrimSpace(e.Date),
			PublisherID: strings.TrimSpace(e.PublisherID),
			OfferID:     strings.TrimSpace(e.OfferID),
			Count:       *e.Count,
		}
		if _, err := r.lead(); err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}
