package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wakala/payouts/internal/domain"
)

var csvHeader = []string{"date", "publisher_id", "offer_id", "count"}

// ParseLeadsCSV parses a comma separated lead file.
//
// Expected header:
//
//	date,publisher_id,offer_id,count
//
// Blank lines are ignored. Errors carry the 1-based line number.
func ParseLeadsCSV(data []byte) ([]LeadRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", domain.ErrValidation, err)
	}
	if len(header) < len(csvHeader) {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", domain.ErrValidation, len(csvHeader), len(header))
	}
	for i, want := range csvHeader {
		if got := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))); got != want {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", domain.ErrValidation, i+1, got, want)
		}
	}

	var rows []LeadRow
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		line, _ := reader.FieldPos(0)
		if len(row) < len(csvHeader) {
			return nil, fmt.Errorf("%w: line %d: expected %d columns, got %d",
				domain.ErrValidation, line, len(csvHeader), len(row))
		}

		count, err := strconv.Atoi(strings.TrimSpace(row[3]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d count: %v", domain.ErrValidation, line, err)
		}
		r := LeadRow{
			Line:        line,
			Date:        strings.TrimSpace(row[0]),
			PublisherID: strings.TrimSpace(row[1]),
			OfferID:     strings.TrimSpace(row[2]),
			Count:       count,
		}
		if _, err := r.lead(); err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}
