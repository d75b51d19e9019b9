// Command generate writes the seed fixtures loaded by cmd/server when the
// database is empty: offers.json, publishers.json and leads.csv.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/payouts/internal/domain"
)

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
	AvatarURL     string            `json:"avatar_url,omitempty"`
	PaymentMethod domain.MethodSpec `json:"payment_method"`
}

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	// Two months of traffic so both a closed and an open period exist.
	startDate := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	offers := []seedOffer{
		{"OFF-001", "Sportsbook first deposit", decimal.RequireFromString("12.50"), "active"},
		{"OFF-002", "Casino signup", decimal.RequireFromString("3.50"), "active"},
		{"OFF-003", "Crypto wallet install", decimal.RequireFromString("1.25"), "active"},
		{"OFF-004", "Streaming trial", decimal.RequireFromString("0.80"), "paused"},
		{"OFF-005", "Fintech KYC complete", decimal.RequireFromString("7.00"), "active"},
	}

	publishers := []seedPublisher{
		{"PUB-001", "Acme Media", "ops@acme-media.test", "", domain.MethodSpec{Kind: domain.MethodPayPal, Email: "billing@acme-media.test"}},
		{"PUB-002", "Caracas Leads", "hola@caracasleads.test", "", domain.MethodSpec{Kind: domain.MethodLocalBank, Country: domain.CountryVE, BankDetails: map[string]string{"bank": "Banesco", "account": "0134-0000-00-0000000001"}}},
		{"PUB-003", "Medellin Growth", "team@medellingrowth.test", "", domain.MethodSpec{Kind: domain.MethodLocalBank, Country: domain.CountryCO, BankDetails: map[string]string{"bank": "Bancolombia", "account": "000-123456-78"}}},
		{"PUB-004", "Chain Affiliates", "hq@chainaff.test", "", domain.MethodSpec{Kind: domain.MethodCrypto, Exchange: "binance", Wallet: "0x9f8e7d6c5b4a39281706f5e4d3c2b1a098765432"}},
		{"PUB-005", "Quiet Traffic", "contact@quiet.test", "", domain.MethodSpec{Kind: domain.MethodPayPal, Email: "quiet@paypal.test"}},
	}

	writeJSONFile(filepath.Join(baseDir, "offers.json"), offers)
	fmt.Printf("Generated %d offers -> offers.json\n", len(offers))
	writeJSONFile(filepath.Join(baseDir, "publishers.json"), publishers)
	fmt.Printf("Generated %d publishers -> publishers.json\n", len(publishers))

	generateLeadsCSV(rng, publishers, offers, startDate, endDate, baseDir)
}

// generateLeadsCSV writes one row per publisher, offer and day with traffic.
// Roughly one row in ten carries a zero count.
func generateLeadsCSV(rng *rand.Rand, pubs []seedPublisher, offers []seedOffer, start, end time.Time, baseDir string) {
	filePath := filepath.Join(baseDir, "leads.csv")
	f, err := os.Create(filePath)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "publisher_id", "offer_id", "count"}); err != nil {
		panic(err)
	}

	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for _, p := range pubs {
			for _, o := range offers {
				// Each publisher runs a given offer on about a third of the days.
				if rng.Float64() > 0.33 {
					continue
				}
				leads := 0
				if rng.Float64() > 0.1 {
					leads = 1 + rng.Intn(40)
				}
				row := []string{d.Format(domain.DateLayout), p.ID, o.ID, strconv.Itoa(leads)}
				if err := w.Write(row); err != nil {
					panic(err)
				}
				count++
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		panic(err)
	}

	fmt.Printf("Generated %d lead rows -> leads.csv\n", count)
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	for _, c := range []string{"testdata", "./testdata", "../../testdata"} {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
