package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TxType is the direction of a transaction. Amounts are always stored unsigned.
type TxType string

const (
	TxIncome  TxType = "income"
	TxExpense TxType = "expense"
)

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
	return t == TxIncome || t == TxExpense
}

// Uncategorized is the label carried by a candidate before categorization.
const Uncategorized = "Uncategorized"

// Candidate is a parsed transaction that has not been persisted yet.
// It is owned by the ingestion call that created it until handed to a store.
type Candidate struct {
	Date        civil.Date      `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TxType          `json:"type"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	OwnerID     string          `json:"owner_id"`
	SourceURL   string          `json:"source_url,omitempty"`

	// Occurrence counts earlier identical rows from the same document. It
	// separates two equal purchases on one day while a re-upload of the
	// document still produces the stored fingerprints.
	Occurrence int `json:"-"`
}

// Validate checks the invariants every candidate must hold before persistence.
func (c *Candidate) Validate() error {
	if !c.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", c.Amount.String())
	}
	if !c.Type.Valid() {
		return fmt.Errorf("invalid type %q", c.Type)
	}
	if c.Date.IsZero() || !c.Date.IsValid() {
		return fmt.Errorf("invalid date %q", c.Date.String())
	}
	if c.OwnerID == "" {
		return fmt.Errorf("owner is required")
	}
	return nil
}

// Fingerprint is the duplicate key shared by all stores: two candidates with the
// same owner, day, amount, direction, description and occurrence are the same
// ledger row.
func (c *Candidate) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s",
		c.OwnerID,
		c.Date.String(),
		c.Amount.StringFixed(2),
		c.Type,
		strings.ToLower(CollapseSpaces(c.Description)),
	)
	if c.Occurrence > 0 {
		fmt.Fprintf(h, "|#%d", c.Occurrence)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NumberOccurrences sets Occurrence on every candidate parsed from one
// document, so that repeated identical rows keep distinct fingerprints.
func NumberOccurrences(candidates []*Candidate) {
	counts := make(map[string]int, len(candidates))
	for _, c := range candidates {
		if c == nil {
			continue
		}
		c.Occurrence = 0
		key := c.Fingerprint()
		c.Occurrence = counts[key]
		counts[key]++
	}
}

// CollapseSpaces trims s and replaces every whitespace run with a single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Category is a user-scoped category record.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      TxType    `json:"type"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Confidence is a coarse, advisory quality indicator for receipt extraction.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)
