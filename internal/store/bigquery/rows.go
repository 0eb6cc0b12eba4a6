package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	OwnerID       string `bigquery:"owner_id"`       // REQUIRED
	Fingerprint   string `bigquery:"fingerprint"`    // REQUIRED, also the streaming insert id

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC, unsigned
	Direction       string     `bigquery:"direction"`        // REQUIRED: income | expense

	Description  string              `bigquery:"description"`   // REQUIRED
	CategoryName string              `bigquery:"category_name"` // REQUIRED
	SourceURL    bigquery.NullString `bigquery:"source_url"`    // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

type CategoryRow struct {
	CategoryID string    `bigquery:"category_id"` // REQUIRED
	OwnerID    string    `bigquery:"owner_id"`    // REQUIRED
	Name       string    `bigquery:"name"`        // REQUIRED
	Type       string    `bigquery:"type"`        // REQUIRED: income | expense
	CreatedTS  time.Time `bigquery:"created_ts"`  // REQUIRED
}
