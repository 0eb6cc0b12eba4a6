package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const (
	transactionsTable = "transactions"
	categoriesTable   = "categories"
)

// Backend is the set of BigQuery operations the store is built on.
type Backend interface {
	QueryFingerprints(ctx context.Context, fingerprints []string) ([]string, error)
	// PutTransactions streams rows; row level failures are reported as a
	// bigquery.PutMultiError indexed like rows.
	PutTransactions(ctx context.Context, rows []*TransactionRow) error
	QueryCategory(ctx context.Context, ownerID, name, txType string) (*CategoryRow, error)
	InsertCategory(ctx context.Context, row *CategoryRow) error
	Close() error
}

// Client is the Backend talking to a real BigQuery dataset. It holds a shared
// client so that operations do not open a connection each.
type Client struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

var _ Backend = (*Client)(nil)

// NewClient creates a BigQuery client for the given project and dataset.
func NewClient(ctx context.Context, projectID, datasetID string) (*Client, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewClient: creating client: %w", err)
	}
	return &Client{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", c.projectID, c.datasetID, name)
}

// QueryFingerprints returns the subset of fingerprints already stored.
func (c *Client) QueryFingerprints(ctx context.Context, fingerprints []string) ([]string, error) {
	q := c.client.Query(fmt.Sprintf(`
		SELECT DISTINCT fingerprint
		FROM %s
		WHERE fingerprint IN UNNEST(@fingerprints)
	`, c.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "fingerprints", Value: fingerprints},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryFingerprints: query read: %w", err)
	}

	var found []string
	for {
		var r struct {
			Fingerprint string `bigquery:"fingerprint"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryFingerprints: iter next: %w", err)
		}
		found = append(found, r.Fingerprint)
	}
	return found, nil
}

// PutTransactions streams rows into the transactions table using the
// fingerprint as insert id, so retried requests do not double insert.
func (c *Client) PutTransactions(ctx context.Context, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, len(rows))
	for i, r := range rows {
		savers[i] = &bigquery.StructSaver{Struct: r, InsertID: r.Fingerprint}
	}

	inserter := c.client.DatasetInProject(c.projectID, c.datasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("PutTransactions: inserting rows: %w", err)
	}
	return nil
}

// QueryCategory returns nil, nil when no category matches.
func (c *Client) QueryCategory(ctx context.Context, ownerID, name, txType string) (*CategoryRow, error) {
	q := c.client.Query(fmt.Sprintf(`
		SELECT category_id, owner_id, name, type, created_ts
		FROM %s
		WHERE owner_id = @owner_id AND name = @name AND type = @type
		ORDER BY created_ts
		LIMIT 1
	`, c.table(categoriesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "name", Value: name},
		{Name: "type", Value: txType},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryCategory: query read: %w", err)
	}

	var row CategoryRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("QueryCategory: iter next: %w", err)
	}
	return &row, nil
}

// InsertCategory adds a category row through DML.
func (c *Client) InsertCategory(ctx context.Context, row *CategoryRow) error {
	q := c.client.Query(fmt.Sprintf(`
		INSERT INTO %s (category_id, owner_id, name, type, created_ts)
		VALUES (@category_id, @owner_id, @name, @type, @created_ts)
	`, c.table(categoriesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category_id", Value: row.CategoryID},
		{Name: "owner_id", Value: row.OwnerID},
		{Name: "name", Value: row.Name},
		{Name: "type", Value: row.Type},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("InsertCategory: running insert query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("InsertCategory: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("InsertCategory: job error: %w", err)
	}
	return nil
}
