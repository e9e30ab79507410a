package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var errNotInitialized = errors.New("bigquery client not initialized")

// TableSpec names a destination table and the row struct whose bigquery
// tags define its schema.
type TableSpec struct {
	Name string
	Row  any
	// PartitionField, when set, day-partitions a created table on that column.
	PartitionField string
}

// Client appends snapshot rows to tables in one dataset.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	specs   []TableSpec
}

// NewClient connects to the configured project and makes sure the dataset
// and every table in specs is usable. Missing tables are created only when
// cfg.AutoCreateTables is set.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger, specs ...TableSpec) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errors.New("bigquery dataset is required")
	}
	specs, err := normalizeSpecs(specs)
	if err != nil {
		return nil, err
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(datasetID), specs: specs}
	if err := c.ensureTables(ctx, cfg.AutoCreateTables, logg); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "tables": len(specs)}), "bigquery.ready")
	}
	return c, nil
}

func normalizeSpecs(specs []TableSpec) ([]TableSpec, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one bigquery table is required")
	}
	out := make([]TableSpec, 0, len(specs))
	for _, spec := range specs {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" {
			return nil, errors.New("bigquery table name is required")
		}
		out = append(out, spec)
	}
	return out, nil
}

// tableMetadata builds the create request for spec from its row struct.
func tableMetadata(spec TableSpec) (*bigquery.TableMetadata, error) {
	schema, err := bigquery.InferSchema(spec.Row)
	if err != nil {
		return nil, fmt.Errorf("infer schema for %s: %w", spec.Name, err)
	}
	meta := &bigquery.TableMetadata{Name: spec.Name, Schema: schema}
	if spec.PartitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: spec.PartitionField}
	}
	return meta, nil
}

func (c *Client) ensureTables(ctx context.Context, create bool, logg *logger.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("read dataset %q: %w", c.dataset.DatasetID, err)
	}
	for _, spec := range c.specs {
		table := c.dataset.Table(spec.Name)
		_, err := table.Metadata(ctx)
		switch {
		case err == nil:
			continue
		case !isNotFound(err):
			return fmt.Errorf("read table %q: %w", spec.Name, err)
		case !create:
			return fmt.Errorf("table %q does not exist", spec.Name)
		}
		meta, err := tableMetadata(spec)
		if err != nil {
			return err
		}
		if err := table.Create(ctx, meta); err != nil {
			return fmt.Errorf("create table %q: %w", spec.Name, err)
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "table", spec.Name), "bigquery.table_created")
		}
	}
	return nil
}

// Ping re-reads dataset and table metadata without creating anything.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	return c.ensureTables(ctx, false, nil)
}

// InsertRows streams rows into table. Rows are structs carrying bigquery tags.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("bigquery table name is required")
	}
	if len(rows) == 0 {
		return nil
	}
	if err := c.dataset.Table(table).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("insert into %q: %w", table, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsRetryable reports whether an insert failure is transient. Row-level
// failures are retryable only when every row failed transiently.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rowErrs bigquery.PutMultiError
	if errors.As(err, &rowErrs) {
		if len(rowErrs) == 0 {
			return false
		}
		for _, rowErr := range rowErrs {
			if !IsRetryable(rowErr.Errors) {
				return false
			}
		}
		return true
	}
	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !IsRetryable(inner) {
				return false
			}
		}
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
