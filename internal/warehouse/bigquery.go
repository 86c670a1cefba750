package warehouse

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
)

// jobPollTimeout is how long one results call waits server side for a running job.
const jobPollTimeout = 30 * time.Second

// BigQueryClient runs queries through the BigQuery v2 REST API.
type BigQueryClient struct {
	service   *bigquery.Service
	projectID string
	location  string
	pageSize  int64
	log       logger.Logger
}

// NewBigQueryClient creates a BigQuery client from settings. Extra options are
// appended after the configured ones, tests pass option.WithHTTPClient here.
func NewBigQueryClient(ctx context.Context, settings *conf.WarehouseSettings, log logger.Logger, opts ...option.ClientOption) (*BigQueryClient, error) {
	if log == nil {
		log = logger.Global().Module("warehouse")
	}

	var clientOpts []option.ClientOption
	if settings.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(settings.CredentialsFile))
	}
	if settings.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(settings.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	service, err := bigquery.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, errors.New(err).
			Component("warehouse").
			Category(errors.CategoryConfiguration).
			Context("operation", "create_bigquery_service").
			Context("project_id", settings.ProjectID).
			Build()
	}

	return &BigQueryClient{
		service:   service,
		projectID: settings.ProjectID,
		location:  settings.Location,
		pageSize:  settings.PageSize,
		log:       log,
	}, nil
}

// Query runs q as a standard SQL job and pages through all results.
func (c *BigQueryClient) Query(ctx context.Context, q Query) ([]Row, error) {
	start := time.Now()

	params, err := toQueryParameters(q.Params)
	if err != nil {
		return nil, errors.New(err).
			Component("warehouse").
			Category(errors.CategoryValidation).
			Context("query", q.Name).
			Build()
	}

	useLegacySQL := false
	req := &bigquery.QueryRequest{
		Query:           q.SQL,
		UseLegacySql:    &useLegacySQL,
		ParameterMode:   "NAMED",
		QueryParameters: params,
		Location:        c.location,
		MaxResults:      c.pageSize,
		TimeoutMs:       jobPollTimeout.Milliseconds(),
	}

	resp, err := c.service.Jobs.Query(c.projectID, req).Context(ctx).Do()
	if err != nil {
		return nil, c.wrap(err, q, "jobs_query")
	}

	page := resultPage{
		complete: resp.JobComplete,
		token:    resp.PageToken,
		rows:     resp.Rows,
		schema:   resp.Schema,
	}
	if resp.JobReference == nil {
		return nil, c.wrap(fmt.Errorf("query response carries no job reference"), q, "jobs_query")
	}
	jobID := resp.JobReference.JobId
	location := resp.JobReference.Location

	var rows []Row
	for {
		if page.complete {
			decoded, err := decodeRows(page.schema, page.rows)
			if err != nil {
				return nil, c.wrap(err, q, "decode_rows")
			}
			rows = append(rows, decoded...)
			if page.token == "" {
				break
			}
		}

		page, err = c.nextPage(ctx, jobID, location, page)
		if err != nil {
			return nil, c.wrap(err, q, "get_query_results")
		}
	}

	c.log.Debug("warehouse query finished",
		logger.String("query", q.Name),
		logger.Int("rows", len(rows)),
		logger.Duration("elapsed", time.Since(start)))

	return rows, nil
}

type resultPage struct {
	complete bool
	token    string
	rows     []*bigquery.TableRow
	schema   *bigquery.TableSchema
}

// nextPage fetches the page after prev, or polls again while the job is running.
func (c *BigQueryClient) nextPage(ctx context.Context, jobID, location string, prev resultPage) (resultPage, error) {
	call := c.service.Jobs.GetQueryResults(c.projectID, jobID).
		TimeoutMs(jobPollTimeout.Milliseconds()).
		Context(ctx)
	if location != "" {
		call = call.Location(location)
	}
	if c.pageSize > 0 {
		call = call.MaxResults(c.pageSize)
	}
	if prev.complete {
		call = call.PageToken(prev.token)
	}

	resp, err := call.Do()
	if err != nil {
		return resultPage{}, err
	}

	schema := resp.Schema
	if schema == nil {
		schema = prev.schema
	}
	return resultPage{
		complete: resp.JobComplete,
		token:    resp.PageToken,
		rows:     resp.Rows,
		schema:   schema,
	}, nil
}

func (c *BigQueryClient) wrap(err error, q Query, operation string) error {
	category := errors.CategoryWarehouse
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		category = errors.CategoryCancellation
	case isNetworkError(err):
		category = errors.CategoryNetwork
	}
	return errors.New(err).
		Component("warehouse").
		Category(category).
		Context("operation", operation).
		Context("query", q.Name).
		Context("project_id", c.projectID).
		Build()
}

func isNetworkError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "i/o timeout")
}

func toQueryParameters(params []Param) ([]*bigquery.QueryParameter, error) {
	out := make([]*bigquery.QueryParameter, 0, len(params))
	for _, p := range params {
		value, err := formatParamValue(p)
		if err != nil {
			return nil, err
		}
		out = append(out, &bigquery.QueryParameter{
			Name:           p.Name,
			ParameterType:  &bigquery.QueryParameterType{Type: string(p.Type)},
			ParameterValue: &bigquery.QueryParameterValue{Value: value},
		})
	}
	return out, nil
}

func formatParamValue(p Param) (string, error) {
	switch p.Type {
	case ParamString:
		if s, ok := p.Value.(string); ok {
			return s, nil
		}
	case ParamInt64:
		switch v := p.Value.(type) {
		case int64:
			return strconv.FormatInt(v, 10), nil
		case int:
			return strconv.Itoa(v), nil
		}
	case ParamFloat64:
		if v, ok := p.Value.(float64); ok {
			return strconv.FormatFloat(v, 'g', -1, 64), nil
		}
	case ParamDate:
		if v, ok := p.Value.(time.Time); ok {
			return v.Format(time.DateOnly), nil
		}
	case ParamBool:
		if v, ok := p.Value.(bool); ok {
			return strconv.FormatBool(v), nil
		}
	default:
		return "", fmt.Errorf("parameter %s has unsupported type %q", p.Name, p.Type)
	}
	return "", fmt.Errorf("parameter %s: value %T does not match type %s", p.Name, p.Value, p.Type)
}

func decodeRows(schema *bigquery.TableSchema, rows []*bigquery.TableRow) ([]Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if schema == nil {
		return nil, fmt.Errorf("result rows without schema")
	}

	out := make([]Row, 0, len(rows))
	for i, tr := range rows {
		if len(tr.F) != len(schema.Fields) {
			return nil, fmt.Errorf("row %d has %d cells, schema has %d fields", i, len(tr.F), len(schema.Fields))
		}
		row := make(Row, len(schema.Fields))
		for j, field := range schema.Fields {
			v, err := decodeCell(field, tr.F[j].V)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, field.Name, err)
			}
			row[field.Name] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func decodeCell(field *bigquery.TableFieldSchema, raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		// nulls, and repeated or record values left as decoded JSON
		return raw, nil
	}

	switch field.Type {
	case "INTEGER", "INT64":
		return strconv.ParseInt(s, 10, 64)
	case "FLOAT", "FLOAT64", "NUMERIC", "BIGNUMERIC":
		return strconv.ParseFloat(s, 64)
	case "BOOLEAN", "BOOL":
		return strconv.ParseBool(s)
	case "TIMESTAMP":
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC(), nil
	case "DATE", "DATETIME":
		t, ok := parseTimeString(s)
		if !ok {
			return nil, fmt.Errorf("unparseable %s %q", strings.ToLower(field.Type), s)
		}
		return t, nil
	default:
		return s, nil
	}
}
