// Package store implements a PostgREST-style client for the persistent
// table store described in spec §6: each table is addressed by name under
// {persistent_store_url}/rest/v1/{table}, authorized with an apikey /
// bearer service-key header pair. This replaces the teacher's JSON-file
// position store (internal/store/store.go) with a REST client, since the
// persistent store here is an external relational collaborator addressed by
// table name, not a local cache of maker inventory. See SPEC_FULL.md §13.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrPersistenceUnavailable is returned when the configured table does not
// exist (schema drift). Per spec §7 this is surfaced as a clear, actionable
// error; the calling component keeps running in degraded mode.
var ErrPersistenceUnavailable = fmt.Errorf("persistence_unavailable")

// Table names recognized by spec §6.
const (
	TableMarketMetadata      = "market_metadata"
	TableMarketSignals       = "market_signals"
	TableMarketRelationships = "market_relationships"
	TableArbitrageAlerts     = "arbitrage_alerts"
	TableScenarioReports     = "scenario_reports"
)

// Client is a table-addressed REST client for the persistent store.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// New creates a store client against baseURL with the given service key,
// following the teacher's resty-construction idiom: base URL, timeout,
// bounded retry on 5xx.
func New(baseURL, serviceKey string, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL + "/rest/v1").
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("apikey", serviceKey).
		SetHeader("Authorization", "Bearer "+serviceKey).
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient, logger: logger.With("component", "store")}
}

// Select fetches rows from table, applying raw PostgREST query parameters
// (e.g. "relationship_type=eq.equivalent", "order=timestamp.desc",
// "limit=500"), and decodes the result into out (a pointer to a slice).
func (c *Client) Select(ctx context.Context, table string, query map[string]string, out any) error {
	req := c.http.R().SetContext(ctx).SetResult(out)
	for k, v := range query {
		req.SetQueryParam(k, v)
	}
	resp, err := req.Get("/" + table)
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: table %s", ErrPersistenceUnavailable, table)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("select %s: status %d: %s", table, resp.StatusCode(), resp.String())
	}
	return nil
}

// Insert appends rows (a slice) to table.
func (c *Client) Insert(ctx context.Context, table string, rows any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rows).
		Post("/" + table)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: table %s", ErrPersistenceUnavailable, table)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("insert %s: status %d: %s", table, resp.StatusCode(), resp.String())
	}
	return nil
}

// Upsert inserts or updates rows in table, treating onConflict (a
// comma-separated column list) as the conflict target — the PostgREST
// contract used for the relationship table's canonical-key upsert (spec
// §4.4) and for any other idempotent write.
func (c *Client) Upsert(ctx context.Context, table string, onConflict string, rows any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "resolution=merge-duplicates").
		SetQueryParam("on_conflict", onConflict).
		SetBody(rows).
		Post("/" + table)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: table %s", ErrPersistenceUnavailable, table)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("upsert %s: status %d: %s", table, resp.StatusCode(), resp.String())
	}
	return nil
}

// Patch updates rows in table matching the query filter.
func (c *Client) Patch(ctx context.Context, table string, query map[string]string, body any) error {
	req := c.http.R().SetContext(ctx).SetBody(body)
	for k, v := range query {
		req.SetQueryParam(k, v)
	}
	resp, err := req.Patch("/" + table)
	if err != nil {
		return fmt.Errorf("patch %s: %w", table, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: table %s", ErrPersistenceUnavailable, table)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("patch %s: status %d: %s", table, resp.StatusCode(), resp.String())
	}
	return nil
}
