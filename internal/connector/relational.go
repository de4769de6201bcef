package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

const relationalPageSize = 1000

// RelationalConnector reads a whole table from a Supabase project through PostgREST,
// paging with offset/limit until the exact count reported in Content-Range is reached.
type RelationalConnector struct {
	client *resty.Client
}

func NewRelationalConnector(httpClient *http.Client) *RelationalConnector {
	return &RelationalConnector{client: resty.NewWithClient(httpClient)}
}

func (c *RelationalConnector) Fetch(ctx context.Context, cfg models.ProviderConfig, source models.SourceRef) (Records, error) {
	rc, ok := cfg.(models.RelationalConfig)
	if !ok {
		return nil, syncerr.Configurationf("relational connector got %s config", cfg.Provider())
	}
	if source.Table == "" {
		return nil, syncerr.Configurationf("relational source needs table")
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", strings.TrimRight(rc.ProjectURL, "/"), url.PathEscape(source.Table))

	return newPager(func(ctx context.Context, cursor string) ([]Record, string, int, error) {
		offset := 0
		if cursor != "" {
			n, err := strconv.Atoi(cursor)
			if err != nil {
				return nil, "", -1, fmt.Errorf("invalid relational offset %q: %w", cursor, err)
			}
			offset = n
		}

		records, total, err := c.selectPage(ctx, endpoint, rc.APIKey, offset)
		if err != nil {
			return nil, "", -1, err
		}

		// The server may cap a page below the requested limit (max-rows), so the
		// reported total decides whether more rows remain.
		next := offset + len(records)
		if len(records) == 0 || (total >= 0 && next >= total) {
			return records, "", total, nil
		}
		return records, strconv.Itoa(next), total, nil
	}), nil
}

func (c *RelationalConnector) selectPage(ctx context.Context, endpoint, apiKey string, offset int) ([]Record, int, error) {
	var rows []map[string]any
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("apikey", apiKey).
		SetAuthToken(apiKey).
		SetHeader("Prefer", "count=exact").
		SetQueryParams(map[string]string{
			"select": "*",
			"offset": strconv.Itoa(offset),
			"limit":  strconv.Itoa(relationalPageSize),
		}).
		SetResult(&rows).
		Get(endpoint)
	if err != nil {
		return nil, -1, syncerr.Transient(string(models.ProviderRelational), 0, err)
	}
	if resp.IsError() {
		return nil, -1, syncerr.Transient(string(models.ProviderRelational), resp.StatusCode(),
			fmt.Errorf("select from table: status %s: %s", resp.Status(), truncate(resp.String(), 200)))
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record(row))
	}
	return records, parseContentRangeTotal(resp.Header().Get("Content-Range")), nil
}

// parseContentRangeTotal extracts N from "0-24/N" or "*/N". Returns -1 when absent or "*".
func parseContentRangeTotal(header string) int {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(header[idx+1:]))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
