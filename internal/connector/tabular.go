package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

const (
	defaultTabularBaseURL = "https://api.airtable.com"
	tabularPageSize       = 100 // provider maximum
)

type tabularPage struct {
	Records []struct {
		ID     string         `json:"id"`
		Fields map[string]any `json:"fields"`
	} `json:"records"`
	Offset string `json:"offset"`
}

// TabularConnector reads an Airtable-style base table through offset pagination.
type TabularConnector struct {
	client  *resty.Client
	baseURL string
}

func NewTabularConnector(httpClient *http.Client, baseURL string) *TabularConnector {
	if baseURL == "" {
		baseURL = defaultTabularBaseURL
	}
	return &TabularConnector{
		client:  resty.NewWithClient(httpClient),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *TabularConnector) Fetch(ctx context.Context, cfg models.ProviderConfig, source models.SourceRef) (Records, error) {
	tc, ok := cfg.(models.TabularConfig)
	if !ok {
		return nil, syncerr.Configurationf("tabular connector got %s config", cfg.Provider())
	}
	if source.BaseID == "" || source.Table == "" {
		return nil, syncerr.Configurationf("tabular source needs baseId and table")
	}

	base := c.baseURL
	if tc.BaseURL != "" {
		base = strings.TrimRight(tc.BaseURL, "/")
	}
	endpoint := fmt.Sprintf("%s/v0/%s/%s", base, url.PathEscape(source.BaseID), url.PathEscape(source.Table))

	return newPager(func(ctx context.Context, cursor string) ([]Record, string, int, error) {
		return c.fetchPage(ctx, endpoint, tc.APIKey, cursor)
	}), nil
}

func (c *TabularConnector) fetchPage(ctx context.Context, endpoint, apiKey, offset string) ([]Record, string, int, error) {
	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetQueryParam("pageSize", strconv.Itoa(tabularPageSize)).
		SetResult(&tabularPage{})
	if offset != "" {
		req.SetQueryParam("offset", offset)
	}

	resp, err := req.Get(endpoint)
	if err != nil {
		return nil, "", -1, syncerr.Transient(string(models.ProviderTabular), 0, err)
	}
	if resp.IsError() {
		log.Warn().Int("statusCode", resp.StatusCode()).Str("endpoint", endpoint).Msg("Tabular API returned an error")
		return nil, "", -1, syncerr.Transient(string(models.ProviderTabular), resp.StatusCode(),
			fmt.Errorf("list records: status %s", resp.Status()))
	}

	page, ok := resp.Result().(*tabularPage)
	if !ok || page == nil {
		return nil, "", -1, syncerr.Transient(string(models.ProviderTabular), resp.StatusCode(),
			fmt.Errorf("list records: unexpected response body"))
	}

	records := make([]Record, 0, len(page.Records))
	for _, r := range page.Records {
		rec := make(Record, len(r.Fields)+1)
		for k, v := range r.Fields {
			rec[k] = v
		}
		if _, exists := rec["id"]; !exists {
			rec["id"] = r.ID
		}
		records = append(records, rec)
	}

	return records, page.Offset, -1, nil
}
