package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

// SpreadsheetConnector reads one sheet of a Google spreadsheet in a single range read.
type SpreadsheetConnector struct {
	httpClient *http.Client
	newService func(ctx context.Context, cfg models.SpreadsheetConfig) (*sheets.Service, error)
}

func NewSpreadsheetConnector(httpClient *http.Client) *SpreadsheetConnector {
	c := &SpreadsheetConnector{httpClient: httpClient}
	c.newService = c.serviceAccountService
	return c
}

func (c *SpreadsheetConnector) serviceAccountService(ctx context.Context, cfg models.SpreadsheetConfig) (*sheets.Service, error) {
	opts, err := serviceAccountOptions(ctx, c.httpClient, cfg.ServiceAccount, cfg.Endpoint, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, err
	}
	return sheets.NewService(ctx, opts...)
}

func (c *SpreadsheetConnector) Fetch(ctx context.Context, cfg models.ProviderConfig, source models.SourceRef) (Records, error) {
	sc, ok := cfg.(models.SpreadsheetConfig)
	if !ok {
		return nil, syncerr.Configurationf("spreadsheet connector got %s config", cfg.Provider())
	}
	if source.SpreadsheetID == "" {
		return nil, syncerr.Configurationf("spreadsheet source needs spreadsheetId")
	}
	if source.SheetName == "" && source.SheetID == nil {
		return nil, syncerr.Configurationf("spreadsheet source needs sheetName or sheetId")
	}
	if source.HeaderRow < 0 {
		return nil, syncerr.Configurationf("spreadsheet headerRow must be positive, got %d", source.HeaderRow)
	}

	svc, err := c.newService(ctx, sc)
	if err != nil {
		return nil, err
	}

	return newPager(func(ctx context.Context, _ string) ([]Record, string, int, error) {
		records, err := c.readSheet(ctx, svc, source)
		if err != nil {
			return nil, "", -1, err
		}
		return records, "", len(records), nil
	}), nil
}

func (c *SpreadsheetConnector) readSheet(ctx context.Context, svc *sheets.Service, source models.SourceRef) ([]Record, error) {
	title := source.SheetName
	if title == "" {
		resolved, err := resolveSheetTitle(ctx, svc, source.SpreadsheetID, *source.SheetID)
		if err != nil {
			return nil, err
		}
		title = resolved
	}

	vr, err := svc.Spreadsheets.Values.Get(source.SpreadsheetID, quoteSheetTitle(title)).Context(ctx).Do()
	if err != nil {
		return nil, googleTransient(models.ProviderSpreadsheet, fmt.Errorf("read sheet %q: %w", title, err))
	}

	headerRow := source.HeaderRow
	if headerRow == 0 {
		headerRow = 1
	}

	records := rowsToRecords(vr.Values, headerRow, source.SkipHeader)
	log.Debug().Str("spreadsheetId", source.SpreadsheetID).Str("sheet", title).Int("rows", len(records)).Msg("Read spreadsheet values")
	return records, nil
}

func resolveSheetTitle(ctx context.Context, svc *sheets.Service, spreadsheetID string, sheetID int64) (string, error) {
	ss, err := svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return "", googleTransient(models.ProviderSpreadsheet, fmt.Errorf("get spreadsheet metadata: %w", err))
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.SheetId == sheetID {
			return sh.Properties.Title, nil
		}
	}
	return "", syncerr.Configurationf("sheet id %d not found in spreadsheet %s", sheetID, spreadsheetID)
}

// rowsToRecords names columns after the 1-based headerRow.
// With skipHeader, the header row and everything above it are dropped.
func rowsToRecords(values [][]interface{}, headerRow int, skipHeader bool) []Record {
	if len(values) < headerRow {
		return nil
	}

	header := values[headerRow-1]
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(fmt.Sprint(h))
	}

	start := 0
	if skipHeader {
		start = headerRow
	}

	records := make([]Record, 0, len(values)-start)
	for _, row := range values[start:] {
		rec := make(Record, len(names))
		for i, name := range names {
			if name == "" {
				continue
			}
			if _, dup := rec[name]; dup {
				continue
			}
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = ""
			}
		}
		records = append(records, rec)
	}
	return records
}

func quoteSheetTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// serviceAccountOptions builds client options authenticated as the given service account.
// Token requests share httpClient so they observe the provider timeout.
func serviceAccountOptions(ctx context.Context, httpClient *http.Client, serviceAccount []byte, endpoint string, scopes ...string) ([]option.ClientOption, error) {
	jwtCfg, err := google.JWTConfigFromJSON(serviceAccount, scopes...)
	if err != nil {
		return nil, syncerr.Configuration("invalid service account credentials", err)
	}

	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	ts := oauth2.ReuseTokenSource(nil, jwtCfg.TokenSource(tokenCtx))

	client := &http.Client{
		Timeout: httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   httpClient.Transport,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts, nil
}

func googleTransient(provider models.ProviderType, err error) error {
	status := 0
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		status = gerr.Code
	}
	return syncerr.Transient(string(provider), status, err)
}
