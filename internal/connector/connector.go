// Package connector turns external providers into finite streams of raw records.
package connector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/iterator"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

// Record is one raw provider row keyed by column or field name.
type Record map[string]any

// Records is a lazy, non-restartable sequence of records.
// Next returns iterator.Done once exhausted and keeps returning it.
type Records interface {
	Next(ctx context.Context) (Record, error)
	// SizeHint returns the total number of records when the provider reports it, else -1.
	SizeHint() int
}

// Connector reads the table described by source using provider credentials cfg.
type Connector interface {
	Fetch(ctx context.Context, cfg models.ProviderConfig, source models.SourceRef) (Records, error)
}

type Options struct {
	HTTPTimeout    time.Duration
	TabularBaseURL string // override for the tabular API host
}

// Registry resolves the connector for a provider type.
type Registry struct {
	connectors map[models.ProviderType]Connector
}

func NewRegistry(opts Options) *Registry {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: opts.HTTPTimeout}

	return &Registry{
		connectors: map[models.ProviderType]Connector{
			models.ProviderTabular:     NewTabularConnector(httpClient, opts.TabularBaseURL),
			models.ProviderSpreadsheet: NewSpreadsheetConnector(httpClient),
			models.ProviderRelational:  NewRelationalConnector(httpClient),
			models.ProviderIdentity:    NewIdentityConnector(httpClient),
		},
	}
}

// Register replaces the connector of one provider type.
func (r *Registry) Register(provider models.ProviderType, c Connector) {
	r.connectors[provider] = c
}

// Fetch dispatches to the connector matching cfg.Provider().
func (r *Registry) Fetch(ctx context.Context, cfg models.ProviderConfig, source models.SourceRef) (Records, error) {
	c, ok := r.connectors[cfg.Provider()]
	if !ok {
		return nil, syncerr.Configurationf("no connector for provider %q", cfg.Provider())
	}
	return c.Fetch(ctx, cfg, source)
}

// pageFunc fetches the page at cursor ("" for the first page).
// It returns the next cursor ("" when there is none) and the total record count or -1.
type pageFunc func(ctx context.Context, cursor string) (records []Record, next string, total int, err error)

// pager adapts any cursor-based page fetch to Records.
// Pages are fetched strictly one after another, on demand.
type pager struct {
	fetch     pageFunc
	buf       []Record
	cursor    string
	started   bool
	exhausted bool
	err       error
	total     int
}

func newPager(fetch pageFunc) *pager {
	return &pager{fetch: fetch, total: -1}
}

func (p *pager) Next(ctx context.Context) (Record, error) {
	for len(p.buf) == 0 {
		if p.err != nil {
			return nil, p.err
		}
		if p.exhausted {
			return nil, iterator.Done
		}
		if err := p.loadPage(ctx); err != nil {
			p.err = err
			return nil, err
		}
	}

	rec := p.buf[0]
	p.buf[0] = nil
	p.buf = p.buf[1:]
	return rec, nil
}

func (p *pager) loadPage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	page, next, total, err := p.fetch(ctx, p.cursor)
	if err != nil {
		return err
	}
	if p.started && next != "" && next == p.cursor {
		return fmt.Errorf("provider returned the same page cursor %q twice", next)
	}

	p.started = true
	p.cursor = next
	p.buf = page
	if total >= 0 {
		p.total = total
	}
	if next == "" {
		p.exhausted = true
	}
	return nil
}

func (p *pager) SizeHint() int {
	return p.total
}
