package karbon

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// defaultMaxPages bounds a page sequence so a cursor loop upstream can never
// hang a sync run.
const defaultMaxPages = 100

// PageFetcher is the slice of Client the pager needs.
type PageFetcher interface {
	FetchPage(ctx context.Context, endpoint string, opts QueryOptions) (*Page, error)
}

// Pager walks a list endpoint's next-link cursors until exhausted or the page
// ceiling is hit, accumulating items in fetch order.
type Pager struct {
	client   PageFetcher
	maxPages int
	logger   zerolog.Logger
}

// NewPager builds a pager. maxPages <= 0 selects the default ceiling.
func NewPager(client PageFetcher, maxPages int, logger zerolog.Logger) *Pager {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &Pager{client: client, maxPages: maxPages, logger: logger}
}

// FetchAll retrieves every matching item for the endpoint. A failure after at
// least one successful page returns the accumulated items together with a
// *PartialError so prior progress is never discarded; a failure on the first
// page returns a hard error. Configuration errors are surfaced immediately
// regardless of progress.
func (p *Pager) FetchAll(ctx context.Context, endpoint string, opts QueryOptions) ([]json.RawMessage, error) {
	var items []json.RawMessage
	cursor := ""
	pages := 0

	for {
		var (
			page *Page
			err  error
		)
		if cursor == "" {
			page, err = p.client.FetchPage(ctx, endpoint, opts)
		} else {
			page, err = p.client.FetchPage(ctx, cursor, QueryOptions{})
		}
		if err != nil {
			if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrMissingCredentials) {
				return nil, err
			}
			if pages == 0 {
				return nil, fmt.Errorf("failed to fetch first page of %s: %w", endpoint, err)
			}
			return items, &PartialError{Pages: pages, Err: err}
		}

		items = append(items, page.Items...)
		pages++

		if page.NextLink == "" {
			return items, nil
		}
		if pages >= p.maxPages {
			p.logger.Warn().
				Str("endpoint", endpoint).
				Int("pages", pages).
				Int("items", len(items)).
				Msg("page ceiling reached, stopping pagination")
			return items, nil
		}
		cursor = page.NextLink
	}
}
