package karbon

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type stubFetcher struct {
	pages   []*Page
	errs    []error
	calls   int
	cursors []string
}

func (s *stubFetcher) FetchPage(ctx context.Context, endpoint string, opts QueryOptions) (*Page, error) {
	idx := s.calls
	s.calls++
	s.cursors = append(s.cursors, endpoint)
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx < len(s.pages) {
		return s.pages[idx], nil
	}
	return &Page{}, nil
}

func makeItems(prefix string, n int) []json.RawMessage {
	items := make([]json.RawMessage, n)
	for i := range items {
		items[i] = json.RawMessage(fmt.Sprintf(`{"key":"%s-%d"}`, prefix, i))
	}
	return items
}

func TestFetchAllFollowsCursorsInOrder(t *testing.T) {
	fetcher := &stubFetcher{
		pages: []*Page{
			{Items: makeItems("p1", 100), NextLink: "https://api.example.com/Contacts?page=2"},
			{Items: makeItems("p2", 100), NextLink: "https://api.example.com/Contacts?page=3"},
			{Items: makeItems("p3", 30)},
		},
	}

	pager := NewPager(fetcher, 0, zerolog.Nop())
	items, err := pager.FetchAll(context.Background(), "Contacts", QueryOptions{})
	if err != nil {
		t.Fatalf("fetch all returned error: %v", err)
	}

	if len(items) != 230 {
		t.Fatalf("expected 230 items, got %d", len(items))
	}
	if string(items[0]) != `{"key":"p1-0"}` || string(items[229]) != `{"key":"p3-29"}` {
		t.Fatalf("items out of fetch order")
	}
	if fetcher.cursors[1] != "https://api.example.com/Contacts?page=2" {
		t.Fatalf("second call did not use the returned cursor: %q", fetcher.cursors[1])
	}
}

func TestFetchAllStopsAtPageCeiling(t *testing.T) {
	// A source that always returns a next cursor must not loop forever.
	endless := &stubFetcher{}
	for i := 0; i < 10; i++ {
		endless.pages = append(endless.pages, &Page{
			Items:    makeItems(fmt.Sprintf("p%d", i), 5),
			NextLink: "https://api.example.com/Contacts?again=1",
		})
	}

	pager := NewPager(endless, 3, zerolog.Nop())
	items, err := pager.FetchAll(context.Background(), "Contacts", QueryOptions{})
	if err != nil {
		t.Fatalf("fetch all returned error: %v", err)
	}
	if endless.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", endless.calls)
	}
	if len(items) != 15 {
		t.Fatalf("expected 15 accumulated items, got %d", len(items))
	}
}

func TestFetchAllReturnsPartialResults(t *testing.T) {
	fetcher := &stubFetcher{
		pages: []*Page{
			{Items: makeItems("p1", 100), NextLink: "https://api.example.com/Contacts?page=2"},
		},
		errs: []error{nil, &StatusError{StatusCode: 503}},
	}

	pager := NewPager(fetcher, 0, zerolog.Nop())
	items, err := pager.FetchAll(context.Background(), "Contacts", QueryOptions{})

	var partial *PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialError, got %v", err)
	}
	if partial.Pages != 1 {
		t.Fatalf("expected 1 successful page, got %d", partial.Pages)
	}
	if len(items) != 100 {
		t.Fatalf("expected prior progress to be kept, got %d items", len(items))
	}
}

func TestFetchAllFirstPageFailureIsHard(t *testing.T) {
	fetcher := &stubFetcher{errs: []error{&StatusError{StatusCode: 500}}}

	pager := NewPager(fetcher, 0, zerolog.Nop())
	items, err := pager.FetchAll(context.Background(), "Contacts", QueryOptions{})
	if err == nil {
		t.Fatalf("expected hard error")
	}
	var partial *PartialError
	if errors.As(err, &partial) {
		t.Fatalf("zero-page failure must not be partial")
	}
	if items != nil {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestFetchAllSurfacesConfigurationErrorsImmediately(t *testing.T) {
	fetcher := &stubFetcher{
		pages: []*Page{
			{Items: makeItems("p1", 10), NextLink: "https://api.example.com/Contacts?page=2"},
		},
		errs: []error{nil, ErrUnauthorized},
	}

	pager := NewPager(fetcher, 0, zerolog.Nop())
	_, err := pager.FetchAll(context.Background(), "Contacts", QueryOptions{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
