package karbon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:     baseURL,
		AccessKey:   "test-access-key",
		BearerToken: "test-bearer-token",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://example.com"}, zerolog.Nop())
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}

	_, err = NewClient(Config{BaseURL: "https://example.com", AccessKey: "k"}, zerolog.Nop())
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials with only access key, got %v", err)
	}
}

func TestFetchPageAttachesCredentialHeaders(t *testing.T) {
	var gotAuth, gotAccessKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccessKey = r.Header.Get("AccessKey")
		_, _ = w.Write([]byte(`{"value":[{"ContactKey":"c1"}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	page, err := client.FetchPage(context.Background(), "Contacts", QueryOptions{})
	if err != nil {
		t.Fatalf("fetch page returned error: %v", err)
	}

	if gotAuth != "Bearer test-bearer-token" {
		t.Fatalf("unexpected authorization header: %q", gotAuth)
	}
	if gotAccessKey != "test-access-key" {
		t.Fatalf("unexpected access key header: %q", gotAccessKey)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(page.Items))
	}
}

func TestFetchPageEncodesQueryOptions(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.FetchPage(context.Background(), "Contacts", QueryOptions{
		Filter:  "LastModifiedDateTime gt 2024-01-01T00:00:00Z",
		Expand:  []string{"BusinessCards"},
		OrderBy: "LastModifiedDateTime asc",
		Top:     100,
	})
	if err != nil {
		t.Fatalf("fetch page returned error: %v", err)
	}

	values, parseErr := url.ParseQuery(gotQuery)
	if parseErr != nil {
		t.Fatalf("failed to parse query: %v", parseErr)
	}
	if values.Get("$filter") != "LastModifiedDateTime gt 2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected $filter: %q", values.Get("$filter"))
	}
	if values.Get("$expand") != "BusinessCards" {
		t.Fatalf("unexpected $expand: %q", values.Get("$expand"))
	}
	if values.Get("$top") != "100" {
		t.Fatalf("unexpected $top: %q", values.Get("$top"))
	}
	if values.Get("$orderby") != "LastModifiedDateTime asc" {
		t.Fatalf("unexpected $orderby: %q", values.Get("$orderby"))
	}
}

func TestFetchPageClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(t *testing.T, page *Page, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, page *Page, err error) {
				if !errors.Is(err, ErrUnauthorized) {
					t.Fatalf("expected ErrUnauthorized, got %v", err)
				}
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check: func(t *testing.T, page *Page, err error) {
				if !errors.Is(err, ErrUnauthorized) {
					t.Fatalf("expected ErrUnauthorized, got %v", err)
				}
			},
		},
		{
			name:   "not found is empty data",
			status: http.StatusNotFound,
			check: func(t *testing.T, page *Page, err error) {
				if err != nil {
					t.Fatalf("expected no error for 404, got %v", err)
				}
				if len(page.Items) != 0 || page.NextLink != "" {
					t.Fatalf("expected empty page for 404, got %+v", page)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, page *Page, err error) {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) {
					t.Fatalf("expected StatusError, got %v", err)
				}
				if statusErr.StatusCode != http.StatusInternalServerError {
					t.Fatalf("unexpected status code %d", statusErr.StatusCode)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := testClient(t, server.URL)
			page, err := client.FetchPage(context.Background(), "Contacts", QueryOptions{})
			tc.check(t, page, err)
		})
	}
}

func TestGetResourceFetchesByKey(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"ContactKey":"c42","FullName":"Ada"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	raw, err := client.GetResource(context.Background(), "Contacts", "c42", QueryOptions{})
	if err != nil {
		t.Fatalf("get resource returned error: %v", err)
	}
	if gotPath != "/Contacts/c42" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if len(raw) == 0 {
		t.Fatalf("expected raw payload")
	}
}

func TestGetResourceNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.GetResource(context.Background(), "Notes", "missing", QueryOptions{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
