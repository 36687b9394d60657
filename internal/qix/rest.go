package qix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// AppInfo is one application in the platform's catalogue.
type AppInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AppPage is one page of the catalogue. Next is an opaque cursor for the
// following page; empty means the listing is exhausted.
type AppPage struct {
	Apps []AppInfo
	Next string
}

// AppCatalog lists the applications available on the platform.
type AppCatalog interface {
	ListApps(ctx context.Context, limit int, offset string) (AppPage, error)
}

// RESTCatalog implements [AppCatalog] against the platform's items REST API.
type RESTCatalog struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ AppCatalog = (*RESTCatalog)(nil)

// NewRESTCatalog creates a catalogue client rooted at baseURL. httpClient may
// be nil, in which case http.DefaultClient is used.
func NewRESTCatalog(baseURL, apiKey string, httpClient *http.Client) *RESTCatalog {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RESTCatalog{baseURL: baseURL, apiKey: apiKey, client: httpClient}
}

// restAppsResponse is the wire shape of the items listing.
type restAppsResponse struct {
	Data []struct {
		ResourceID string `json:"resourceId"`
		ID         string `json:"id"`
		Name       string `json:"name"`
	} `json:"data"`
	Links struct {
		Next struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"links"`
}

// ListApps implements [AppCatalog]. offset is the `next` value from a prior
// page, or empty for the first page.
func (r *RESTCatalog) ListApps(ctx context.Context, limit int, offset string) (AppPage, error) {
	u, err := url.Parse(r.baseURL + "/api/v1/items")
	if err != nil {
		return AppPage{}, fmt.Errorf("qix: catalogue URL: %w", err)
	}
	q := u.Query()
	q.Set("resourceType", "app")
	q.Set("limit", strconv.Itoa(limit))
	if offset != "" {
		q.Set("next", offset)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return AppPage{}, fmt.Errorf("qix: catalogue request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return AppPage{}, fmt.Errorf("qix: list apps: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return AppPage{}, fmt.Errorf("qix: list apps: status %d: %s", resp.StatusCode, body)
	}

	var wire restAppsResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return AppPage{}, fmt.Errorf("qix: decode app listing: %w", err)
	}

	page := AppPage{Next: nextCursor(wire.Links.Next.Href)}
	for _, a := range wire.Data {
		id := a.ResourceID
		if id == "" {
			id = a.ID
		}
		page.Apps = append(page.Apps, AppInfo{ID: id, Name: a.Name})
	}
	return page, nil
}

// nextCursor extracts the `next` query parameter from a pagination link,
// falling back to the whole href when the link is not parseable as a URL.
func nextCursor(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if next := u.Query().Get("next"); next != "" {
		return next
	}
	return href
}
