package qix_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sensebridge/sensebridge/internal/qix"
)

func TestRESTCatalogListApps(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/api/v1/items" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("resourceType") != "app" || q.Get("limit") != "25" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [
				{"resourceId": "app-1", "id": "item-1", "name": "Sales"},
				{"id": "item-2", "name": "Inventory"}
			],
			"links": {"next": {"href": "https://tenant.example/api/v1/items?resourceType=app&next=cursor-2"}}
		}`))
	}))
	t.Cleanup(srv.Close)

	catalog := qix.NewRESTCatalog(srv.URL, "key-1", srv.Client())
	page, err := catalog.ListApps(context.Background(), 25, "")
	if err != nil {
		t.Fatalf("ListApps: %v", err)
	}
	want := []qix.AppInfo{{ID: "app-1", Name: "Sales"}, {ID: "item-2", Name: "Inventory"}}
	if len(page.Apps) != len(want) {
		t.Fatalf("apps = %+v", page.Apps)
	}
	for i := range want {
		if page.Apps[i] != want[i] {
			t.Errorf("apps[%d] = %+v, want %+v", i, page.Apps[i], want[i])
		}
	}
	if page.Next != "cursor-2" {
		t.Errorf("Next = %q, want cursor-2", page.Next)
	}
}

func TestRESTCatalogForwardsCursor(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("next"); got != "cursor-2" {
			t.Errorf("next = %q, want cursor-2", got)
		}
		_, _ = w.Write([]byte(`{"data": [], "links": {}}`))
	}))
	t.Cleanup(srv.Close)

	catalog := qix.NewRESTCatalog(srv.URL, "k", srv.Client())
	page, err := catalog.ListApps(context.Background(), 10, "cursor-2")
	if err != nil {
		t.Fatalf("ListApps: %v", err)
	}
	if len(page.Apps) != 0 || page.Next != "" {
		t.Errorf("page = %+v, want empty", page)
	}
}

func TestRESTCatalogNonOKStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	catalog := qix.NewRESTCatalog(srv.URL, "k", srv.Client())
	if _, err := catalog.ListApps(context.Background(), 10, ""); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
