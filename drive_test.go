package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newDocsServer(t *testing.T, handler http.HandlerFunc) *GoogleDocsStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &GoogleDocsStore{
		DriveBaseURL: srv.URL,
		DocsBaseURL:  srv.URL,
		HTTPClient:   srv.Client(),
	}
}

func TestListCandidateDocuments(t *testing.T) {
	store := newDocsServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/drive/v3/files" {
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if q := r.URL.Query().Get("q"); !strings.Contains(q, "trashed=false") {
			t.Errorf("unexpected query %q", q)
		}
		// Two pages to exercise the pageToken loop.
		if r.URL.Query().Get("pageToken") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"files": []map[string]string{
					{"id": "d1", "name": "Market Analysis Done", "modifiedTime": "2026-03-02T11:00:00Z"},
				},
				"nextPageToken": "page-2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]string{
				{"id": "d2", "name": "Draft Roadmap", "modifiedTime": "2026-03-01T08:30:00Z"},
			},
		})
	})

	docs, err := store.ListCandidateDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListCandidateDocuments failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].ID != "d1" || docs[0].Title != "Market Analysis Done" {
		t.Fatalf("unexpected first document: %+v", docs[0])
	}
	want := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	if !docs[0].UpdatedAt.Equal(want) {
		t.Fatalf("updatedAt = %v, want %v", docs[0].UpdatedAt, want)
	}
	if docs[1].ID != "d2" {
		t.Fatalf("unexpected second document: %+v", docs[1])
	}
}

func TestListCandidateDocumentsAPIError(t *testing.T) {
	store := newDocsServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend error", http.StatusInternalServerError)
	})
	_, err := store.ListCandidateDocuments(context.Background())
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected 500 error, got %v", err)
	}
}

func TestFetchBody(t *testing.T) {
	store := newDocsServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents/d1" {
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"body": map[string]any{
				"content": []map[string]any{
					{}, // section break, no paragraph
					{"paragraph": map[string]any{"elements": []map[string]any{
						{"textRun": map[string]string{"content": "Executive "}},
						{"textRun": map[string]string{"content": "summary.\n"}},
					}}},
					{"paragraph": map[string]any{"elements": []map[string]any{
						{"textRun": map[string]string{"content": "\n"}},
					}}},
					{"paragraph": map[string]any{"elements": []map[string]any{
						{"textRun": map[string]string{"content": "Findings follow.\n"}},
					}}},
				},
			},
		})
	})

	body, err := store.FetchBody(context.Background(), "d1")
	if err != nil {
		t.Fatalf("FetchBody failed: %v", err)
	}
	want := "Executive summary.\n\nFindings follow."
	if body != want {
		t.Fatalf("body = %q, want %q", body, want)
	}
}

func TestFetchBodyEmptyDocument(t *testing.T) {
	store := newDocsServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"body": map[string]any{}})
	})
	body, err := store.FetchBody(context.Background(), "d1")
	if err != nil || body != "" {
		t.Fatalf("FetchBody = %q, %v", body, err)
	}
}
