package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DocumentStore is the document capability the pipeline consumes.
type DocumentStore interface {
	ListCandidateDocuments(ctx context.Context) ([]Document, error)
	FetchBody(ctx context.Context, docID string) (string, error)
}

// GoogleDocsStore lists documents via the Drive API and reads their
// bodies via the Docs API, both over plain REST.
type GoogleDocsStore struct {
	DriveBaseURL string // overrides for tests
	DocsBaseURL  string
	HTTPClient   *http.Client
}

func NewGoogleDocsStore(cfg Config) *GoogleDocsStore {
	return &GoogleDocsStore{HTTPClient: newGoogleHTTPClient(cfg)}
}

const (
	driveDefaultBaseURL = "https://www.googleapis.com"
	docsDefaultBaseURL  = "https://docs.googleapis.com"
)

func (s *GoogleDocsStore) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return externalHTTPClient
}

type driveListResponse struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

type driveFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modifiedTime"`
}

// ListCandidateDocuments returns every non-trashed Google Doc the user
// can see. Completion filtering happens later, on titles alone.
func (s *GoogleDocsStore) ListCandidateDocuments(ctx context.Context) ([]Document, error) {
	base := s.DriveBaseURL
	if base == "" {
		base = driveDefaultBaseURL
	}
	query := "mimeType='application/vnd.google-apps.document' and trashed=false"

	var docs []Document
	pageToken := ""
	for {
		apiURL := fmt.Sprintf("%s/drive/v3/files?q=%s&fields=%s&pageSize=100",
			base, url.QueryEscape(query), url.QueryEscape("nextPageToken,files(id,name,modifiedTime)"))
		if pageToken != "" {
			apiURL += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var page driveListResponse
		if err := s.getJSON(ctx, apiURL, &page); err != nil {
			return nil, fmt.Errorf("listing documents: %w", err)
		}
		for _, f := range page.Files {
			modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
			docs = append(docs, Document{
				ID:        f.ID,
				Title:     f.Name,
				UpdatedAt: modified,
			})
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	log.Printf("drive list done docs=%d", len(docs))
	return docs, nil
}

type docsDocument struct {
	Body docsBody `json:"body"`
}

type docsBody struct {
	Content []docsStructuralElement `json:"content"`
}

type docsStructuralElement struct {
	Paragraph *docsParagraph `json:"paragraph"`
}

type docsParagraph struct {
	Elements []docsParagraphElement `json:"elements"`
}

type docsParagraphElement struct {
	TextRun *docsTextRun `json:"textRun"`
}

type docsTextRun struct {
	Content string `json:"content"`
}

// FetchBody reads the document's full text by walking its paragraph
// structure.
func (s *GoogleDocsStore) FetchBody(ctx context.Context, docID string) (string, error) {
	base := s.DocsBaseURL
	if base == "" {
		base = docsDefaultBaseURL
	}
	apiURL := fmt.Sprintf("%s/v1/documents/%s", base, url.PathEscape(docID))

	var doc docsDocument
	if err := s.getJSON(ctx, apiURL, &doc); err != nil {
		return "", fmt.Errorf("fetching document %s: %w", docID, err)
	}

	var paragraphs []string
	for _, element := range doc.Body.Content {
		if element.Paragraph == nil {
			continue
		}
		var text strings.Builder
		for _, pe := range element.Paragraph.Elements {
			if pe.TextRun != nil {
				text.WriteString(pe.TextRun.Content)
			}
		}
		if trimmed := strings.TrimSpace(text.String()); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func (s *GoogleDocsStore) getJSON(ctx context.Context, apiURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("Google API returned %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
