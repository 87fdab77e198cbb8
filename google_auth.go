package main

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// googleOAuthEndpoint is spelled out directly so the wrappers stay on
// plain oauth2 without the Google-specific helper packages.
var googleOAuthEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// newGoogleHTTPClient returns an HTTP client that injects and refreshes
// the user's OAuth token on every Gmail/Drive/Docs call.
func newGoogleHTTPClient(cfg Config) *http.Client {
	oc := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     googleOAuthEndpoint,
		Scopes: []string{
			"https://www.googleapis.com/auth/gmail.readonly",
			"https://www.googleapis.com/auth/gmail.send",
			"https://www.googleapis.com/auth/documents.readonly",
			"https://www.googleapis.com/auth/drive.readonly",
		},
	}
	token := &oauth2.Token{RefreshToken: cfg.GoogleRefreshToken}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, externalHTTPClient)
	client := oc.Client(ctx, token)
	client.Timeout = externalHTTPTimeout
	return client
}

const externalHTTPTimeout = 30 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: externalHTTPTimeout,
}
