// Package gcloud resolves Google Cloud client options for the speech and
// text-to-speech clients.
package gcloud

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// Scope is the OAuth scope requested for all Cloud clients.
const Scope = "https://www.googleapis.com/auth/cloud-platform"

// ErrNoCredentials is returned when neither a credentials file, an API key
// nor Application Default Credentials are available.
var ErrNoCredentials = errors.New("gcloud: no credentials")

// Config selects how to authenticate.
type Config struct {
	// CredentialsFile is a service account or authorized user JSON file.
	CredentialsFile string
	// APIKey is used when CredentialsFile is empty.
	APIKey string
}

// Credentials describes what Options resolved, for logging.
type Credentials struct {
	Source    string
	ProjectID string
}

// Options returns client options for cfg. The credentials file wins over
// the API key; with neither, Application Default Credentials are tried.
func Options(ctx context.Context, cfg Config) ([]option.ClientOption, Credentials, error) {
	switch {
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, Credentials{}, fmt.Errorf("gcloud: read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, Scope)
		if err != nil {
			return nil, Credentials{}, fmt.Errorf("gcloud: parse credentials: %w", err)
		}
		return tokenOptions(creds.TokenSource), Credentials{Source: "file", ProjectID: creds.ProjectID}, nil

	case cfg.APIKey != "":
		return []option.ClientOption{option.WithAPIKey(cfg.APIKey)}, Credentials{Source: "api_key"}, nil
	}

	creds, err := google.FindDefaultCredentials(ctx, Scope)
	if err != nil {
		return nil, Credentials{}, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	return tokenOptions(creds.TokenSource), Credentials{Source: "default", ProjectID: creds.ProjectID}, nil
}

func tokenOptions(ts oauth2.TokenSource) []option.ClientOption {
	return []option.ClientOption{option.WithTokenSource(oauth2.ReuseTokenSource(nil, ts))}
}
