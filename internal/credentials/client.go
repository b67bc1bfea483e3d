package credentials

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
)

// Google endpoints written into the client descriptor.
const (
	googleAuthURI      = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURI     = "https://oauth2.googleapis.com/token"
	googleCertsURL     = "https://www.googleapis.com/oauth2/v1/certs"
	defaultProjectID   = "duckdbhome"
	defaultRedirectURI = "http://localhost"
)

// ClientSecrets are the provisioned OAuth client fields.
type ClientSecrets struct {
	ClientID     string
	ClientSecret string
}

// ClientDescriptor is the Google "web" OAuth client document.
type ClientDescriptor struct {
	Web WebClient `json:"web"`
}

// WebClient is the body of a "web" client descriptor.
type WebClient struct {
	ClientID                string   `json:"client_id"`
	ProjectID               string   `json:"project_id"`
	AuthURI                 string   `json:"auth_uri"`
	TokenURI                string   `json:"token_uri"`
	AuthProviderX509CertURL string   `json:"auth_provider_x509_cert_url"`
	ClientSecret            string   `json:"client_secret"`
	RedirectURIs            []string `json:"redirect_uris"`
}

// NewClientDescriptor builds the descriptor for the given secrets using
// Google's public endpoints.
func NewClientDescriptor(secrets ClientSecrets) ClientDescriptor {
	return ClientDescriptor{
		Web: WebClient{
			ClientID:                secrets.ClientID,
			ProjectID:               defaultProjectID,
			AuthURI:                 googleAuthURI,
			TokenURI:                googleTokenURI,
			AuthProviderX509CertURL: googleCertsURL,
			ClientSecret:            secrets.ClientSecret,
			RedirectURIs:            []string{defaultRedirectURI},
		},
	}
}

// WriteClientDescriptor serializes the descriptor built from secrets to path.
func WriteClientDescriptor(path string, secrets ClientSecrets) error {
	if secrets.ClientID == "" || secrets.ClientSecret == "" {
		return fmt.Errorf("WriteClientDescriptor: %w: client id and secret are required", apperrors.ErrInvalidConfig)
	}

	data, err := json.MarshalIndent(NewClientDescriptor(secrets), "", "  ")
	if err != nil {
		return fmt.Errorf("WriteClientDescriptor: encoding: %w", err)
	}
	if err := writeFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("WriteClientDescriptor: %w", err)
	}
	return nil
}

// LoadClientConfig reads a client descriptor from path and returns the
// OAuth config for the given scopes.
func LoadClientConfig(path string, scopes ...string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadClientConfig: reading %q: %w", path, err)
	}

	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, apperrors.Mark(fmt.Errorf("LoadClientConfig: parsing %q: %w", path, err), apperrors.ErrInvalidConfig)
	}
	return cfg, nil
}
