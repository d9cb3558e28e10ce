package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
)

// AppMetadataSchema is the JSON schema of app metadata documents
const AppMetadataSchema = "https://json-schemas.lens.dev/app/1.0.0.json"

// Platform is a platform an app runs on
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform parses a platform name, case-insensitively
func ParsePlatform(s string) (Platform, bool) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformWeb, PlatformIOS, PlatformAndroid:
		return p, true
	default:
		return "", false
	}
}

// App describes an app to deploy
type App struct {
	Name           string   `json:"name"`
	Tagline        string   `json:"tagline,omitempty"`
	Description    string   `json:"description,omitempty"`
	Logo           string   `json:"logo,omitempty"`
	Developer      string   `json:"developer"`
	URL            string   `json:"url"`
	TermsOfService string   `json:"termsOfService,omitempty"`
	PrivacyPolicy  string   `json:"privacyPolicy,omitempty"`
	Platforms      []string `json:"platforms,omitempty"`
}

// AppMetadata is the app document uploaded to metadata storage
type AppMetadata struct {
	Schema string  `json:"$schema"`
	Lens   AppLens `json:"lens"`
}

type AppLens struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Tagline        string     `json:"tagline,omitempty"`
	Description    string     `json:"description,omitempty"`
	Logo           string     `json:"logo,omitempty"`
	Developer      string     `json:"developer"`
	URL            string     `json:"url"`
	TermsOfService string     `json:"termsOfService,omitempty"`
	PrivacyPolicy  string     `json:"privacyPolicy,omitempty"`
	Platforms      []Platform `json:"platforms"`
}

// NewAppMetadata validates app and builds its metadata document. Name, developer and url
// are required; every platform must be known.
func NewAppMetadata(app App) (AppMetadata, error) {
	var missing []string
	if strings.TrimSpace(app.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(app.Developer) == "" {
		missing = append(missing, "developer")
	}
	if strings.TrimSpace(app.URL) == "" {
		missing = append(missing, "url")
	}

	platforms := make([]Platform, 0, len(app.Platforms))
	for _, s := range app.Platforms {
		p, ok := ParsePlatform(s)
		if !ok {
			missing = append(missing, "platforms")
			break
		}
		platforms = append(platforms, p)
	}
	if len(missing) > 0 {
		return AppMetadata{}, &core.ValidationError{Fields: missing}
	}

	return AppMetadata{
		Schema: AppMetadataSchema,
		Lens: AppLens{
			ID:             uuid.NewString(),
			Name:           app.Name,
			Tagline:        app.Tagline,
			Description:    app.Description,
			Logo:           app.Logo,
			Developer:      app.Developer,
			URL:            app.URL,
			TermsOfService: app.TermsOfService,
			PrivacyPolicy:  app.PrivacyPolicy,
			Platforms:      platforms,
		},
	}, nil
}

// Apps deploys apps
type Apps struct {
	api     ports.AccountAPI
	storage ports.MetadataStorage
}

// NewApps creates an app service
func NewApps(api ports.AccountAPI, storage ports.MetadataStorage) *Apps {
	return &Apps{api: api, storage: storage}
}

// CreateApp uploads the app metadata and submits the app deployment under the
// session h, which the remote expects to be a builder session. It returns the transaction hash.
func (a *Apps) CreateApp(ctx context.Context, h *SessionHandle, app App) (string, error) {
	if h == nil {
		return "", fmt.Errorf("app deployment requires a session: %w", core.ErrForbidden)
	}
	metadata, err := NewAppMetadata(app)
	if err != nil {
		return "", err
	}

	ctx = slogctx.With(ctx, "app_name", app.Name)
	uri, err := a.storage.UploadAsJSON(ctx, metadata)
	if err != nil {
		return "", fmt.Errorf("uploading metadata: %w", err)
	}
	slogctx.Debug(ctx, "Metadata uploaded", "uri", uri)

	hash, err := a.api.CreateApp(ctx, h.accessToken(), uri)
	if err != nil {
		slogctx.Error(ctx, "App deployment failed", "error", err)
		return "", err
	}

	slogctx.Info(ctx, "App deployment submitted", "tx_hash", hash)
	return hash, nil
}
