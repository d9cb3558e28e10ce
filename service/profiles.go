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

// AccountMetadataSchema is the JSON schema of account metadata documents
const AccountMetadataSchema = "https://json-schemas.lens.dev/account/1.0.0.json"

// Profile is the user-editable part of an account
type Profile struct {
	Username     string      `json:"username"`
	Name         string      `json:"name,omitempty"`
	Bio          string      `json:"bio,omitempty"`
	Picture      string      `json:"picture,omitempty"`
	CoverPicture string      `json:"coverPicture,omitempty"`
	Attributes   []Attribute `json:"attributes,omitempty"`
}

// Attribute is a free-form key/value pair of a profile
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AccountMetadata is the document uploaded to metadata storage
type AccountMetadata struct {
	Schema string      `json:"$schema"`
	Lens   AccountLens `json:"lens"`
}

type AccountLens struct {
	ID           string              `json:"id"`
	Name         string              `json:"name,omitempty"`
	Bio          string              `json:"bio,omitempty"`
	Picture      string              `json:"picture,omitempty"`
	CoverPicture string              `json:"coverPicture,omitempty"`
	Attributes   []MetadataAttribute `json:"attributes,omitempty"`
}

type MetadataAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// SanitizeUsername keeps only lowercase ASCII letters
func SanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NewAccountMetadata builds the metadata document of p. The username stands in for an empty name.
func NewAccountMetadata(p Profile) AccountMetadata {
	name := p.Name
	if name == "" {
		name = p.Username
	}
	attrs := make([]MetadataAttribute, 0, len(p.Attributes))
	for _, a := range p.Attributes {
		attrs = append(attrs, MetadataAttribute{Key: a.Key, Value: a.Value, Type: "String"})
	}
	return AccountMetadata{
		Schema: AccountMetadataSchema,
		Lens: AccountLens{
			ID:           uuid.NewString(),
			Name:         name,
			Bio:          p.Bio,
			Picture:      p.Picture,
			CoverPicture: p.CoverPicture,
			Attributes:   attrs,
		},
	}
}

// Profiles creates and updates accounts
type Profiles struct {
	api     ports.AccountAPI
	storage ports.MetadataStorage
}

// NewProfiles creates a profile service
func NewProfiles(api ports.AccountAPI, storage ports.MetadataStorage) *Profiles {
	return &Profiles{api: api, storage: storage}
}

// CreateProfile uploads the profile metadata and creates an account with the
// sanitized username. It returns the transaction hash.
func (p *Profiles) CreateProfile(ctx context.Context, h *SessionHandle, profile Profile) (string, error) {
	username := SanitizeUsername(profile.Username)
	if username == "" {
		return "", &core.ValidationError{Fields: []string{"username"}}
	}
	profile.Username = username

	uri, err := p.upload(ctx, h, profile)
	if err != nil {
		return "", err
	}

	hash, err := p.api.CreateAccountWithUsername(ctx, h.accessToken(), username, uri)
	if err != nil {
		slogctx.Error(ctx, "Account creation failed", "username", username, "error", err)
		return "", err
	}

	slogctx.Info(ctx, "Account creation submitted", "username", username, "tx_hash", hash)
	return hash, nil
}

// UpdateProfile uploads the profile metadata and sets it on the authenticated account
func (p *Profiles) UpdateProfile(ctx context.Context, h *SessionHandle, profile Profile) (string, error) {
	uri, err := p.upload(ctx, h, profile)
	if err != nil {
		return "", err
	}

	hash, err := p.api.SetAccountMetadata(ctx, h.accessToken(), uri)
	if err != nil {
		slogctx.Error(ctx, "Account metadata update failed", "error", err)
		return "", err
	}

	slogctx.Info(ctx, "Account metadata update submitted", "tx_hash", hash)
	return hash, nil
}

func (p *Profiles) upload(ctx context.Context, h *SessionHandle, profile Profile) (string, error) {
	if h == nil {
		return "", fmt.Errorf("profile mutation requires a session: %w", core.ErrForbidden)
	}
	uri, err := p.storage.UploadAsJSON(ctx, NewAccountMetadata(profile))
	if err != nil {
		return "", fmt.Errorf("uploading metadata: %w", err)
	}
	slogctx.Debug(ctx, "Metadata uploaded", "uri", uri)
	return uri, nil
}
