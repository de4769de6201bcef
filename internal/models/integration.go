package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type ProviderType string

const (
	ProviderTabular     ProviderType = "tabular"     // Airtable-style bases
	ProviderSpreadsheet ProviderType = "spreadsheet" // Google Sheets
	ProviderRelational  ProviderType = "relational"  // Supabase / PostgREST
	ProviderIdentity    ProviderType = "identity"    // Firebase-style user directory
)

// ParseProviderType validates a provider name coming from configuration or the CLI.
func ParseProviderType(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderTabular, ProviderSpreadsheet, ProviderRelational, ProviderIdentity:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider type %q", s)
	}
}

type IntegrationStatus string

const (
	IntegrationActive   IntegrationStatus = "active"
	IntegrationInactive IntegrationStatus = "inactive"
)

// Integration is a brand-scoped connection to one provider.
// Config holds the provider credentials as written by the configuration UI.
type Integration struct {
	ID        string            `gorm:"column:id;primaryKey"`
	BrandID   string            `gorm:"column:brand_id;index"`
	UserID    string            `gorm:"column:user_id"`
	Name      string            `gorm:"column:name"`
	Provider  ProviderType      `gorm:"column:provider;index"`
	Config    datatypes.JSON    `gorm:"column:config;type:jsonb"`
	Status    IntegrationStatus `gorm:"column:status;index"`
	CreatedAt time.Time         `gorm:"column:created_at"`
	UpdatedAt time.Time         `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Integration) TableName() string {
	return "integration"
}

// ProviderConfig decodes Config into the variant matching Provider and validates it.
func (i *Integration) ProviderConfig() (ProviderConfig, error) {
	return DecodeProviderConfig(i.Provider, i.Config)
}

var ErrInvalidProviderConfig = errors.New("invalid provider config")

// ProviderConfig is the typed credential set of one provider family.
// Exactly one of TabularConfig, SpreadsheetConfig, RelationalConfig and IdentityConfig.
type ProviderConfig interface {
	Provider() ProviderType
	Validate() error
}

type TabularConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"` // defaults to the public API
}

func (TabularConfig) Provider() ProviderType { return ProviderTabular }

func (c TabularConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: tabular apiKey is required", ErrInvalidProviderConfig)
	}
	return validateOptionalURL("baseUrl", c.BaseURL)
}

type SpreadsheetConfig struct {
	ServiceAccount json.RawMessage `json:"serviceAccount"`
	Endpoint       string          `json:"endpoint,omitempty"`
}

func (SpreadsheetConfig) Provider() ProviderType { return ProviderSpreadsheet }

func (c SpreadsheetConfig) Validate() error {
	if len(c.ServiceAccount) == 0 || string(c.ServiceAccount) == "null" {
		return fmt.Errorf("%w: spreadsheet serviceAccount is required", ErrInvalidProviderConfig)
	}
	return validateOptionalURL("endpoint", c.Endpoint)
}

type RelationalConfig struct {
	ProjectURL string `json:"projectUrl"`
	APIKey     string `json:"apiKey"`
}

func (RelationalConfig) Provider() ProviderType { return ProviderRelational }

func (c RelationalConfig) Validate() error {
	if c.ProjectURL == "" || c.APIKey == "" {
		return fmt.Errorf("%w: relational projectUrl and apiKey are required", ErrInvalidProviderConfig)
	}
	return validateOptionalURL("projectUrl", c.ProjectURL)
}

type IdentityConfig struct {
	ProjectID      string          `json:"projectId"`
	ServiceAccount json.RawMessage `json:"serviceAccount"`
	Endpoint       string          `json:"endpoint,omitempty"`
}

func (IdentityConfig) Provider() ProviderType { return ProviderIdentity }

func (c IdentityConfig) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("%w: identity projectId is required", ErrInvalidProviderConfig)
	}
	if len(c.ServiceAccount) == 0 || string(c.ServiceAccount) == "null" {
		return fmt.Errorf("%w: identity serviceAccount is required", ErrInvalidProviderConfig)
	}
	return validateOptionalURL("endpoint", c.Endpoint)
}

// DecodeProviderConfig picks the variant by provider type, unmarshals raw into it and validates.
func DecodeProviderConfig(provider ProviderType, raw []byte) (ProviderConfig, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: config is empty", ErrInvalidProviderConfig)
	}

	var cfg ProviderConfig
	switch provider {
	case ProviderTabular:
		var c TabularConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProviderConfig, err)
		}
		cfg = c
	case ProviderSpreadsheet:
		var c SpreadsheetConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProviderConfig, err)
		}
		cfg = c
	case ProviderRelational:
		var c RelationalConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProviderConfig, err)
		}
		cfg = c
	case ProviderIdentity:
		var c IdentityConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProviderConfig, err)
		}
		cfg = c
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidProviderConfig, provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateOptionalURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s must be an absolute URL", ErrInvalidProviderConfig, field)
	}
	return nil
}
