package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProviderConfig(t *testing.T) {
	tests := []struct {
		name     string
		provider ProviderType
		raw      string
		wantErr  bool
		check    func(t *testing.T, cfg ProviderConfig)
	}{
		{
			name:     "tabular",
			provider: ProviderTabular,
			raw:      `{"apiKey":"pat123"}`,
			check: func(t *testing.T, cfg ProviderConfig) {
				c, ok := cfg.(TabularConfig)
				require.True(t, ok)
				assert.Equal(t, "pat123", c.APIKey)
			},
		},
		{
			name:     "tabular missing key",
			provider: ProviderTabular,
			raw:      `{}`,
			wantErr:  true,
		},
		{
			name:     "spreadsheet",
			provider: ProviderSpreadsheet,
			raw:      `{"serviceAccount":{"type":"service_account"}}`,
			check: func(t *testing.T, cfg ProviderConfig) {
				c, ok := cfg.(SpreadsheetConfig)
				require.True(t, ok)
				assert.JSONEq(t, `{"type":"service_account"}`, string(c.ServiceAccount))
			},
		},
		{
			name:     "spreadsheet null service account",
			provider: ProviderSpreadsheet,
			raw:      `{"serviceAccount":null}`,
			wantErr:  true,
		},
		{
			name:     "relational",
			provider: ProviderRelational,
			raw:      `{"projectUrl":"https://abc.supabase.co","apiKey":"anon"}`,
			check: func(t *testing.T, cfg ProviderConfig) {
				assert.Equal(t, ProviderRelational, cfg.Provider())
			},
		},
		{
			name:     "relational relative url",
			provider: ProviderRelational,
			raw:      `{"projectUrl":"abc.supabase.co","apiKey":"anon"}`,
			wantErr:  true,
		},
		{
			name:     "identity",
			provider: ProviderIdentity,
			raw:      `{"projectId":"demo","serviceAccount":{"type":"service_account"}}`,
			check: func(t *testing.T, cfg ProviderConfig) {
				c, ok := cfg.(IdentityConfig)
				require.True(t, ok)
				assert.Equal(t, "demo", c.ProjectID)
			},
		},
		{
			name:     "identity missing project",
			provider: ProviderIdentity,
			raw:      `{"serviceAccount":{}}`,
			wantErr:  true,
		},
		{
			name:     "unknown provider",
			provider: ProviderType("ftp"),
			raw:      `{}`,
			wantErr:  true,
		},
		{
			name:     "malformed json",
			provider: ProviderTabular,
			raw:      `{"apiKey":`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := DecodeProviderConfig(tt.provider, []byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidProviderConfig))
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestParseProviderType(t *testing.T) {
	p, err := ParseProviderType(" Spreadsheet ")
	require.NoError(t, err)
	assert.Equal(t, ProviderSpreadsheet, p)

	_, err = ParseProviderType("mailchimp")
	assert.Error(t, err)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "c@x.com", NormalizeEmail("  C@X.com "))
	assert.Equal(t, "", NormalizeEmail("   "))
}
