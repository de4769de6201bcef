package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
)

func TestProject(t *testing.T) {
	mapping := models.FieldMapping{Email: "Email", FirstName: "First", LastName: "Last", Phone: "Phone"}

	tests := []struct {
		name   string
		record map[string]any
		want   Candidate
		ok     bool
	}{
		{
			name:   "all fields",
			record: map[string]any{"Email": " Ada@X.com ", "First": "Ada", "Last": "Lovelace", "Phone": 5550100.0},
			want:   Candidate{Email: "ada@x.com", FirstName: "Ada", LastName: "Lovelace", Phone: "5550100"},
			ok:     true,
		},
		{
			name:   "optional fields absent",
			record: map[string]any{"Email": "b@x.com"},
			want:   Candidate{Email: "b@x.com"},
			ok:     true,
		},
		{
			name:   "case-insensitive column",
			record: map[string]any{"email ": "c@x.com"},
			want:   Candidate{Email: "c@x.com"},
			ok:     true,
		},
		{name: "missing email", record: map[string]any{"First": "Ada"}},
		{name: "empty email", record: map[string]any{"Email": "   "}},
		{name: "no at sign", record: map[string]any{"Email": "not-an-email"}},
		{name: "null email", record: map[string]any{"Email": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Project(tt.record, mapping)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			tt.want.Raw = tt.record
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProject_UnmappedOptionalFieldsAreEmpty(t *testing.T) {
	got, ok := Project(map[string]any{"mail": "a@x.com", "First": "Ada"}, models.FieldMapping{Email: "mail"})
	assert.True(t, ok)
	assert.Equal(t, "", got.FirstName)
}

func TestStringify(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{42.0, "42"},
		{3.5, "3.5"},
		{7, "7"},
		{int64(8), "8"},
		{json.Number("12"), "12"},
		{true, "true"},
		{ts, "2024-05-06T07:08:09Z"},
		{time.Time{}, ""},
		{[]any{"first", "second"}, "first"},
		{[]any{}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Stringify(tt.in))
	}
}
