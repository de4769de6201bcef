package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

func newTestIdentityConnector(t *testing.T, handler http.HandlerFunc) *IdentityConnector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewIdentityConnector(srv.Client())
	c.newService = func(ctx context.Context, _ models.IdentityConfig) (*identitytoolkit.Service, error) {
		return identitytoolkit.NewService(ctx, option.WithoutAuthentication(), option.WithEndpoint(srv.URL+"/"))
	}
	return c
}

func TestIdentityConnector_PagesThroughUsers(t *testing.T) {
	var requests []map[string]any
	c := newTestIdentityConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/downloadAccount", r.URL.Path)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)

		w.Header().Set("Content-Type", "application/json")
		if body["nextPageToken"] == nil {
			_, _ = w.Write([]byte(`{"users":[
				{"localId":"u1","email":"ada@x.com","displayName":"Ada King Lovelace","phoneNumber":"+15550100","emailVerified":true,"createdAt":"1700000000000","lastLoginAt":"1700000500000"},
				{"localId":"u2","email":"bob@x.com","disabled":true}
			],"nextPageToken":"page-2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"users":[{"localId":"u3","displayName":"Cy"}],"nextPageToken":"page-3"}`))
	})

	recs, err := c.Fetch(context.Background(), models.IdentityConfig{ProjectID: "demo"}, models.SourceRef{})
	require.NoError(t, err)

	out := drain(t, recs)
	require.Len(t, out, 3)
	assert.Len(t, requests, 3, "a page without users ends the listing even with a token")

	assert.Equal(t, "demo", requests[0]["targetProjectId"])
	assert.EqualValues(t, 1000, requests[0]["maxResults"])
	assert.Equal(t, "page-2", requests[1]["nextPageToken"])

	ada := out[0]
	assert.Equal(t, "ada@x.com", ada[IdentityKeyEmail])
	assert.Equal(t, "Ada", ada[IdentityKeyFirstName])
	assert.Equal(t, "King Lovelace", ada[IdentityKeyLastName])
	assert.Equal(t, "+15550100", ada[IdentityKeyPhoneNumber])
	assert.Equal(t, true, ada[IdentityKeyEmailVerified])
	assert.Equal(t, false, ada[IdentityKeyDisabled])
	assert.Equal(t, "u1", ada[IdentityKeyUID])

	assert.Equal(t, true, out[1][IdentityKeyDisabled])
	assert.Equal(t, "Cy", out[2][IdentityKeyFirstName])
	assert.Equal(t, "", out[2][IdentityKeyLastName])
}

func TestIdentityConnector_ErrorIsTransient(t *testing.T) {
	c := newTestIdentityConnector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota"}}`))
	})

	recs, err := c.Fetch(context.Background(), models.IdentityConfig{ProjectID: "demo"}, models.SourceRef{})
	require.NoError(t, err)

	_, err = recs.Next(context.Background())
	var te *syncerr.TransientProviderError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
}

func TestSplitDisplayName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"  Ada  ", "Ada", ""},
		{"Mary Ann Evans", "Mary", "Ann Evans"},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := splitDisplayName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}
