package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

func TestRelationalConnector_SelectAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/subscribers", r.URL.Path)
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Range", "0-1/2")
		_, _ = w.Write([]byte(`[{"email":"a@x.com","phone":5550100},{"email":"b@x.com","phone":null}]`))
	}))
	defer srv.Close()

	c := NewRelationalConnector(srv.Client())
	recs, err := c.Fetch(context.Background(), models.RelationalConfig{ProjectURL: srv.URL + "/", APIKey: "anon-key"},
		models.SourceRef{Table: "subscribers"})
	require.NoError(t, err)
	assert.Equal(t, -1, recs.SizeHint())

	first, err := recs.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", first["email"])
	assert.Equal(t, 2, recs.SizeHint())

	out := drain(t, recs)
	require.Len(t, out, 1)
	assert.Nil(t, out[0]["phone"])
}

func TestRelationalConnector_PagesPastServerRowCap(t *testing.T) {
	all := []string{`{"email":"a@x.com"}`, `{"email":"b@x.com"}`, `{"email":"c@x.com"}`, `{"email":"d@x.com"}`, `{"email":"e@x.com"}`}
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offsets = append(offsets, r.URL.Query().Get("offset"))
		offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
		require.NoError(t, err)

		// max-rows of 2 regardless of the requested limit
		end := offset + 2
		if end > len(all) {
			end = len(all)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%d", offset, end-1, len(all)))
		_, _ = w.Write([]byte("[" + strings.Join(all[offset:end], ",") + "]"))
	}))
	defer srv.Close()

	c := NewRelationalConnector(srv.Client())
	recs, err := c.Fetch(context.Background(), models.RelationalConfig{ProjectURL: srv.URL, APIKey: "k"},
		models.SourceRef{Table: "subscribers"})
	require.NoError(t, err)

	out := drain(t, recs)
	require.Len(t, out, 5)
	assert.Equal(t, "e@x.com", out[4]["email"])
	assert.Equal(t, 5, recs.SizeHint())
	assert.Equal(t, []string{"0", "2", "4"}, offsets)
}

func TestRelationalConnector_UnknownTotalStopsOnEmptyPage(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("offset") == "0" {
			w.Header().Set("Content-Range", "0-1/*")
			_, _ = w.Write([]byte(`[{"email":"a@x.com"},{"email":"b@x.com"}]`))
			return
		}
		w.Header().Set("Content-Range", "*/*")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewRelationalConnector(srv.Client())
	recs, err := c.Fetch(context.Background(), models.RelationalConfig{ProjectURL: srv.URL, APIKey: "k"},
		models.SourceRef{Table: "subscribers"})
	require.NoError(t, err)

	out := drain(t, recs)
	assert.Len(t, out, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, -1, recs.SizeHint())
}

func TestRelationalConnector_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream down`))
	}))
	defer srv.Close()

	c := NewRelationalConnector(srv.Client())
	recs, err := c.Fetch(context.Background(), models.RelationalConfig{ProjectURL: srv.URL, APIKey: "k"},
		models.SourceRef{Table: "subscribers"})
	require.NoError(t, err)

	_, err = recs.Next(context.Background())
	var te *syncerr.TransientProviderError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestRelationalConnector_MissingTable(t *testing.T) {
	c := NewRelationalConnector(http.DefaultClient)
	_, err := c.Fetch(context.Background(), models.RelationalConfig{ProjectURL: "https://p.supabase.co", APIKey: "k"}, models.SourceRef{})
	assert.True(t, syncerr.IsConfiguration(err))
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		header string
		want   int
	}{
		{"0-24/25", 25},
		{"*/0", 0},
		{"0-24/*", -1},
		{"", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseContentRangeTotal(tt.header), tt.header)
	}
}
