package prisoner_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshields/caseplan/internal/prisoner"
)

func newSearchServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *prisoner.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return srv, prisoner.NewClient(srv.URL, srv.Client(), logger)
}

func TestClientGet(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes the search record", func(t *testing.T) {
		_, client := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/prisoner/A1234BC", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"prisonerNumber": "A1234BC",
				"prisonId": "MDI",
				"releaseDate": "2026-12-01T00:00:00Z"
			}`))
		})

		d, err := client.Get(ctx, "A1234BC")
		require.NoError(t, err)
		assert.Equal(t, "A1234BC", d.PersonID)
		assert.Equal(t, "MDI", d.PrisonID)
		require.NotNil(t, d.ReleaseDate)
		assert.Equal(t, time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC), *d.ReleaseDate)
	})

	t.Run("missing person maps to ErrNotFound", func(t *testing.T) {
		_, client := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := client.Get(ctx, "A9999ZZ")
		assert.ErrorIs(t, err, prisoner.ErrNotFound)
	})

	t.Run("upstream failure surfaces", func(t *testing.T) {
		_, client := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		_, err := client.Get(ctx, "A1234BC")
		assert.ErrorContains(t, err, "prisoner search returned 500")
	})
}

func TestClientReleaseDate(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the planned release date", func(t *testing.T) {
		_, client := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"prisonerNumber": "A1234BC", "prisonId": "LEI", "releaseDate": "2026-06-15T00:00:00Z"}`))
		})

		release, err := client.ReleaseDate(ctx, "A1234BC")
		require.NoError(t, err)
		require.NotNil(t, release)
		assert.Equal(t, time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC), *release)
	})

	t.Run("nil when the record has no release date", func(t *testing.T) {
		_, client := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"prisonerNumber": "A1234BC", "prisonId": "LEI"}`))
		})

		release, err := client.ReleaseDate(ctx, "A1234BC")
		require.NoError(t, err)
		assert.Nil(t, release)
	})
}

func TestClientCurrentPrison(t *testing.T) {
	ctx := context.Background()

	_, client := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"prisonerNumber": "A1234BC", "prisonId": "WWI"}`))
	})

	prison, err := client.CurrentPrison(ctx, "A1234BC")
	require.NoError(t, err)
	assert.Equal(t, "WWI", prison)
}
