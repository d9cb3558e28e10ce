package grove_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/lens-onboard/adapters/grove"
	"github.com/layer-3/lens-onboard/core"
)

func TestUploadAsJSON(t *testing.T) {
	ctx := t.Context()

	t.Run("object response", func(t *testing.T) {
		type upload struct {
			chain string
			doc   map[string]any
		}
		got := make(chan upload, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := upload{chain: r.URL.Query().Get("chain_id")}
			_ = json.NewDecoder(r.Body).Decode(&u.doc)
			got <- u
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"storage_key":"k1","gateway_url":"https://gw/k1","uri":"lens://k1"}`))
		}))
		defer srv.Close()

		uri, err := grove.NewClient(srv.URL, grove.TestnetChainID, nil, 0).UploadAsJSON(ctx, map[string]any{"name": "alice"})

		require.NoError(t, err)
		assert.Equal(t, "lens://k1", uri)
		u := <-got
		assert.Equal(t, "37111", u.chain)
		assert.Equal(t, "alice", u.doc["name"])
	})

	t.Run("list response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"storage_key":"k2","uri":"lens://k2"}]`))
		}))
		defer srv.Close()

		uri, err := grove.NewClient(srv.URL, 0, nil, 0).UploadAsJSON(ctx, struct{}{})

		require.NoError(t, err)
		assert.Equal(t, "lens://k2", uri)
	})

	t.Run("missing uri", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		}))
		defer srv.Close()

		_, err := grove.NewClient(srv.URL, 0, nil, 0).UploadAsJSON(ctx, struct{}{})

		assert.ErrorIs(t, err, core.ErrTransport)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := grove.NewClient(srv.URL, 0, nil, 0).UploadAsJSON(ctx, struct{}{})

		var te *core.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "UploadAsJSON", te.Op)
	})
}
