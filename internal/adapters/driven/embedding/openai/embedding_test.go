package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	p, err := New(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1", Model: "text-embedding-3-small", Dimensions: 3})
	require.NoError(t, err)
	return p
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(Config{APIKey: "sk"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.ModelName())
	assert.Equal(t, 1536, p.Dimensions())
}

func TestEmbedBatch_ReordersByIndex(t *testing.T) {
	var got map[string]any
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1,0]},
			{"object":"embedding","index":0,"embedding":[1,0,0]}
		]}`))
	})

	vectors, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vectors)
	assert.Equal(t, "text-embedding-3-small", got["model"])
	assert.EqualValues(t, 3, got["dimensions"])
}

func TestEmbedBatch_Empty(t *testing.T) {
	p, err := New(Config{APIKey: "sk"})
	require.NoError(t, err)

	vectors, err := p.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedBatch_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"requests"}}`, true},
		{"server error", http.StatusBadGateway, `{"error":{"message":"upstream unavailable","type":"server_error"}}`, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad input","type":"invalid_request_error"}}`, false},
		{"unauthorised", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := p.EmbedBatch(context.Background(), []string{"text"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, errors.Is(err, domain.ErrProviderTransient))
		})
	}
}

func TestEmbed_MissingIndex(t *testing.T) {
	p := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	})

	_, err := p.Embed(context.Background(), "text")
	assert.Error(t, err)
}
