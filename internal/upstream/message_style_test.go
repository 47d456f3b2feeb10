package upstream

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/inkgrade/internal/credentialpool"
)

func TestMessageStyleClient_DeliversFullReplyAsOneChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "image/jpeg", req.Messages[0].Content[1].Source.MediaType)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"结构：80 分"}]}`)
	}))
	defer srv.Close()

	client := NewMessageStyleClient(srv.URL, "vision-model", "x-api-key", "")
	cred := &credentialpool.Credential{Key: "sk-test"}

	tokens, errs := client.StreamCritique(t.Context(), cred, []byte("jpeg-bytes"), "prompt")
	var got []string
	for tok := range tokens {
		got = append(got, tok)
	}
	require.NoError(t, <-errs)
	assert.Equal(t, []string{"结构：80 分"}, got)
}

func TestMessageStyleClient_NonOKStatusSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewMessageStyleClient(srv.URL, "vision-model", "x-api-key", "")
	cred := &credentialpool.Credential{Key: "sk-test"}

	tokens, errs := client.StreamCritique(t.Context(), cred, []byte("x"), "prompt")
	for range tokens {
	}
	assert.Error(t, <-errs)
}
