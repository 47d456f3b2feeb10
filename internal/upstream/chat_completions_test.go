package upstream

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/inkgrade/internal/credentialpool"
)

const sseBody = "data: {\"choices\":[{\"delta\":{\"content\":\"共识别\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" 1 个汉字\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{}}]}\n\n" +
	"data: [DONE]\n\n"

func TestChatCompletionsClient_StreamsTokensInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseBody)
	}))
	defer srv.Close()

	client := NewChatCompletionsClient(srv.URL, "vision-model", "Authorization", "Bearer ")
	cred := &credentialpool.Credential{Key: "sk-test"}

	tokens, errs := client.StreamCritique(t.Context(), cred, []byte("jpeg-bytes"), "prompt")

	var got []string
	for tok := range tokens {
		got = append(got, tok)
	}
	require.NoError(t, <-errs)
	assert.Equal(t, []string{"共识别", " 1 个汉字"}, got)
}

func TestChatCompletionsClient_NonOKStatusSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewChatCompletionsClient(srv.URL, "vision-model", "Authorization", "Bearer ")
	cred := &credentialpool.Credential{Key: "sk-test"}

	tokens, errs := client.StreamCritique(t.Context(), cred, []byte("x"), "prompt")
	for range tokens {
	}
	assert.Error(t, <-errs)
}

func TestChatCompletionsClient_MalformedChunksAreSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: not-json\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewChatCompletionsClient(srv.URL, "vision-model", "Authorization", "Bearer ")
	cred := &credentialpool.Credential{Key: "sk-test"}

	tokens, errs := client.StreamCritique(t.Context(), cred, []byte("x"), "prompt")
	var got []string
	for tok := range tokens {
		got = append(got, tok)
	}
	require.NoError(t, <-errs)
	assert.Equal(t, []string{"ok"}, got)
}
