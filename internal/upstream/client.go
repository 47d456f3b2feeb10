// Package upstream talks to the multimodal inference provider behind a
// leased credential, exposing only the streaming contract the grading
// engine needs: a channel of text chunks and a channel carrying at most
// one terminal error.
package upstream

import (
	"context"

	"github.com/ocx/inkgrade/internal/credentialpool"
)

// Client opens one streaming critique call per invocation. Implementations
// must close both channels exactly once when the stream ends, successfully
// or not.
type Client interface {
	StreamCritique(ctx context.Context, cred *credentialpool.Credential, imageJPEG []byte, prompt string) (tokens <-chan string, errs <-chan error)
}
