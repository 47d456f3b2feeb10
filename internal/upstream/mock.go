package upstream

import (
	"context"

	"github.com/ocx/inkgrade/internal/credentialpool"
)

// MockClient is a test double that replays a fixed chunk sequence, or
// fails with Err if set. Not used outside _test.go files.
type MockClient struct {
	Chunks []string
	Err    error
}

func (m *MockClient) StreamCritique(ctx context.Context, _ *credentialpool.Credential, _ []byte, _ string) (<-chan string, <-chan error) {
	tokens := make(chan string, len(m.Chunks))
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)
		for _, c := range m.Chunks {
			select {
			case tokens <- c:
			case <-ctx.Done():
				return
			}
		}
		if m.Err != nil {
			errs <- m.Err
		}
	}()

	return tokens, errs
}
