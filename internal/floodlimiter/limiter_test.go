package floodlimiter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/inkgrade/internal/apperr"
)

type fakeCounter struct {
	count int
	err   error
}

func (f fakeCounter) CountRecentCalls(ctx context.Context, userID int64, minutes int) (int, error) {
	return f.count, f.err
}

func TestCheck_NilUserIDBypassesTheGate(t *testing.T) {
	l := New(fakeCounter{count: 9999}, 5, 20)
	assert.NoError(t, l.Check(context.Background(), nil))
}

func TestCheck_UnderLimitPasses(t *testing.T) {
	l := New(fakeCounter{count: 19}, 5, 20)
	uid := int64(1)
	assert.NoError(t, l.Check(context.Background(), &uid))
}

func TestCheck_ExactlyAtMaxCallsIsRejected(t *testing.T) {
	l := New(fakeCounter{count: 20}, 5, 20)
	uid := int64(1)
	err := l.Check(context.Background(), &uid)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeRateLimited))
}

func TestCheck_StoreErrorFailsOpen(t *testing.T) {
	l := New(fakeCounter{err: errors.New("store unavailable")}, 5, 20)
	uid := int64(1)
	assert.NoError(t, l.Check(context.Background(), &uid), "persistence trouble must not itself block a grading call")
}
