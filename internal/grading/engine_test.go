package grading

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/inkgrade/internal/credentialpool"
	"github.com/ocx/inkgrade/internal/dispatcher"
	"github.com/ocx/inkgrade/internal/gradetypes"
	"github.com/ocx/inkgrade/internal/ratebudget"
	"github.com/ocx/inkgrade/internal/resultstore/memstore"
	"github.com/ocx/inkgrade/internal/sse"
	"github.com/ocx/inkgrade/internal/upstream"
)

const sampleTokenStream = `共识别 1 个汉字（1 行 1 列）：永
结构：88 分 | 笔画：85 分 | 综合：87 分
【总评】整体不错`

func newTestEngine(t *testing.T, client upstream.Client) *Engine {
	t.Helper()
	pool := credentialpool.NewInProcessPool([]string{"k1"}, time.Minute, time.Second)
	budget := ratebudget.NewInProcessBudget(time.Minute, 1000)
	return &Engine{
		Pool:             pool,
		Budget:           budget,
		Dispatch:         dispatcher.New(pool, budget, 1, 1),
		Upstream:         client,
		Store:            memstore.New(),
		MaxImageSize:     2000,
		WholePagePrompt:  "prompt",
		SingleCharPrompt: "prompt",
	}
}

// TestStream_S3_EventOrdering models S3: start arrives before the first
// token, the first token arrives before the result, and exactly one
// terminal event (result or error) is emitted.
func TestStream_S3_EventOrdering(t *testing.T) {
	client := &upstream.MockClient{Chunks: strings.SplitAfter(sampleTokenStream, "\n")}
	engine := newTestEngine(t, client)

	rec := httptest.NewRecorder()
	w := sse.New(rec)
	require.NotNil(t, w)

	task := gradetypes.Task{TaskID: "t1", ImageBytes: []byte("not-empty"), Mode: gradetypes.ModeWholePage}
	engine.Stream(context.Background(), task, nil, w)

	body := rec.Body.String()
	startIdx := strings.Index(body, "event: start")
	tokenIdx := strings.Index(body, "event: token")
	resultIdx := strings.Index(body, "event: result")

	require.GreaterOrEqual(t, startIdx, 0)
	require.GreaterOrEqual(t, tokenIdx, 0)
	require.GreaterOrEqual(t, resultIdx, 0)
	assert.Less(t, startIdx, tokenIdx)
	assert.Less(t, tokenIdx, resultIdx)
	assert.Equal(t, 1, strings.Count(body, "event: result")+strings.Count(body, "event: error"),
		"exactly one terminal event must be emitted")
}

func TestStream_EmptyImageBytesEmitsErrorImmediately(t *testing.T) {
	client := &upstream.MockClient{Chunks: []string{"should not be reached"}}
	engine := newTestEngine(t, client)

	rec := httptest.NewRecorder()
	w := sse.New(rec)
	require.NotNil(t, w)

	task := gradetypes.Task{TaskID: "t1", ImageBytes: nil, Mode: gradetypes.ModeWholePage}
	engine.Stream(context.Background(), task, nil, w)

	body := rec.Body.String()
	assert.Contains(t, body, "event: error")
	assert.NotContains(t, body, "event: token")
}

func TestStream_ZeroUpstreamChunksYieldsErrorEvent(t *testing.T) {
	client := &upstream.MockClient{Chunks: nil}
	engine := newTestEngine(t, client)

	rec := httptest.NewRecorder()
	w := sse.New(rec)
	require.NotNil(t, w)

	task := gradetypes.Task{TaskID: "t1", ImageBytes: []byte("x"), Mode: gradetypes.ModeWholePage}
	engine.Stream(context.Background(), task, nil, w)

	body := rec.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, "AI 返回空内容")
}

func TestStream_UpstreamErrorMarksCredentialFailed(t *testing.T) {
	client := &upstream.MockClient{Chunks: []string{"partial"}, Err: errors.New("upstream 500")}
	engine := newTestEngine(t, client)

	rec := httptest.NewRecorder()
	w := sse.New(rec)
	require.NotNil(t, w)

	task := gradetypes.Task{TaskID: "t1", ImageBytes: []byte("x"), Mode: gradetypes.ModeWholePage}
	engine.Stream(context.Background(), task, nil, w)

	assert.Contains(t, rec.Body.String(), "event: error")
	pool := engine.Pool.(*credentialpool.InProcessPool)
	assert.Equal(t, 1, pool.FailedCount())
	assert.Equal(t, 0, pool.AvailableCount())
}

func TestBlocking_EmptyImageBytesFailsFast(t *testing.T) {
	client := &upstream.MockClient{Chunks: []string{"x"}}
	engine := newTestEngine(t, client)

	_, err := engine.Blocking(context.Background(), gradetypes.Task{TaskID: "t1"}, nil)
	assert.Error(t, err)
}

func TestBlocking_ParsesAndPersistsWholePageResult(t *testing.T) {
	client := &upstream.MockClient{Chunks: strings.SplitAfter(sampleTokenStream, "\n")}
	engine := newTestEngine(t, client)

	task := gradetypes.Task{TaskID: "t1", ImageBytes: []byte("x"), Mode: gradetypes.ModeWholePage}
	result, err := engine.Blocking(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCharacters)
	assert.Equal(t, 87, result.AvgOverallScore)

	stored, err := engine.Store.FindByTaskID(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "t1", stored.TaskID)
}

func TestBlockingSingleChar_EmptyImageBytesFailsFast(t *testing.T) {
	client := &upstream.MockClient{Chunks: []string{"x"}}
	engine := newTestEngine(t, client)

	_, err := engine.BlockingSingleChar(context.Background(), gradetypes.Task{TaskID: "t1"})
	assert.Error(t, err)
}
