// Package grading orchestrates one end-to-end grading request: credential
// lease, image preconditioning, the coupled upstream-token/downstream-SSE
// streams with heartbeat fill, response parsing and optional grid
// cropping. Grounded on the teacher's internal/handlers chat-stream
// handler shape (TokenCh/ErrCh select loop) and the webhooks.Dispatcher
// retry pattern for the non-streaming path.
package grading

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ocx/inkgrade/internal/apperr"
	"github.com/ocx/inkgrade/internal/credentialpool"
	"github.com/ocx/inkgrade/internal/dispatcher"
	"github.com/ocx/inkgrade/internal/gradetypes"
	"github.com/ocx/inkgrade/internal/gridcrop"
	"github.com/ocx/inkgrade/internal/idgen"
	"github.com/ocx/inkgrade/internal/imageprep"
	"github.com/ocx/inkgrade/internal/metrics"
	"github.com/ocx/inkgrade/internal/parsing"
	"github.com/ocx/inkgrade/internal/ratebudget"
	"github.com/ocx/inkgrade/internal/resultstore"
	"github.com/ocx/inkgrade/internal/sse"
	"github.com/ocx/inkgrade/internal/taxonomy"
	"github.com/ocx/inkgrade/internal/upstream"
)

const (
	heartbeatInterval = 3 * time.Second
	streamDeadline    = 180 * time.Second
)

var reassuranceMessages = []string{
	"正在识别图片中的汉字…",
	"AI 老师正在仔细批改…",
	"马上就好，请再等一下…",
	"正在生成详细点评…",
}

// Engine wires the credential pool, rate budget, dispatcher, upstream
// client and result store into the two grading pipelines.
type Engine struct {
	Pool          credentialpool.Pool
	Budget        ratebudget.Budget
	Dispatch      *dispatcher.Dispatcher
	Upstream      upstream.Client
	Store         resultstore.Store
	MaxImageSize  int

	WholePagePrompt  string
	SingleCharPrompt string
}

// Blocking executes a whole-page grading request to completion using the
// Dispatcher's retry-with-backoff, since no client is already consuming a
// live stream that a retry would have to rewind.
func (e *Engine) Blocking(ctx context.Context, task gradetypes.Task, tpl *taxonomy.Template) (*gradetypes.BatchResult, error) {
	start := time.Now()
	prepared := imageprep.Run(task.ImageBytes, e.MaxImageSize)
	if len(task.ImageBytes) == 0 {
		metrics.GradingDuration.WithLabelValues(string(task.Mode), "error").Observe(time.Since(start).Seconds())
		return nil, apperr.AIError("图片为空", nil)
	}

	results, errs := dispatcher.DispatchAll(ctx, e.Dispatch, []gradetypes.Task{task}, func(ctx context.Context, t gradetypes.Task, cred *credentialpool.Credential) (gradetypes.BatchResult, error) {
		return e.runWholePageOnce(ctx, t, cred, prepared.Bytes)
	})
	if errs[0] != nil {
		metrics.GradingDuration.WithLabelValues(string(task.Mode), "error").Observe(time.Since(start).Seconds())
		return nil, errs[0]
	}

	result := results[0]
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	result.CreatedAt = resultstore.FormatNow()
	if tpl != nil {
		gridcrop.Attach(task.ImageBytes, *tpl, result.Analyses)
	}

	e.persistBatch(ctx, &result, task)
	metrics.GradingDuration.WithLabelValues(string(task.Mode), "ok").Observe(time.Since(start).Seconds())
	return &result, nil
}

func (e *Engine) runWholePageOnce(ctx context.Context, task gradetypes.Task, cred *credentialpool.Credential, preparedImage []byte) (gradetypes.BatchResult, error) {
	tokens, errs := e.Upstream.StreamCritique(ctx, cred, preparedImage, e.WholePagePrompt)
	var buf []byte
	received := false
	for tok := range tokens {
		received = true
		buf = append(buf, tok...)
	}
	if err := <-errs; err != nil {
		return gradetypes.BatchResult{}, apperr.AIError("AI 批改服务异常", err)
	}
	if !received {
		return gradetypes.BatchResult{}, apperr.AIError("AI 返回空内容", nil)
	}

	result := parsing.WholePage(string(buf))
	result.TaskID = task.TaskID
	return result, nil
}

// Stream executes a streaming whole-page grading request, writing start,
// thinking, token and exactly one terminal event directly to w.
func (e *Engine) Stream(ctx context.Context, task gradetypes.Task, tpl *taxonomy.Template, w *sse.Writer) {
	start := time.Now()
	w.Start()

	if len(task.ImageBytes) == 0 {
		w.Error(apperr.UserMessage(apperr.CodeAIError))
		metrics.GradingDuration.WithLabelValues(string(task.Mode), "error").Observe(time.Since(start).Seconds())
		return
	}
	prepared := imageprep.Run(task.ImageBytes, e.MaxImageSize)

	streamCtx, cancel := context.WithTimeout(ctx, streamDeadline)
	defer cancel()

	cred, err := e.borrowWithRate(streamCtx)
	if err != nil {
		w.Error(apperr.UserMessage(apperr.CodeExhausted))
		metrics.GradingDuration.WithLabelValues(string(task.Mode), "error").Observe(time.Since(start).Seconds())
		return
	}

	var firstTokenReceived atomic.Bool
	heartbeatDone := make(chan struct{})
	go e.runHeartbeat(streamCtx, w, &firstTokenReceived, heartbeatDone)

	tokens, errCh := e.Upstream.StreamCritique(streamCtx, cred, prepared.Bytes, e.WholePagePrompt)
	var buf []byte
	received := false
	for tok := range tokens {
		if firstTokenReceived.CompareAndSwap(false, true) {
			close(heartbeatDone)
		}
		received = true
		buf = append(buf, tok...)
		w.Token(tok)
	}
	if !firstTokenReceived.Load() {
		firstTokenReceived.Store(true)
		close(heartbeatDone)
	}

	if err := <-errCh; err != nil {
		e.Pool.MarkFailed(cred)
		w.Error(apperr.UserMessage(apperr.CodeAIError))
		metrics.GradingDuration.WithLabelValues(string(task.Mode), "error").Observe(time.Since(start).Seconds())
		return
	}
	if !received {
		e.Pool.Return(cred)
		w.Error("AI 返回空内容")
		metrics.GradingDuration.WithLabelValues(string(task.Mode), "error").Observe(time.Since(start).Seconds())
		return
	}
	e.Pool.Return(cred)

	result := parsing.WholePage(string(buf))
	result.TaskID = task.TaskID
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	result.CreatedAt = resultstore.FormatNow()
	if tpl != nil {
		gridcrop.Attach(task.ImageBytes, *tpl, result.Analyses)
	}

	e.persistBatch(ctx, &result, task)
	w.Result(mustJSON(result))
	metrics.GradingDuration.WithLabelValues(string(task.Mode), "ok").Observe(time.Since(start).Seconds())
}

// BlockingSingleChar executes a single-character grading request to
// completion.
func (e *Engine) BlockingSingleChar(ctx context.Context, task gradetypes.Task) (*gradetypes.SingleCharResult, error) {
	start := time.Now()
	if len(task.ImageBytes) == 0 {
		return nil, apperr.AIError("图片为空", nil)
	}
	prepared := imageprep.Run(task.ImageBytes, e.MaxImageSize)

	results, errs := dispatcher.DispatchAll(ctx, e.Dispatch, []gradetypes.Task{task}, func(ctx context.Context, t gradetypes.Task, cred *credentialpool.Credential) (gradetypes.SingleCharResult, error) {
		return e.runSingleCharOnce(ctx, t, cred, prepared.Bytes)
	})
	if errs[0] != nil {
		return nil, errs[0]
	}

	result := results[0]
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	result.CreatedAt = resultstore.FormatNow()
	e.persistSingle(ctx, &result, task)
	return &result, nil
}

func (e *Engine) runSingleCharOnce(ctx context.Context, task gradetypes.Task, cred *credentialpool.Credential, preparedImage []byte) (gradetypes.SingleCharResult, error) {
	tokens, errs := e.Upstream.StreamCritique(ctx, cred, preparedImage, e.SingleCharPrompt)
	var buf []byte
	received := false
	for tok := range tokens {
		received = true
		buf = append(buf, tok...)
	}
	if err := <-errs; err != nil {
		return gradetypes.SingleCharResult{}, apperr.AIError("AI 批改服务异常", err)
	}
	if !received {
		return gradetypes.SingleCharResult{}, apperr.AIError("AI 返回空内容", nil)
	}

	result := parsing.SingleChar(string(buf))
	result.TaskID = task.TaskID
	return result, nil
}

// StreamSingleChar executes a streaming single-character grading request.
func (e *Engine) StreamSingleChar(ctx context.Context, task gradetypes.Task, w *sse.Writer) {
	start := time.Now()
	w.Start()

	if len(task.ImageBytes) == 0 {
		w.Error(apperr.UserMessage(apperr.CodeAIError))
		return
	}
	prepared := imageprep.Run(task.ImageBytes, e.MaxImageSize)

	streamCtx, cancel := context.WithTimeout(ctx, streamDeadline)
	defer cancel()

	cred, err := e.borrowWithRate(streamCtx)
	if err != nil {
		w.Error(apperr.UserMessage(apperr.CodeExhausted))
		return
	}

	var firstTokenReceived atomic.Bool
	heartbeatDone := make(chan struct{})
	go e.runHeartbeat(streamCtx, w, &firstTokenReceived, heartbeatDone)

	tokens, errCh := e.Upstream.StreamCritique(streamCtx, cred, prepared.Bytes, e.SingleCharPrompt)
	var buf []byte
	received := false
	for tok := range tokens {
		if firstTokenReceived.CompareAndSwap(false, true) {
			close(heartbeatDone)
		}
		received = true
		buf = append(buf, tok...)
		w.Token(tok)
	}
	if !firstTokenReceived.Load() {
		firstTokenReceived.Store(true)
		close(heartbeatDone)
	}

	if err := <-errCh; err != nil {
		e.Pool.MarkFailed(cred)
		w.Error(apperr.UserMessage(apperr.CodeAIError))
		metrics.GradingDuration.WithLabelValues(string(task.Mode), "error").Observe(time.Since(start).Seconds())
		return
	}
	if !received {
		e.Pool.Return(cred)
		w.Error("AI 返回空内容")
		return
	}
	e.Pool.Return(cred)

	result := parsing.SingleChar(string(buf))
	result.TaskID = task.TaskID
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	result.CreatedAt = resultstore.FormatNow()

	e.persistSingle(ctx, &result, task)
	w.Result(mustJSON(result))
	metrics.GradingDuration.WithLabelValues(string(task.Mode), "ok").Observe(time.Since(start).Seconds())
}

// runHeartbeat emits a thinking event every 3 seconds until the first
// token arrives or the stream ends, advancing through the reassurance
// list and sticking on the last entry. Cancellable by closing done or by
// ctx expiring.
func (e *Engine) runHeartbeat(ctx context.Context, w *sse.Writer, firstTokenReceived *atomic.Bool, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	idx := 0
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if firstTokenReceived.Load() {
				return
			}
			w.Thinking(reassuranceMessages[idx])
			metrics.HeartbeatEvents.Inc()
			if idx < len(reassuranceMessages)-1 {
				idx++
			}
		}
	}
}

// borrowWithRate borrows a credential and admits it against the rate
// budget, matching the Dispatcher's borrowCredentialWithRate shape for
// the single-request streaming path that cannot use the batch retry loop
// once tokens have started reaching the client.
func (e *Engine) borrowWithRate(ctx context.Context) (*credentialpool.Credential, error) {
	const subAttempts = 3
	for i := 0; i < subAttempts; i++ {
		cred, err := e.Pool.Borrow(ctx)
		if err != nil {
			return nil, apperr.Exhausted()
		}
		if e.Budget.TryAcquire(cred.Fingerprint) {
			return cred, nil
		}
		e.Pool.Return(cred)
		metrics.RateBudgetRejections.Inc()
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, apperr.Exhausted()
}

func (e *Engine) persistBatch(ctx context.Context, result *gradetypes.BatchResult, task gradetypes.Task) {
	if e.Store == nil {
		return
	}
	result.ImageID = idgen.Short()
	if err := e.Store.SaveResult(ctx, result, "upload.jpg", task.UserID, task.CopyBookID); err != nil {
		slog.Warn("grading: persist batch result failed, swallowing", "taskId", task.TaskID, "error", err)
	}
}

func (e *Engine) persistSingle(ctx context.Context, result *gradetypes.SingleCharResult, task gradetypes.Task) {
	if e.Store == nil {
		return
	}
	if err := e.Store.SaveSingleResult(ctx, result, task.UserID); err != nil {
		slog.Warn("grading: persist single result failed, swallowing", "taskId", task.TaskID, "error", err)
	}
}
