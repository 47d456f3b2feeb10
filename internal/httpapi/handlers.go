// Package httpapi exposes the grading core over HTTP, rooted at
// /api/homework, following the teacher's gorilla/mux handler + CORS
// middleware shape.
package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ocx/inkgrade/internal/apperr"
	"github.com/ocx/inkgrade/internal/floodlimiter"
	"github.com/ocx/inkgrade/internal/gradetypes"
	"github.com/ocx/inkgrade/internal/grading"
	"github.com/ocx/inkgrade/internal/idgen"
	"github.com/ocx/inkgrade/internal/resultstore"
	"github.com/ocx/inkgrade/internal/sse"
	"github.com/ocx/inkgrade/internal/taxonomy"
)

const maxUploadBytes = 10 << 20 // 10 MB

type Handlers struct {
	Engine *grading.Engine
	Store  resultstore.Store
	Flood  *floodlimiter.Limiter
}

func (h *Handlers) Templates(w http.ResponseWriter, r *http.Request) {
	writeOK(w, taxonomy.Catalog)
}

func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	task, tpl, err := h.parseUpload(r, gradetypes.ModeWholePage, w)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.Engine.Blocking(r.Context(), task, tpl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, result)
}

func (h *Handlers) AnalyzeStream(w http.ResponseWriter, r *http.Request) {
	task, tpl, err := h.parseUpload(r, gradetypes.ModeWholePage, w)
	if err != nil {
		writeError(w, err)
		return
	}

	writer := sse.New(w)
	if writer == nil {
		writeError(w, apperr.SystemError("streaming unsupported", nil))
		return
	}
	h.Engine.Stream(r.Context(), task, tpl, writer)
}

func (h *Handlers) AnalyzeSingle(w http.ResponseWriter, r *http.Request) {
	task, _, err := h.parseUpload(r, gradetypes.ModeSingleChar, w)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.Engine.BlockingSingleChar(r.Context(), task)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, result)
}

func (h *Handlers) AnalyzeSingleStream(w http.ResponseWriter, r *http.Request) {
	task, _, err := h.parseUpload(r, gradetypes.ModeSingleChar, w)
	if err != nil {
		writeError(w, err)
		return
	}

	writer := sse.New(w)
	if writer == nil {
		writeError(w, apperr.SystemError("streaming unsupported", nil))
		return
	}
	h.Engine.StreamSingleChar(r.Context(), task, writer)
}

func (h *Handlers) GetByTaskID(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskId"]
	result, err := h.Store.FindByTaskID(r.Context(), taskID)
	if err != nil {
		writeError(w, apperr.SystemError("query failed", err))
		return
	}
	if result == nil {
		writeError(w, apperr.NotFound("未找到对应的批改记录"))
		return
	}
	writeOK(w, result)
}

func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		writeError(w, apperr.NotFound("无效的用户标识"))
		return
	}
	entries, err := h.Store.History(r.Context(), userID, 10)
	if err != nil {
		writeError(w, apperr.SystemError("query failed", err))
		return
	}
	writeOK(w, entries)
}

func (h *Handlers) Growth(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseInt(vars["userId"], 10, 64)
	if err != nil {
		writeError(w, apperr.NotFound("无效的用户标识"))
		return
	}
	points, err := h.Store.GetGrowthCurve(r.Context(), userID, vars["charName"])
	if err != nil {
		writeError(w, apperr.SystemError("query failed", err))
		return
	}
	writeOK(w, points)
}

// parseUpload decodes the multipart upload shared by all four analyze
// routes: file (required), templateId?, userId?, copyBookId?.
func (h *Handlers) parseUpload(r *http.Request, mode gradetypes.Mode, w http.ResponseWriter) (gradetypes.Task, *taxonomy.Template, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return gradetypes.Task{}, nil, apperr.FileTooLarge()
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return gradetypes.Task{}, nil, apperr.AnalyzeFailed("未找到上传文件", err)
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		return gradetypes.Task{}, nil, apperr.FileTooLarge()
	}

	taskID := idgen.Task()
	if mode == gradetypes.ModeSingleChar {
		taskID = idgen.SingleChar()
	}

	task := gradetypes.Task{
		TaskID:     taskID,
		UserID:     optionalInt64(r.FormValue("userId")),
		CopyBookID: optionalInt64(r.FormValue("copyBookId")),
		TemplateID: r.FormValue("templateId"),
		ImageBytes: imageBytes,
		Mode:       mode,
	}

	if err := h.Flood.Check(r.Context(), task.UserID); err != nil {
		return gradetypes.Task{}, nil, err
	}

	var tpl *taxonomy.Template
	if task.TemplateID != "" {
		if t, ok := taxonomy.Find(task.TemplateID); ok {
			tpl = &t
		} else {
			slog.Debug("httpapi: unknown templateId, skipping crop", "templateId", task.TemplateID)
		}
	}

	return task, tpl, nil
}

func optionalInt64(raw string) *int64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
