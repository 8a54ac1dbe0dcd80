package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport/constants"
	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/entity"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

// HTTPConfig configures the HTTP front end.
type HTTPConfig struct {
	CORSOrigins []string
	// UploadDir receives multipart uploads for the duration of one analysis.
	UploadDir string
	Health    HealthFunc
}

type router struct {
	svc    *ReportService
	cfg    HTTPConfig
	logger *slog.Logger
}

// NewHTTPHandler mounts the JSON API on a chi router.
func NewHTTPHandler(svc *ReportService, cfg HTTPConfig, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	r := &router{svc: svc, cfg: cfg, logger: logger}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))
	mux.Use(r.requestID)

	mux.Get("/health", r.wrap(r.handleHealth))
	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyses", r.wrap(r.handleAnalyze))
		rt.Get("/history", r.wrap(r.handleHistory))
		rt.Get("/history/export", r.wrap(r.handleExport))
		rt.Get("/history/{id}", r.wrap(r.handleRecord))
		rt.Delete("/history/{id}", r.wrap(r.handleDelete))
	})
	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, common.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		case errors.Is(err, common.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			r.logger.Error("http.handler.failed", "path", req.URL.Path, "req_id", common.RequestIDFromContext(req.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

func (r *router) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		if id := strings.TrimSpace(req.Header.Get(RequestIDHeader)); id != "" {
			ctx = common.WithRequestID(ctx, id)
		}
		ctx, rid := common.EnsureRequestID(ctx)
		w.Header().Set(RequestIDHeader, rid)

		start := time.Now()
		next.ServeHTTP(w, req.WithContext(ctx))
		r.logger.Info("http.request", "method", req.Method, "path", req.URL.Path, "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
	})
}

// GET /health
func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) error {
	if r.cfg.Health != nil {
		if err := r.cfg.Health(req.Context()); err != nil {
			r.logger.Warn("http.health.failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return nil
		}
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /v1/analyses
// Body: multipart form with an "image" file, or JSON {"image_path": "...", "credentials": {...}}.
func (r *router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var (
		res entity.PipelineResult
		err error
	)
	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data") {
		path, cleanup, uerr := r.saveUpload(w, req)
		if uerr != nil {
			return uerr
		}
		defer cleanup()
		var creds entity.Credentials
		if raw := req.FormValue("credentials"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &creds); err != nil {
				return fmt.Errorf("credentials: %w", common.ErrInvalidInput)
			}
		}
		// upload names are generated here, so they skip the image root check
		res, err = r.svc.analyzeFile(req.Context(), path, creds)
	} else {
		var in AnalyzeInput
		if err := json.NewDecoder(io.LimitReader(req.Body, 1<<20)).Decode(&in); err != nil {
			return fmt.Errorf("decode body: %w", common.ErrInvalidInput)
		}
		res, err = r.svc.Analyze(req.Context(), in)
	}
	if err != nil {
		return err
	}
	return writeJSON(w, resultStatus(res), res)
}

func (r *router) saveUpload(w http.ResponseWriter, req *http.Request) (string, func(), error) {
	req.Body = http.MaxBytesReader(w, req.Body, constants.MaxUploadBytes)
	if err := req.ParseMultipartForm(constants.MaxUploadBytes); err != nil {
		return "", nil, fmt.Errorf("parse upload: %w", common.ErrInvalidInput)
	}
	file, hdr, err := req.FormFile("image")
	if err != nil {
		return "", nil, fmt.Errorf("image file is required: %w", common.ErrInvalidInput)
	}
	defer file.Close()

	ext := constants.NormalizeExt(filepath.Ext(hdr.Filename))
	if constants.MapExtToFormat(ext) == "" {
		return "", nil, fmt.Errorf("unsupported file type %q: %w", ext, common.ErrInvalidInput)
	}
	if err := os.MkdirAll(r.cfg.UploadDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create upload dir: %w", err)
	}
	dst := filepath.Join(r.cfg.UploadDir, uuid.NewString()+"."+ext)
	out, err := os.Create(dst)
	if err != nil {
		return "", nil, fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(dst)
		return "", nil, fmt.Errorf("write upload: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", nil, fmt.Errorf("close upload: %w", err)
	}
	return dst, func() { _ = os.Remove(dst) }, nil
}

// GET /v1/history
func (r *router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	entries, err := r.svc.History(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"records": entries})
}

// GET /v1/history/{id}
func (r *router) handleRecord(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req)
	if err != nil {
		return err
	}
	entry, err := r.svc.Record(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, entry)
}

// DELETE /v1/history/{id}
func (r *router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req)
	if err != nil {
		return err
	}
	if err := r.svc.Delete(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/history/export
func (r *router) handleExport(w http.ResponseWriter, req *http.Request) error {
	data, err := r.svc.Export(req.Context())
	if err != nil {
		return err
	}
	name := fmt.Sprintf("labreport-history-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	_, err = w.Write(data)
	return err
}

func pathID(req *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id must be an integer: %w", common.ErrInvalidInput)
	}
	return id, nil
}

// resultStatus maps a terminal pipeline result onto an HTTP status. The body
// always carries the full result.
func resultStatus(res entity.PipelineResult) int {
	switch res.Code {
	case constants.CodeOK:
		return http.StatusOK
	case constants.CodeConfigurationMissing:
		return http.StatusPreconditionFailed
	case constants.CodeInvalidInput:
		return http.StatusBadRequest
	case constants.CodeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	_ = writeJSON(w, status, map[string]string{"error": msg})
}
