// Package server exposes the context-assembly engine over a small HTTP API.
package server

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"courserag/internal/config"
	"courserag/internal/contextbuild"
	"courserag/internal/llm"
	"courserag/internal/llm/openai"
	mylog "courserag/internal/log"
	"courserag/internal/models"
	"courserag/internal/router"
	"courserag/internal/store"
)

// materialStore is the API's view of the backing store: the MaterialStore
// contract plus the change hook registration both stores provide.
type materialStore interface {
	store.MaterialStore
	OnChange(store.ChangeHook)
}

type API struct {
	builder *contextbuild.Builder
	store   materialStore
	logger  *mylog.Logger
}

func NewAPI(b *contextbuild.Builder, s materialStore, logger *mylog.Logger) *API {
	if logger == nil {
		logger = mylog.New()
	}
	// material changes invalidate every cached context of that course
	s.OnChange(b.Router().Invalidate)
	return &API{builder: b, store: s, logger: logger}
}

func (a *API) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/context", a.handleContext)
	mux.HandleFunc("/context/multi", a.handleContextMulti)
	mux.HandleFunc("/courses", a.handleCourses)
	mux.HandleFunc("/materials", a.handleMaterials)
	return mux
}

// Handler returns the full handler chain, for tests and embedding.
func (a *API) Handler() http.Handler { return logMiddleware(a.logger, a.mux()) }

type contextRequest struct {
	Question string              `json:"question"`
	Options  models.BuildOptions `json:"options"`
}

func (a *API) handleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "question required")
		return
	}
	cc, err := a.builder.Build(r.Context(), req.Question, req.Options)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "build_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cc)
}

func (a *API) handleContextMulti(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "question required")
		return
	}
	cc, err := a.builder.BuildMultiCourse(r.Context(), req.Question, req.Options)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "build_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cc)
}

func (a *API) handleCourses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cs, err := a.store.ListCourses(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"courses": cs})
	case http.MethodPost:
		var c models.Course
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if err := a.store.UpsertCourse(r.Context(), c); err != nil {
			writeError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, c)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	}
}

func (a *API) handleMaterials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var m models.Material
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if m.CourseID == "" || strings.TrimSpace(m.Text) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "courseID and text required")
			return
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if err := a.store.UpsertMaterial(r.Context(), m); err != nil {
			writeError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": m.ID})
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "id required")
			return
		}
		if err := a.store.DeleteMaterial(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeError(w http.ResponseWriter, status int, errStr, message string) {
	writeJSON(w, status, apiError{Error: errStr, Message: message, Code: status})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	nbytes int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.nbytes += n
	return n, err
}

func logMiddleware(logger *mylog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		logger.Info("http.req",
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", int(time.Since(start)/time.Millisecond),
			"bytes", rec.nbytes,
		)
	})
}

// Run wires stores, embedder, router and builder from the environment and
// serves the API.
func Run(addr string) error {
	_ = config.LoadAndApply()
	cfg := config.FromEnv()
	logger := mylog.New()

	var st materialStore
	var hist store.HistoryStore
	if path := os.Getenv("COURSERAG_SQLITE_PATH"); path != "" {
		sdb, err := store.NewSQLite(path)
		if err != nil {
			logger.Warn("sqlite init failed, falling back to memory", "err", err.Error())
		} else {
			st = sdb
			hist = sdb
		}
	}
	if st == nil {
		ms := store.NewMem()
		st = ms
		hist = ms
	}

	var emb llm.Embedder
	if os.Getenv("COURSERAG_OPENAI_API_KEY") != "" || os.Getenv("COURSERAG_OPENAI_BASE_URL") != "" {
		emb = llm.NewCaching(openai.NewFromEnv(), 1024)
	} else {
		logger.Warn("no embedding backend configured, retrieval is lexical-only")
	}

	rt := router.New(cfg, nil, logger)
	builder := contextbuild.New(cfg, st, hist, emb, rt, logger)
	api := NewAPI(builder, st, logger)

	logger.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, api.Handler())
}
