package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"courserag/internal/config"
	"courserag/internal/contextbuild"
	mylog "courserag/internal/log"
	"courserag/internal/models"
	"courserag/internal/store"
)

func newTestAPI(t *testing.T) (*API, *store.MemStore) {
	t.Helper()
	s := store.NewMem()
	b := contextbuild.New(config.Defaults(), s, s, nil, nil, nil)
	return NewAPI(b, s, nil), s
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	api.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}
}

func TestRequestsLogThroughInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	s := store.NewMem()
	b := contextbuild.New(config.Defaults(), s, s, nil, nil, nil)
	api := NewAPI(b, s, mylog.NewWriter(&buf, mylog.Info))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		api.Handler().ServeHTTP(httptest.NewRecorder(), req)
	}
	lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
	if lines != 2 || !strings.Contains(buf.String(), "http.req") {
		t.Fatalf("expected one record per request:\n%s", buf.String())
	}
}

func TestMaterialUpsertThenContext(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	w := postJSON(t, h, "/courses", models.Course{ID: "cs101", Code: "CS101", Name: "Data Structures"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create course: %d %s", w.Code, w.Body.String())
	}

	w = postJSON(t, h, "/materials", models.Material{
		ID: "m1", CourseID: "cs101", Title: "Quicksort", Kind: models.KindLecture,
		Text: strings.Repeat("quicksort partitions around a pivot. ", 20),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create material: %d %s", w.Code, w.Body.String())
	}

	w = postJSON(t, h, "/context", map[string]any{
		"question": "how does quicksort partition",
		"options":  models.BuildOptions{CourseID: "cs101", MaxTokens: 400},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("context: %d %s", w.Code, w.Body.String())
	}
	var cc models.CourseContext
	if err := json.Unmarshal(w.Body.Bytes(), &cc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cc.Materials) == 0 || cc.EstimatedTokens > 400 {
		t.Fatalf("bad context: %d materials, %d tokens", len(cc.Materials), cc.EstimatedTokens)
	}
	if cc.CourseCode != "CS101" {
		t.Fatalf("course code = %q", cc.CourseCode)
	}
}

func TestContextValidation(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	w := postJSON(t, h, "/context", map[string]any{"question": "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank question: %d", w.Code)
	}
	var e apiError
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil || e.Error != "invalid_request" {
		t.Fatalf("error shape: %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/context", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /context: %d", rec.Code)
	}
}

func TestMaterialValidation(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	w := postJSON(t, h, "/materials", models.Material{Title: "orphan"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("material without course/text accepted: %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/materials", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("delete without id: %d", rec.Code)
	}
}

func TestMaterialIDAssigned(t *testing.T) {
	api, s := newTestAPI(t)
	h := api.Handler()

	w := postJSON(t, h, "/materials", models.Material{CourseID: "cs101", Title: "T", Text: "body"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.ID == "" {
		t.Fatalf("no id assigned: %s", w.Body.String())
	}
	if _, ok, _ := s.GetMaterial(httptest.NewRequest("GET", "/", nil).Context(), resp.ID); !ok {
		t.Fatal("material not persisted")
	}
}

func TestMultiCourseEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	postJSON(t, h, "/courses", models.Course{ID: "cs101", Code: "CS101", Name: "DS"})
	postJSON(t, h, "/materials", models.Material{
		ID: "m1", CourseID: "cs101", Title: "Recursion", Kind: models.KindLecture,
		Text: strings.Repeat("recursion needs a base case. ", 20),
	})

	w := postJSON(t, h, "/context/multi", map[string]any{
		"question": "recursion base case",
		"options":  models.BuildOptions{MaxTokens: 500},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("multi: %d %s", w.Code, w.Body.String())
	}
	var cc models.CourseContext
	if err := json.Unmarshal(w.Body.Bytes(), &cc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(cc.ContextText, "## CS101") {
		t.Fatalf("course label missing:\n%s", cc.ContextText)
	}
}

func TestListCourses(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	postJSON(t, h, "/courses", models.Course{ID: "cs101", Code: "CS101", Name: "DS"})

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var resp struct {
		Courses []models.Course `json:"courses"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Courses) != 1 {
		t.Fatalf("list body: %s", w.Body.String())
	}
}
