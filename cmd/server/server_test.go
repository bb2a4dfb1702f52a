package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/intelsk/reid/config"
	"github.com/intelsk/reid/models"
	"github.com/intelsk/reid/services"
)

// fakeReidBackend answers the re-identification API with canned data.
func fakeReidBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status": "ok"}`)
	})
	mux.HandleFunc("POST /api/process-video", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"video_id": "srv-42", "total_frames": 100, "fps": 25, "frames_with_detections": []}`)
	})
	mux.HandleFunc("POST /api/add-target", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"target_id": "tgt-7"}`)
	})
	mux.HandleFunc("POST /api/search-targets", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"srv-42": {"tgt-7": [{"frame_idx": 10, "similarity": 0.87, "frame_path": "f10.jpg"}]}}`)
	})
	mux.HandleFunc("GET /api/get-results/{video}/{target}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"frame_idx": 11, "similarity": 0.91, "frame_path": "f11.jpg"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	router  http.Handler
	cfg     *config.AppConfig
	session *services.Session
	backend *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backendSrv := fakeReidBackend(t)
	cfg := config.Default()
	cfg.Backend.URL = backendSrv.URL + "/api"
	cfg.Backend.MediaURL = backendSrv.URL + "/processed"
	cfg.Report.DBPath = t.TempDir() + "/report.db"

	logger := slog.New(slog.DiscardHandler)
	backend := services.NewBackendClient(cfg.Backend.URL, cfg.Backend.MediaURL, 5*time.Second)
	session := services.NewSession(cfg, backend, logger)
	t.Cleanup(session.Close)
	return &testEnv{router: NewRouter(cfg, session, logger), cfg: cfg, session: session, backend: backendSrv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %s: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) uploadVideo(t *testing.T, name string) models.VideoView {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("video", name)
	part.Write([]byte("mp4"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/videos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body)
	}
	return decode[models.VideoView](t, rec)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", nil)
	got := decode[map[string]string](t, rec)
	if rec.Code != http.StatusOK || got["backend"] != "ok" {
		t.Errorf("health = %d %v", rec.Code, got)
	}
}

func TestSearchFlow(t *testing.T) {
	env := newTestEnv(t)

	video := env.uploadVideo(t, "cam1.mp4")
	if video.Searchable {
		t.Error("video searchable before processing")
	}

	rec := env.do(t, http.MethodPost, "/api/targets", models.TargetDraft{Name: "red coat", Description: "person in a red coat"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create target = %d: %s", rec.Code, rec.Body)
	}
	target := decode[models.TargetView](t, rec)
	if target.Kind != models.KindText {
		t.Errorf("kind = %s", target.Kind)
	}

	env.session.Wait()

	rec = env.do(t, http.MethodGet, "/api/videos/"+video.LocalID, nil)
	if got := decode[models.VideoView](t, rec); !got.Searchable || got.Registration.State != models.StateReady {
		t.Errorf("video after processing = %+v", got)
	}

	rec = env.do(t, http.MethodPost, "/api/search", models.SearchByLocalIDRequest{
		VideoIDs:  []string{video.LocalID},
		TargetIDs: []string{target.LocalID},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("search = %d: %s", rec.Code, rec.Body)
	}
	results := decode[models.ResultsResponse](t, rec)
	if results.Total != 1 {
		t.Fatalf("results = %+v", results)
	}
	pr := results.Results[0]
	if pr.VideoID != "srv-42" || pr.TargetID != "tgt-7" || pr.TargetName != "red coat" {
		t.Errorf("pair = %+v", pr)
	}
	if len(pr.Matches) != 1 || pr.Matches[0].FrameURL != env.backend.URL+"/processed/f10.jpg" {
		t.Errorf("matches = %+v", pr.Matches)
	}

	rec = env.do(t, http.MethodGet, "/api/results/"+video.LocalID+"/"+target.LocalID, nil)
	looked := decode[models.ResultsResponse](t, rec)
	if looked.Total != 1 || looked.Results[0].Matches[0].FrameIdx != 11 {
		t.Errorf("lookup = %+v", looked)
	}

	rec = env.do(t, http.MethodPost, "/api/results/export", nil)
	if summary := decode[services.ExportSummary](t, rec); rec.Code != http.StatusOK || summary.Matches != 1 {
		t.Errorf("export = %d %+v", rec.Code, summary)
	}
}

func TestSearchErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/search", models.SearchByLocalIDRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty selection = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/search", models.SearchByLocalIDRequest{
		VideoIDs: []string{"ghost"}, TargetIDs: []string{"ghost"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown ids = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if ids, _ := body["ids"].([]any); len(ids) != 1 || ids[0] != "ghost" {
		t.Errorf("error body = %v", body)
	}
}

func TestTargetLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/targets", models.TargetDraft{Name: "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("target without data = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/targets", models.TargetDraft{Name: "x", Description: "tall"})
	target := decode[models.TargetView](t, rec)
	env.session.Wait()

	name := "renamed"
	rec = env.do(t, http.MethodPatch, "/api/targets/"+target.LocalID, models.UpdateTargetRequest{Name: &name})
	if got := decode[models.TargetView](t, rec); rec.Code != http.StatusOK || got.Name != "renamed" || got.BackendID != "tgt-7" {
		t.Errorf("rename = %d %+v", rec.Code, got)
	}

	rec = env.do(t, http.MethodGet, "/api/targets", nil)
	if list := decode[[]models.TargetView](t, rec); len(list) != 1 {
		t.Errorf("list = %+v", list)
	}

	if rec := env.do(t, http.MethodDelete, "/api/targets/"+target.LocalID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/targets/"+target.LocalID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/targets/"+target.LocalID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d", rec.Code)
	}
}

func TestPromptEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/prompt", map[string]any{
		"clothing": map[string]any{"top": []string{"Jacket"}},
	})
	got := decode[map[string]string](t, rec)
	want := "Analyze the following aspects for person re-identification: clothing (top: Jacket)."
	if got["prompt"] != want {
		t.Errorf("prompt = %q", got["prompt"])
	}

	rec = env.do(t, http.MethodPost, "/api/prompt", map[string]any{
		"clothing": map[string]any{"top": []string{"Cape"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown value = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/prompt/targets", map[string]any{
		"name":   "edited",
		"prompt": "person with a green umbrella",
	})
	target := decode[models.TargetView](t, rec)
	if rec.Code != http.StatusAccepted || target.Description != "person with a green umbrella" || target.Kind != models.KindText {
		t.Errorf("prompt target = %d %+v", rec.Code, target)
	}

	rec = env.do(t, http.MethodGet, "/api/prompt/options", nil)
	if !strings.Contains(rec.Body.String(), `"skin_color"`) {
		t.Errorf("options = %s", rec.Body)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/settings", map[string]any{
		"settings": map[string]any{"results.min_similarity": 0.5},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rec.Code, rec.Body)
	}
	if got := env.session.Settings.GetFloat64("results.min_similarity"); got != 0.5 {
		t.Errorf("min_similarity = %g", got)
	}

	rec = env.do(t, http.MethodPut, "/api/settings", map[string]any{
		"settings": map[string]any{"results.min_similarity": 2},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid update = %d", rec.Code)
	}
}

func TestExportStaysInReportDir(t *testing.T) {
	env := newTestEnv(t)
	reportDir := t.TempDir()
	env.cfg.Report.DBPath = filepath.Join(reportDir, "report.db")

	foreign := filepath.Join(t.TempDir(), "important.txt")
	if err := os.WriteFile(foreign, []byte("precious data"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/api/results/export", map[string]string{"path": foreign})
	summary := decode[services.ExportSummary](t, rec)
	if rec.Code != http.StatusOK || summary.Path != env.cfg.Report.DBPath {
		t.Errorf("export with a path field = %d %+v", rec.Code, summary)
	}
	if data, _ := os.ReadFile(foreign); string(data) != "precious data" {
		t.Errorf("foreign file overwritten: %q", data)
	}

	for _, name := range []string{"../escape.db", foreign, "sub/report.db", `..\escape.db`, ".."} {
		rec := env.do(t, http.MethodPost, "/api/results/export", map[string]string{"name": name})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("export name %q = %d, want 400", name, rec.Code)
		}
	}

	rec = env.do(t, http.MethodPost, "/api/results/export", map[string]string{"name": "weekly.db"})
	if summary := decode[services.ExportSummary](t, rec); summary.Path != filepath.Join(reportDir, "weekly.db") {
		t.Errorf("named export = %d %+v", rec.Code, summary)
	}
	if _, err := os.Stat(filepath.Join(reportDir, "weekly.db")); err != nil {
		t.Errorf("named report missing: %v", err)
	}
}

func TestFrameRedirect(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/frames/srv-42/f10.jpg", nil)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != env.backend.URL+"/processed/srv-42/f10.jpg" {
		t.Errorf("frame = %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/health", nil)
	rec := env.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "reid_result_pairs") {
		t.Errorf("metrics = %d", rec.Code)
	}
}
