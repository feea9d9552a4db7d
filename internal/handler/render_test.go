package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/lyricmotion/api/internal/model"
	"github.com/lyricmotion/api/internal/service"
	"github.com/lyricmotion/api/internal/store"
)

type testApp struct {
	app       *fiber.App
	store     *store.Store
	outputDir string
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	uploadDir := t.TempDir()
	outputDir := t.TempDir()

	st := store.New()
	renderService := service.NewRenderService(
		st,
		service.NewUploadService(uploadDir, "http://localhost:3000"),
		service.NewResolver(validator.New()),
	)
	renderHandler := NewRenderHandler(renderService, outputDir)

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "message": "service is running"})
	})
	render := app.Group("/render")
	render.Post("/", renderHandler.Submit)
	render.Get("/:id/status", renderHandler.Status)
	render.Get("/:id/download", renderHandler.Download)

	return &testApp{app: app, store: st, outputDir: outputDir}
}

type formFile struct {
	field, filename, contentType, content string
}

func multipartBody(t *testing.T, fields map[string]string, files []formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		h.Set("Content-Type", f.contentType)
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		pw.Write([]byte(f.content))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func postRender(t *testing.T, ta *testApp, fields map[string]string, files []formFile) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, fields, files)
	req, err := http.NewRequest(http.MethodPost, "/render", body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("invalid JSON %q: %v", data, err)
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

func audioFile() formFile {
	return formFile{field: "audioFile", filename: "track.mp3", contentType: "audio/mpeg", content: "audio"}
}

func TestSubmit_Legacy(t *testing.T) {
	ta := setupApp(t)

	resp := postRender(t, ta, map[string]string{
		"useGrouping": "false",
		"scenes":      `[{"lyric":"a","start":0,"end":1}]`,
	}, []formFile{audioFile()})

	assertStatus(t, resp, http.StatusCreated)
	result := parseJSON(t, resp)
	if result["jobId"] == nil || result["jobId"] == "" {
		t.Error("expected 'jobId' in response")
	}
	if result["status"] != "pending" {
		t.Errorf("expected status 'pending', got %v", result["status"])
	}
}

func TestSubmit_MissingAudio(t *testing.T) {
	ta := setupApp(t)

	resp := postRender(t, ta, map[string]string{
		"useGrouping": "false",
		"scenes":      `[{"lyric":"a","start":0,"end":1}]`,
	}, nil)

	assertStatus(t, resp, http.StatusBadRequest)
	result := parseJSON(t, resp)
	if result["error"] == nil {
		t.Error("expected error body")
	}
}

func TestSubmit_ValidationFailure(t *testing.T) {
	ta := setupApp(t)

	resp := postRender(t, ta, map[string]string{
		"useGrouping": "true",
		"sceneGroups": `[{"startTime":0}]`,
	}, []formFile{audioFile()})

	assertStatus(t, resp, http.StatusBadRequest)
	if ta.store.Len() != 0 {
		t.Error("rejected request must not create a job")
	}
}

func TestStatus_Flow(t *testing.T) {
	ta := setupApp(t)

	resp := postRender(t, ta, map[string]string{
		"useGrouping": "false",
		"scenes":      `[{"lyric":"a","start":0,"end":1}]`,
	}, []formFile{audioFile()})
	assertStatus(t, resp, http.StatusCreated)
	jobID := parseJSON(t, resp)["jobId"].(string)

	req, _ := http.NewRequest(http.MethodGet, "/render/"+jobID+"/status", nil)
	statusResp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, statusResp, http.StatusOK)

	result := parseJSON(t, statusResp)
	if result["jobId"] != jobID {
		t.Errorf("expected jobId %s, got %v", jobID, result["jobId"])
	}
	if result["status"] != "pending" {
		t.Errorf("expected pending, got %v", result["status"])
	}
	if _, ok := result["progress"]; !ok {
		t.Error("expected progress field")
	}
}

func TestStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	req, _ := http.NewRequest(http.MethodGet, "/render/does-not-exist/status", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestDownload_NotCompleted(t *testing.T) {
	ta := setupApp(t)
	job := ta.store.Create(&model.ResolvedInput{AudioURL: "u"}, nil)

	req, _ := http.NewRequest(http.MethodGet, "/render/"+job.ID+"/download", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestDownload_Completed(t *testing.T) {
	ta := setupApp(t)

	outPath := filepath.Join(ta.outputDir, "result.mov")
	if err := os.WriteFile(outPath, []byte("movie-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	job := ta.store.Create(&model.ResolvedInput{AudioURL: "u"}, nil)
	ta.store.MarkRendering(job.ID)
	ta.store.MarkCompleted(job.ID, outPath)

	req, _ := http.NewRequest(http.MethodGet, "/render/"+job.ID+"/download", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusOK)

	disposition := resp.Header.Get("Content-Disposition")
	want := "music-video-" + job.ID + ".mov"
	if disposition == "" || !bytes.Contains([]byte(disposition), []byte(want)) {
		t.Errorf("expected download name %q, got %q", want, disposition)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(data) != "movie-bytes" {
		t.Errorf("unexpected body %q", data)
	}
}

func TestDownload_PathTraversalBlocked(t *testing.T) {
	ta := setupApp(t)

	job := ta.store.Create(&model.ResolvedInput{AudioURL: "u"}, nil)
	ta.store.MarkRendering(job.ID)
	ta.store.MarkCompleted(job.ID, filepath.Join(ta.outputDir, "..", "..", "etc", "passwd"))

	req, _ := http.NewRequest(http.MethodGet, "/render/"+job.ID+"/download", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusForbidden)
}

func TestHealth(t *testing.T) {
	ta := setupApp(t)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["status"] != "ok" {
		t.Errorf("expected ok, got %v", result["status"])
	}
}
