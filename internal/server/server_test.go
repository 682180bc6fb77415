package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	imagelabeler "github.com/menta2k/image-labeler"
	"github.com/menta2k/image-labeler/internal/config"
	"github.com/menta2k/image-labeler/internal/handler"
	"github.com/menta2k/image-labeler/pkg/errs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeModel struct {
	recognizeErr error
}

func (f *fakeModel) Recognize(context.Context, []byte) (string, error) {
	if f.recognizeErr != nil {
		return "", f.recognizeErr
	}
	return "红色, 猫", nil
}

func (f *fakeModel) Translate(_ context.Context, text string) (string, error) {
	return "\"red\ncat\"", nil
}

type testEnv struct {
	cfg    *config.Config
	model  *fakeModel
	router *gin.Engine
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Storage.UploadDir = filepath.Join(root, "uploads")
	cfg.Storage.LabelDir = filepath.Join(root, "labels")
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	model := &fakeModel{}
	l, err := imagelabeler.NewWithModel(context.Background(), cfg, model, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	h := handler.NewHandler(l, nil)
	return &testEnv{cfg: cfg, model: model, router: NewRouter(h, l, zap.NewNop())}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) writeImage(t *testing.T, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.cfg.Storage.UploadDir, name), []byte("img"), 0644); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) writeLabel(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.cfg.Storage.LabelDir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func multipartImage(t *testing.T, filename, contentType string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), imagelabeler.Version) {
		t.Errorf("unexpected health response %d %s", w.Code, w.Body.String())
	}
}

func TestUploadLabelsImage(t *testing.T) {
	e := newEnv(t)
	body, ct := multipartImage(t, "Cat.PNG", "image/png", []byte("png-bytes"))

	w := e.do(t, http.MethodPost, "/api/upload", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var res struct {
		Success         bool   `json:"success"`
		ImageFilename   string `json:"imageFilename"`
		LabelFilename   string `json:"labelFilename"`
		OriginalLabel   string `json:"originalLabel"`
		TranslatedLabel string `json:"translatedLabel"`
		ImageURL        string `json:"imageUrl"`
	}
	decode(t, w, &res)
	if !res.Success || !strings.HasSuffix(res.ImageFilename, ".png") {
		t.Errorf("unexpected response %+v", res)
	}
	if res.LabelFilename != strings.TrimSuffix(res.ImageFilename, ".png")+".txt" {
		t.Errorf("label name %q does not match image %q", res.LabelFilename, res.ImageFilename)
	}
	if res.OriginalLabel != "红色, 猫" || res.TranslatedLabel != "red, cat" {
		t.Errorf("unexpected labels %+v", res)
	}
	if res.ImageURL != "/uploads/"+res.ImageFilename {
		t.Errorf("unexpected url %q", res.ImageURL)
	}

	content, err := os.ReadFile(filepath.Join(e.cfg.Storage.LabelDir, res.LabelFilename))
	if err != nil || string(content) != "red, cat" {
		t.Errorf("label file %q, %v", content, err)
	}

	// stored image is served statically
	w = e.do(t, http.MethodGet, res.ImageURL, nil, "")
	if w.Code != http.StatusOK || w.Body.String() != "png-bytes" {
		t.Errorf("static serve failed: %d", w.Code)
	}
}

func TestUploadRejections(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name     string
		filename string
		ctype    string
		data     []byte
	}{
		{"extension", "notes.txt", "image/png", []byte("x")},
		{"mime", "cat.png", "application/octet-stream", []byte("x")},
		{"too large", "big.jpg", "image/jpeg", bytes.Repeat([]byte("x"), int(e.cfg.Upload.MaxSize)+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartImage(t, tt.filename, tt.ctype, tt.data)
			if w := e.do(t, http.MethodPost, "/api/upload", body, ct); w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	if w := e.do(t, http.MethodPost, "/api/upload", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing file: expected 400, got %d", w.Code)
	}
	entries, _ := os.ReadDir(e.cfg.Storage.UploadDir)
	if len(entries) != 0 {
		t.Errorf("rejected uploads must not be stored, found %d files", len(entries))
	}
}

func TestUploadModelFailure(t *testing.T) {
	e := newEnv(t)
	e.model.recognizeErr = &errs.ModelError{Op: "recognize", Err: errors.New("connection refused")}
	body, ct := multipartImage(t, "cat.jpg", "image/jpeg", []byte("jpeg"))

	w := e.do(t, http.MethodPost, "/api/upload", body, ct)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	labels, _ := os.ReadDir(e.cfg.Storage.LabelDir)
	if len(labels) != 0 {
		t.Error("failed pipeline must not write a label")
	}
}

func TestListImages(t *testing.T) {
	e := newEnv(t)
	e.writeImage(t, "a.jpg")
	e.writeImage(t, "b.png")
	e.writeLabel(t, "a.txt", "red")

	w := e.do(t, http.MethodGet, "/api/images", nil, "")
	var res struct {
		Images []struct {
			ImageFilename string  `json:"imageFilename"`
			LabelFilename *string `json:"labelFilename"`
			HasLabel      bool    `json:"hasLabel"`
		} `json:"images"`
	}
	decode(t, w, &res)
	if len(res.Images) != 2 {
		t.Fatalf("expected 2 images, got %+v", res.Images)
	}
	for _, img := range res.Images {
		switch img.ImageFilename {
		case "a.jpg":
			if !img.HasLabel || img.LabelFilename == nil || *img.LabelFilename != "a.txt" {
				t.Errorf("a.jpg should be labeled: %+v", img)
			}
		case "b.png":
			if img.HasLabel || img.LabelFilename != nil {
				t.Errorf("b.png should be unlabeled: %+v", img)
			}
		}
	}
}

func TestGetLabel(t *testing.T) {
	e := newEnv(t)
	e.writeLabel(t, "a.txt", "red, blue")

	w := e.do(t, http.MethodGet, "/api/label/a.txt", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "red, blue") {
		t.Errorf("unexpected %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodGet, "/api/label/missing.txt", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestTranslate(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/translate", []byte(`{"text":"  红色  "}`), "application/json")
	var res struct {
		Success    bool   `json:"success"`
		Original   string `json:"original"`
		Translated string `json:"translated"`
	}
	decode(t, w, &res)
	if !res.Success || res.Original != "红色" || res.Translated != "red, cat" {
		t.Errorf("unexpected %+v", res)
	}

	for _, body := range []string{`{"text":"   "}`, `{}`, ``} {
		if w := e.do(t, http.MethodPost, "/api/translate", []byte(body), "application/json"); w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	if w := e.do(t, http.MethodGet, "/api/export", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("empty corpus: expected 404, got %d", w.Code)
	}

	e.writeImage(t, "a.jpg")
	e.writeLabel(t, "a.txt", "red")
	w := e.do(t, http.MethodGet, "/api/export", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename=images-and-labels.zip" {
		t.Errorf("unexpected disposition %q", cd)
	}

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "images/a.jpg,labels/a.txt" {
		t.Errorf("unexpected entries %v", names)
	}
}

func TestDeleteRoutes(t *testing.T) {
	e := newEnv(t)
	e.writeImage(t, "a.jpg")
	e.writeLabel(t, "a.txt", "red")
	e.writeImage(t, "x.jpg")

	w := e.do(t, http.MethodDelete, "/api/image/a.jpg", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"success":true`) {
		t.Errorf("unexpected %d %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(e.cfg.Storage.LabelDir, "a.txt")); !os.IsNotExist(err) {
		t.Error("label should be removed with its image")
	}

	w = e.do(t, http.MethodPost, "/api/images/delete", []byte(`{"filenames":["x.jpg","missing.jpg"]}`), "application/json")
	var res struct {
		Success bool `json:"success"`
		Results []struct {
			Filename string `json:"filename"`
			Success  bool   `json:"success"`
		} `json:"results"`
	}
	decode(t, w, &res)
	if !res.Success || len(res.Results) != 2 || !res.Results[0].Success || !res.Results[1].Success {
		t.Errorf("unexpected batch delete %+v", res)
	}

	for _, body := range []string{`{"filenames":[]}`, `{}`, `not json`} {
		if w := e.do(t, http.MethodPost, "/api/images/delete", []byte(body), "application/json"); w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestLabelImagesDefaultsToUnlabeled(t *testing.T) {
	e := newEnv(t)
	e.writeImage(t, "a.jpg")
	e.writeImage(t, "b.jpg")
	e.writeLabel(t, "b.txt", "kept")

	w := e.do(t, http.MethodPost, "/api/images/label", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Success bool `json:"success"`
		Results []struct {
			Filename string `json:"filename"`
			Success  bool   `json:"success"`
		} `json:"results"`
	}
	decode(t, w, &res)
	if len(res.Results) != 1 || res.Results[0].Filename != "a.jpg" || !res.Results[0].Success {
		t.Errorf("unexpected %+v", res)
	}
}

func TestOptionalRoutesNotMounted(t *testing.T) {
	e := newEnv(t)
	if w := e.do(t, http.MethodGet, "/api/runs", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("runs: expected 404, got %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/api/export/s3", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("s3: expected 404, got %d", w.Code)
	}
}
