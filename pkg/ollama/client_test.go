package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/menta2k/image-labeler/pkg/errs"
	"github.com/menta2k/image-labeler/pkg/types"
)

type capturedRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images"`
	Stream  *bool          `json:"stream"`
	Options map[string]any `json:"options"`
}

func TestGenerate(t *testing.T) {
	var got capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"qwen2.5vl:7b","response":"中国剪纸, 红色主题","done":true}` + "\n"))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/api/generate", time.Minute)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	out, err := c.Generate(context.Background(), types.GenerateRequest{
		Model:    "qwen2.5vl:7b",
		Prompt:   "describe",
		Images:   [][]byte{[]byte("raw-image")},
		Sampling: types.Sampling{Temperature: 0.3, TopP: 0.9, MaxTokens: 500},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "中国剪纸, 红色主题" {
		t.Errorf("got %q", out)
	}

	if got.Model != "qwen2.5vl:7b" || got.Prompt != "describe" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Stream == nil || *got.Stream {
		t.Error("expected stream=false")
	}
	if len(got.Images) != 1 || got.Images[0] != "cmF3LWltYWdl" {
		t.Errorf("expected base64 image, got %v", got.Images)
	}
	if got.Options["temperature"] != 0.3 || got.Options["top_p"] != 0.9 || got.Options["num_predict"] != float64(500) {
		t.Errorf("unexpected options %v", got.Options)
	}
}

func TestGenerateMissingResponseField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"m","done":true}` + "\n"))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, time.Minute)
	out, err := c.Generate(context.Background(), types.GenerateRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty text, got %q", out)
	}
}

func TestGenerateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"missing\" not found, try pulling it first"}` + "\n"))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, time.Minute)
	_, err := c.Generate(context.Background(), types.GenerateRequest{Model: "missing"})

	var me *errs.ModelError
	if !errors.As(err, &me) {
		t.Fatalf("expected ModelError, got %T: %v", err, err)
	}
	if !strings.Contains(me.Body, "not found") {
		t.Errorf("expected response body to be kept, got %q", me.Body)
	}
}

func TestGenerateConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := NewClient(url, time.Second)
	_, err := c.Generate(context.Background(), types.GenerateRequest{Model: "m"})
	if !errs.IsModel(err) {
		t.Fatalf("expected ModelError, got %v", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("localhost", time.Second); err == nil {
		t.Error("expected error for URL without scheme")
	}
}
