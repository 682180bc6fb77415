package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestTaxonomyHelpers(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", Validation("text", "must not be empty"), IsValidation},
		{"not found", &NotFoundError{Kind: "image", Name: "a.jpg", Err: fs.ErrNotExist}, IsNotFound},
		{"model", &ModelError{Op: "recognize", Err: cause}, IsModel},
		{"storage", &StorageError{Op: "write", Path: "/tmp/x", Err: fs.ErrPermission}, IsStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !tt.check(wrapped) {
				t.Errorf("helper did not recognize wrapped %T", tt.err)
			}
		})
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := fmt.Errorf("pipeline: %w", &ModelError{Op: "translate", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the transport cause")
	}

	nf := &NotFoundError{Kind: "label", Name: "a.txt", Err: fs.ErrNotExist}
	if !errors.Is(nf, fs.ErrNotExist) {
		t.Error("expected NotFoundError to unwrap to fs.ErrNotExist")
	}
}

func TestModelErrorMessageIncludesBody(t *testing.T) {
	err := &ModelError{Op: "recognize", Body: `{"error":"model not found"}`, Err: errors.New("status 404")}
	msg := err.Error()
	if !strings.Contains(msg, "model not found") {
		t.Errorf("expected body in message, got %q", msg)
	}
	if !strings.Contains(msg, "recognize") {
		t.Errorf("expected op in message, got %q", msg)
	}
}

func TestHelpersRejectOtherErrors(t *testing.T) {
	err := errors.New("plain")
	if IsValidation(err) || IsNotFound(err) || IsModel(err) || IsStorage(err) {
		t.Error("plain error must not match any taxonomy type")
	}
}
