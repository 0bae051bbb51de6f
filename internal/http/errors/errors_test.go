package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIs_MatchesCopies(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("exchange: %w", ErrInvalidAuthCode.WithDetail("consumed").WithCause(stderrors.New("redis nil")))
	if !stderrors.Is(err, ErrInvalidAuthCode) {
		t.Fatal("errors.Is debería matchear por código")
	}
	if stderrors.Is(err, ErrInvalidCodeVerifier) {
		t.Fatal("no debería matchear otro código")
	}
}

func TestFromError_UnknownIsInternal(t *testing.T) {
	t.Parallel()
	e := FromError(stderrors.New("dial tcp: refused"))
	if e.Code != "internal_error" || e.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("got %+v", e)
	}
	if e.Message == "dial tcp: refused" {
		t.Fatal("no se debe exponer la causa")
	}
}

func TestWriteError_OAuthShape(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteError(rec, ErrInvalidClient)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("falta WWW-Authenticate")
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "invalid_client" || body["error_description"] == "" {
		t.Fatalf("body = %v", body)
	}
}
