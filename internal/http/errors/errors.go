package errors

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// WriteError escribe el error como JSON OAuth ({"error","error_description"}).
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if appErr.HTTPStatus == http.StatusUnauthorized && appErr.Code == ErrInvalidClient.Code {
		w.Header().Set("WWW-Authenticate", `Basic realm="melody"`)
	}
	if appErr.HTTPStatus == http.StatusUnauthorized && appErr.Code == ErrInvalidToken.Code {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(appErr)
}

// WriteRetryAfter agrega Retry-After y escribe el error.
func WriteRetryAfter(w http.ResponseWriter, err error, after time.Duration) {
	if after > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(after.Round(time.Second).Seconds())))
	}
	WriteError(w, err)
}
