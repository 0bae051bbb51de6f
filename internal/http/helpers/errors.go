package helpers

import (
	"net/http"

	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

// Fail escribe el error del service. Los 5xx se loguean con la causa,
// que nunca llega al cliente.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	appErr := httperrors.FromError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.From(r.Context()).Error("request failed",
			logger.Layer("controller"),
			logger.String("code", appErr.Code),
			logger.Err(appErr.Err),
		)
	}
	httperrors.WriteError(w, appErr)
}
