package flow

import (
	"net/url"
	"strings"

	"github.com/dropDatabas3/melody/internal/domain/types"
)

// RedirectURL arma el destino del navegador después de un paso: la página
// de identidad pendiente, o el redirect_uri de la app con code y state.
func RedirectURL(identityUI string, res *types.AuthorizeResult) string {
	q := url.Values{}
	q.Set("code", res.Code)
	if res.State != "" {
		q.Set("state", res.State)
	}
	if res.NextPage != types.NextPageNone {
		return strings.TrimRight(identityUI, "/") + "/" + res.NextPage.Path() + "?" + q.Encode()
	}
	sep := "?"
	if strings.Contains(res.RedirectURI, "?") {
		sep = "&"
	}
	return res.RedirectURI + sep + q.Encode()
}
