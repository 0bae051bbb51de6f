// Package flow es el núcleo del flujo de autorización: emisión y estado
// de auth codes, sesiones SSO, validación del request de /authorize y el
// resolver de pasos post-autenticación. Todos los métodos de
// autenticación (password, social, passkey, SAML, recovery code) terminan
// en Codes.Issue + Resolver.Resolve.
package flow

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	tokens "github.com/dropDatabas3/melody/internal/security/token"
)

// AuthCodeLength es la longitud del code (alfanumérico).
const AuthCodeLength = 128

// Codes guarda AuthCodeBody bajo "authCode:<code>".
type Codes struct {
	ns  cache.Namespace[types.AuthCodeBody]
	ttl time.Duration
	now func() time.Time
}

func NewCodes(c cache.Client, ttl time.Duration) *Codes {
	return &Codes{ns: cache.NewNamespace[types.AuthCodeBody](c, "authCode"), ttl: ttl, now: time.Now}
}

// Issue genera un code nuevo para (app, user, request).
func (c *Codes) Issue(ctx context.Context, app *repository.App, user *repository.User, req types.AuthRequest, fullyAuthorized bool) (string, *types.AuthCodeBody, error) {
	code, err := tokens.RandomString(AuthCodeLength)
	if err != nil {
		return "", nil, httperrors.Internal(fmt.Errorf("generate auth code: %w", err))
	}
	now := c.now().UTC()
	body := &types.AuthCodeBody{
		AppID:             app.ID,
		AppName:           app.Name,
		User:              *user,
		Request:           req,
		IsFullyAuthorized: fullyAuthorized,
		AuthTime:          now,
		ExpiresAt:         now.Add(c.ttl),
	}
	if err := c.ns.Put(ctx, code, *body, c.ttl); err != nil {
		return "", nil, httperrors.Internal(fmt.Errorf("store auth code: %w", err))
	}
	return code, body, nil
}

// Load lee el body sin consumirlo.
func (c *Codes) Load(ctx context.Context, code string) (*types.AuthCodeBody, error) {
	if code == "" {
		return nil, httperrors.ErrInvalidAuthCode
	}
	body, err := c.ns.Get(ctx, code)
	if cache.IsNotFound(err) {
		return nil, httperrors.ErrInvalidAuthCode
	}
	if err != nil {
		return nil, httperrors.Internal(fmt.Errorf("load auth code: %w", err))
	}
	return &body, nil
}

// LoadAt lee el body y exige que el flujo esté esperando alguno de pages.
func (c *Codes) LoadAt(ctx context.Context, code string, pages ...types.NextPage) (*types.AuthCodeBody, error) {
	body, err := c.Load(ctx, code)
	if err != nil {
		return nil, err
	}
	if body.Authorized || !slices.Contains(pages, body.NextPage) {
		return nil, httperrors.ErrInvalidAuthStep.WithDetail(string(body.NextPage))
	}
	return body, nil
}

// Save re-escribe el body conservando el vencimiento original. Un code ya
// canjeado o vencido no se vuelve a crear.
func (c *Codes) Save(ctx context.Context, code string, body *types.AuthCodeBody) error {
	ttl := body.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return httperrors.ErrInvalidAuthCode
	}
	ok, err := c.ns.Replace(ctx, code, *body, ttl)
	if err != nil {
		return httperrors.Internal(fmt.Errorf("update auth code: %w", err))
	}
	if !ok {
		return httperrors.ErrInvalidAuthCode
	}
	return nil
}

// Consume lee y borra el code en una sola operación atómica. Dos canjes
// concurrentes del mismo code: uno gana, el otro recibe ErrInvalidAuthCode.
func (c *Codes) Consume(ctx context.Context, code string) (*types.AuthCodeBody, error) {
	if code == "" {
		return nil, httperrors.ErrInvalidAuthCode
	}
	body, err := c.ns.Take(ctx, code)
	if cache.IsNotFound(err) {
		return nil, httperrors.ErrInvalidAuthCode
	}
	if err != nil {
		return nil, httperrors.Internal(fmt.Errorf("consume auth code: %w", err))
	}
	return &body, nil
}
