// Package passkey implementa enrolamiento y verificación de passkeys
// (WebAuthn) dentro del flujo de autorización.
package passkey

import (
	"context"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/dropDatabas3/melody/internal/audit"
	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	dto "github.com/dropDatabas3/melody/internal/http/dto/passkey"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

type Service interface {
	BeginEnroll(ctx context.Context, code string) (*protocol.CredentialCreation, error)
	FinishEnroll(ctx context.Context, code string, credential []byte) (*types.AuthorizeResult, error)
	DeclineEnroll(ctx context.Context, code string, remember bool) (*types.AuthorizeResult, error)

	// BeginVerify retorna nil sin error si el usuario no tiene passkeys.
	BeginVerify(ctx context.Context, email string) (*protocol.CredentialAssertion, error)
	FinishVerify(ctx context.Context, p flow.AuthorizeParams, email string, assertion []byte) (*types.AuthorizeResult, error)

	List(ctx context.Context, code string) ([]dto.PasskeyInfo, error)
	Remove(ctx context.Context, code, id string) error
	FinishManage(ctx context.Context, code string) (*types.AuthorizeResult, error)
}

type Deps struct {
	Users     repository.UserRepository
	Passkeys  repository.PasskeyRepository
	Cache     cache.Client
	Codes     *flow.Codes
	Resolver  *flow.Resolver
	Validator *flow.RequestValidator
	Ceremony  Ceremony
	Config    config.PasskeyConfig
}

type passkeyService struct {
	deps     Deps
	enrolls  cache.Namespace[webauthn.SessionData]
	verifies cache.Namespace[webauthn.SessionData]
	ttl      time.Duration
}

func NewService(d Deps) Service {
	ttl := d.Config.ChallengeTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &passkeyService{
		deps:     d,
		enrolls:  cache.NewNamespace[webauthn.SessionData](d.Cache, "passkeyEnroll"),
		verifies: cache.NewNamespace[webauthn.SessionData](d.Cache, "passkeyVerify"),
		ttl:      ttl,
	}
}

func (s *passkeyService) userFor(ctx context.Context, body *types.AuthCodeBody) (*waUser, error) {
	u, err := s.deps.Users.GetUserByID(ctx, body.User.ID)
	if repository.IsNotFound(err) {
		return nil, httperrors.ErrNoUser
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	creds, err := s.deps.Passkeys.ListPasskeysByUser(ctx, u.ID)
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	return &waUser{u: u, creds: creds}, nil
}

// ─── Enroll ───

func (s *passkeyService) BeginEnroll(ctx context.Context, code string) (*protocol.CredentialCreation, error) {
	if !s.deps.Config.AllowEnrollment {
		return nil, httperrors.ErrFeatureDisabled
	}
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPagePasskeyEnroll)
	if err != nil {
		return nil, err
	}
	wu, err := s.userFor(ctx, body)
	if err != nil {
		return nil, err
	}
	opts, sess, err := s.deps.Ceremony.BeginRegistration(wu)
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if err := s.enrolls.Put(ctx, wu.u.ID, *sess, s.ttl); err != nil {
		return nil, httperrors.Internal(err)
	}
	return opts, nil
}

func (s *passkeyService) FinishEnroll(ctx context.Context, code string, credential []byte) (*types.AuthorizeResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("passkey.enroll.finish"))

	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPagePasskeyEnroll)
	if err != nil {
		return nil, err
	}
	sess, err := s.enrolls.Take(ctx, body.User.ID)
	if cache.IsNotFound(err) {
		return nil, httperrors.ErrPasskeyChallengeExpired
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	wu, err := s.userFor(ctx, body)
	if err != nil {
		return nil, err
	}
	cred, err := s.deps.Ceremony.FinishRegistration(wu, sess, credential)
	if err != nil {
		log.Info("attestation rejected", logger.UserID(wu.u.ID), logger.Err(err))
		return nil, httperrors.ErrInvalidPasskey
	}
	if _, err := s.deps.Passkeys.CreatePasskey(ctx, toRecord(wu.u.ID, cred)); err != nil {
		if repository.IsConflict(err) {
			return nil, httperrors.ErrInvalidPasskey
		}
		return nil, httperrors.Internal(err)
	}
	audit.Log(ctx, audit.PasskeyEnrolled, logger.UserID(wu.u.ID))
	return s.deps.Resolver.Resolve(ctx, flow.EntryPasskeyEnroll, code, body)
}

// DeclineEnroll saltea el paso; remember evita volver a preguntarlo.
func (s *passkeyService) DeclineEnroll(ctx context.Context, code string, remember bool) (*types.AuthorizeResult, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPagePasskeyEnroll)
	if err != nil {
		return nil, err
	}
	if remember {
		u, err := s.deps.Users.GetUserByID(ctx, body.User.ID)
		if err != nil {
			return nil, httperrors.Internal(err)
		}
		u.SkipPasskeyEnroll = true
		if u, err = s.deps.Users.UpdateUser(ctx, u); err != nil {
			return nil, httperrors.Internal(err)
		}
		body.User = *u
	}
	return s.deps.Resolver.Resolve(ctx, flow.EntryPasskeyEnroll, code, body)
}

// ─── Verify ───

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func (s *passkeyService) BeginVerify(ctx context.Context, email string) (*protocol.CredentialAssertion, error) {
	email = normEmail(email)
	if email == "" {
		return nil, httperrors.ErrInvalidRequest
	}
	u, err := s.deps.Users.GetUserByEmail(ctx, email)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	creds, err := s.deps.Passkeys.ListPasskeysByUser(ctx, u.ID)
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if len(creds) == 0 || !u.IsActive {
		return nil, nil
	}
	opts, sess, err := s.deps.Ceremony.BeginLogin(&waUser{u: u, creds: creds})
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if err := s.verifies.Put(ctx, email, *sess, s.ttl); err != nil {
		return nil, httperrors.Internal(err)
	}
	return opts, nil
}

// FinishVerify valida la aserción y exige un sign counter estrictamente
// mayor que el guardado.
func (s *passkeyService) FinishVerify(ctx context.Context, p flow.AuthorizeParams, email string, assertion []byte) (*types.AuthorizeResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("passkey.verify.finish"))

	app, req, err := s.deps.Validator.Validate(ctx, p)
	if err != nil {
		return nil, err
	}
	email = normEmail(email)
	sess, err := s.verifies.Take(ctx, email)
	if cache.IsNotFound(err) {
		return nil, httperrors.ErrPasskeyChallengeExpired
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}

	u, err := s.deps.Users.GetUserByEmail(ctx, email)
	if repository.IsNotFound(err) {
		return nil, httperrors.ErrInvalidPasskey
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if !u.IsActive {
		return nil, httperrors.ErrUserDisabled
	}
	creds, err := s.deps.Passkeys.ListPasskeysByUser(ctx, u.ID)
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	log = log.With(logger.UserID(u.ID))

	used, counter, err := s.deps.Ceremony.FinishLogin(&waUser{u: u, creds: creds}, sess, assertion)
	if err != nil {
		log.Info("assertion rejected", logger.Err(err))
		return nil, httperrors.ErrInvalidPasskey
	}
	var stored *repository.PasskeyCredential
	for i := range creds {
		if string(creds[i].CredentialID) == string(used.ID) {
			stored = &creds[i]
			break
		}
	}
	if stored == nil {
		return nil, httperrors.ErrInvalidPasskey
	}
	if counter <= stored.SignCounter {
		log.Warn("passkey counter did not increase",
			logger.Int64("stored", int64(stored.SignCounter)),
			logger.Int64("presented", int64(counter)),
		)
		return nil, httperrors.ErrInvalidPasskey
	}
	// condicional en el store: otro request con el mismo counter pierde
	ok, err := s.deps.Passkeys.UpdatePasskeyCounter(ctx, stored.ID, counter)
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if !ok {
		return nil, httperrors.ErrInvalidPasskey
	}

	code, body, err := s.deps.Codes.Issue(ctx, app, u, req, true)
	if err != nil {
		return nil, err
	}
	log.Info("signed in with passkey")
	return s.deps.Resolver.Resolve(ctx, flow.EntryAuthenticated, code, body)
}

// ─── manage-passkey ───

func (s *passkeyService) List(ctx context.Context, code string) ([]dto.PasskeyInfo, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageManagePasskey)
	if err != nil {
		return nil, err
	}
	creds, err := s.deps.Passkeys.ListPasskeysByUser(ctx, body.User.ID)
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	out := make([]dto.PasskeyInfo, 0, len(creds))
	for _, c := range creds {
		out = append(out, dto.PasskeyInfo{ID: c.ID, CreatedAt: c.CreatedAt, LastUsedAt: c.LastUsedAt})
	}
	return out, nil
}

func (s *passkeyService) Remove(ctx context.Context, code, id string) error {
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageManagePasskey)
	if err != nil {
		return err
	}
	if err := s.deps.Passkeys.DeletePasskey(ctx, body.User.ID, id); err != nil {
		if repository.IsNotFound(err) {
			return httperrors.ErrNotFound
		}
		return httperrors.Internal(err)
	}
	audit.Log(ctx, audit.PasskeyRemoved, logger.UserID(body.User.ID))
	return nil
}

func (s *passkeyService) FinishManage(ctx context.Context, code string) (*types.AuthorizeResult, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageManagePasskey)
	if err != nil {
		return nil, err
	}
	return s.deps.Resolver.Resolve(ctx, flow.EntryPolicy, code, body)
}
