package mfa

import (
	"context"
	"slices"

	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	dto "github.com/dropDatabas3/melody/internal/http/dto/mfa"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

func (s *mfaService) EnrollOptions(ctx context.Context, code string) (*dto.EnrollOptionsResponse, error) {
	if _, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageMfaEnroll); err != nil {
		return nil, err
	}
	opts := flow.EnrollOptions(s.deps.Config)
	out := &dto.EnrollOptionsResponse{Options: make([]string, len(opts))}
	for i, o := range opts {
		out.Options[i] = string(o)
	}
	return out, nil
}

// Enroll agrega el tipo elegido al usuario; la verificación la hace el
// paso siguiente (otp_setup, sms_mfa o email_mfa).
func (s *mfaService) Enroll(ctx context.Context, code, mfaType string) (*types.AuthorizeResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("mfa.enroll"), logger.MfaType(mfaType))

	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageMfaEnroll)
	if err != nil {
		return nil, err
	}
	t := repository.MfaType(mfaType)
	if !slices.Contains(flow.EnrollOptions(s.deps.Config), t) {
		return nil, httperrors.ErrInvalidMfaType
	}
	u, err := s.loadUser(ctx, body)
	if err != nil {
		return nil, err
	}
	u.AddMfa(t)
	if u, err = s.saveUser(ctx, u); err != nil {
		return nil, err
	}
	body.User = *u
	log.Info("mfa type enrolled", logger.UserID(u.ID))
	return s.deps.Resolver.Resolve(ctx, flow.EntryMfaEnroll, code, body)
}
