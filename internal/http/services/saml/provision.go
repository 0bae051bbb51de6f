package saml

import (
	"context"
	"strings"

	gosaml "github.com/crewjam/saml"

	"github.com/dropDatabas3/melody/internal/domain/repository"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
)

// attribute busca por Name y después por FriendlyName.
func attribute(a *gosaml.Assertion, name string) string {
	if name == "" {
		return ""
	}
	for _, st := range a.AttributeStatements {
		for _, attr := range st.Attributes {
			if attr.Name != name && attr.FriendlyName != name {
				continue
			}
			for _, v := range attr.Values {
				if v.Value != "" {
					return strings.TrimSpace(v.Value)
				}
			}
		}
	}
	return ""
}

// provision busca el usuario federado por (idp, id externo) y lo crea si
// no existe. Sin atributo de id se usa el NameID.
func (s *samlService) provision(ctx context.Context, idp *repository.SamlIdp, a *gosaml.Assertion) (*repository.User, error) {
	externalID := attribute(a, idp.UserIDAttribute)
	if externalID == "" && a.Subject != nil && a.Subject.NameID != nil {
		externalID = strings.TrimSpace(a.Subject.NameID.Value)
	}
	if externalID == "" {
		return nil, httperrors.ErrInvalidSamlResponse.WithDetail("missing user id")
	}

	u, err := s.deps.Users.GetUserBySamlAccount(ctx, idp.Name, externalID)
	if err == nil {
		return u, nil
	}
	if !repository.IsNotFound(err) {
		return nil, httperrors.Internal(err)
	}

	email := strings.ToLower(attribute(a, idp.EmailAttribute))
	if email == "" {
		return nil, httperrors.ErrInvalidSamlResponse.WithDetail("missing email")
	}
	u, err = s.deps.Users.CreateUser(ctx, &repository.User{
		Email:          email,
		EmailVerified:  true,
		FirstName:      attribute(a, idp.FirstNameAttribute),
		LastName:       attribute(a, idp.LastNameAttribute),
		IsActive:       true,
		SamlIdpName:    idp.Name,
		SamlExternalID: externalID,
	})
	// una cuenta local con el mismo email no se vincula automáticamente
	if repository.IsConflict(err) {
		return nil, httperrors.ErrUserExists
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	return u, nil
}
