package jwt

import (
	"context"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer firma access/ID tokens con la clave actual del keystore.
type Issuer struct {
	Iss        string
	Keys       *Keystore
	AccessTTL  time.Duration
	IDTokenTTL time.Duration
	// Leeway tolera desfasajes de reloj al verificar exp/iat.
	Leeway time.Duration

	now func() time.Time
}

func NewIssuer(iss string, ks *Keystore, accessTTL, idTTL time.Duration) *Issuer {
	return &Issuer{
		Iss:        iss,
		Keys:       ks,
		AccessTTL:  accessTTL,
		IDTokenTTL: idTTL,
		Leeway:     30 * time.Second,
		now:        time.Now,
	}
}

// AccessClaims son los datos de negocio del access token.
type AccessClaims struct {
	Subject  string
	ClientID string
	Scope    string
	Roles    []string
}

// IDClaims son los datos del ID token; Profile ya viene filtrado por scope.
type IDClaims struct {
	Subject  string
	ClientID string
	Nonce    string
	AuthTime time.Time
	Profile  map[string]any
}

// Sign firma claims arbitrarias con la clave actual. Retorna el kid usado.
func (i *Issuer) Sign(ctx context.Context, claims jwtv5.MapClaims) (string, string, error) {
	key, err := i.Keys.Current(ctx)
	if err != nil {
		return "", "", err
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tk.Header["kid"] = key.KID
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(key.Private)
	if err != nil {
		return "", "", err
	}
	return signed, key.KID, nil
}

func (i *Issuer) base(sub, clientID string, ttl time.Duration) (jwtv5.MapClaims, time.Time) {
	now := i.now().UTC()
	exp := now.Add(ttl)
	return jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": sub,
		"azp": clientID,
		"aud": clientID,
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"jti": uuid.NewString(),
	}, exp
}

// IssueAccess emite el access token.
func (i *Issuer) IssueAccess(ctx context.Context, c AccessClaims) (string, time.Time, error) {
	claims, exp := i.base(c.Subject, c.ClientID, i.AccessTTL)
	claims["scope"] = c.Scope
	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	claims["roles"] = roles
	signed, _, err := i.Sign(ctx, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueIDToken emite el ID token OIDC.
func (i *Issuer) IssueIDToken(ctx context.Context, c IDClaims) (string, time.Time, error) {
	claims, exp := i.base(c.Subject, c.ClientID, i.IDTokenTTL)
	if c.Nonce != "" {
		claims["nonce"] = c.Nonce
	}
	if !c.AuthTime.IsZero() {
		claims["auth_time"] = c.AuthTime.Unix()
	}
	for k, v := range c.Profile {
		claims[k] = v
	}
	signed, _, err := i.Sign(ctx, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify valida firma, iss y exp. Prueba primero la clave cuyo kid
// coincide con el header y después el resto en orden; solo un fallo de
// firma pasa a la siguiente clave.
func (i *Issuer) Verify(ctx context.Context, raw string) (jwtv5.MapClaims, error) {
	keys, err := i.Keys.Keys(ctx)
	if err != nil {
		return nil, err
	}

	parser := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{AlgRS256}),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithIssuedAt(),
		jwtv5.WithLeeway(i.Leeway),
		jwtv5.WithTimeFunc(i.now),
	)

	unverified, _, err := parser.ParseUnverified(raw, jwtv5.MapClaims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	kid, _ := unverified.Header["kid"].(string)

	for _, key := range orderByKID(keys, kid) {
		claims := jwtv5.MapClaims{}
		_, err := parser.ParseWithClaims(raw, claims, func(*jwtv5.Token) (any, error) {
			return key.Public, nil
		})
		if err == nil {
			return claims, nil
		}
		if !errors.Is(err, jwtv5.ErrTokenSignatureInvalid) {
			return nil, ErrInvalidToken
		}
	}
	return nil, ErrInvalidToken
}

func orderByKID(keys []*SigningKey, kid string) []*SigningKey {
	out := make([]*SigningKey, 0, len(keys))
	for _, k := range keys {
		if k.KID == kid {
			out = append(out, k)
		}
	}
	for _, k := range keys {
		if k.KID != kid {
			out = append(out, k)
		}
	}
	return out
}
