// Package jwt firma y verifica los tokens del servidor (RS256) sobre una
// lista ordenada de claves: la primera es la actual, el resto son claves
// deprecadas que solo sirven para verificar durante la ventana de rotación.
package jwt

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

const AlgRS256 = "RS256"

var (
	ErrNoSigningKey = errors.New("jwt: no signing key configured")
	ErrInvalidToken = errors.New("jwt: invalid token")
	ErrBadKey       = errors.New("jwt: unsupported key material")
)

type KeyStatus string

const (
	KeyCurrent    KeyStatus = "current"
	KeyDeprecated KeyStatus = "deprecated"
)

// SigningKey es un par RSA con su kid.
type SigningKey struct {
	KID     string
	Status  KeyStatus
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// NewSigningKey deriva kid y pública a partir de la privada.
func NewSigningKey(priv *rsa.PrivateKey, status KeyStatus) (*SigningKey, error) {
	if priv == nil {
		return nil, ErrBadKey
	}
	kid, err := Thumbprint(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &SigningKey{KID: kid, Status: status, Private: priv, Public: &priv.PublicKey}, nil
}

// Thumbprint es el kid: RFC 7638 SHA-256 de la JWK pública, base64url.
func Thumbprint(pub *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	tp, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("jwt: thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

// GenerateRSA genera una clave nueva (bits >= 2048).
func GenerateRSA(bits int) (*rsa.PrivateKey, error) {
	if bits < 2048 {
		bits = 2048
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

// EncodePrivatePEM serializa en PKCS#8.
func EncodePrivatePEM(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParsePrivatePEM acepta PKCS#8 ("PRIVATE KEY") o PKCS#1 ("RSA PRIVATE KEY").
func ParsePrivatePEM(b []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrBadKey)
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrBadKey)
		}
		return rk, nil
	default:
		return nil, fmt.Errorf("%w: PEM type %q", ErrBadKey, block.Type)
	}
}
