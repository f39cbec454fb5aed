// Package encoding holds the reversible identity encodings used in the final
// redirect. They obfuscate the identity; authorization happens before.
package encoding

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mailgate/gate-service/internal/core/ports"
)

// Encoding names accepted by New.
const (
	KindBase64 = "base64"
	KindJWT    = "jwt"
)

var (
	ErrEmptyIdentity = errors.New("empty identity")
	ErrMalformed     = errors.New("malformed encoded identity")
)

// New returns the encoder named by kind. The JWT encoder requires secret.
func New(kind, secret string) (ports.IdentityEncoder, error) {
	switch kind {
	case "", KindBase64:
		return Base64Encoder{}, nil
	case KindJWT:
		return NewJWTEncoder(secret)
	default:
		return nil, fmt.Errorf("unknown identity encoding %q", kind)
	}
}

// Base64Encoder encodes identities as unpadded URL-safe base64.
type Base64Encoder struct{}

func (Base64Encoder) Encode(identity string) (string, error) {
	if identity == "" {
		return "", ErrEmptyIdentity
	}
	return base64.RawURLEncoding.EncodeToString([]byte(identity)), nil
}

func (Base64Encoder) Decode(encoded string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(b) == 0 {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(b), nil
}

// JWTEncoder wraps the identity as the subject of an HS256 token carrying no
// time claims, so the same identity always yields the same string and the
// destination can check it was minted by the gate.
type JWTEncoder struct {
	secret []byte
}

// NewJWTEncoder returns a JWTEncoder signing with secret.
func NewJWTEncoder(secret string) (*JWTEncoder, error) {
	if secret == "" {
		return nil, errors.New("jwt identity encoding requires a secret")
	}
	return &JWTEncoder{secret: []byte(secret)}, nil
}

func (e *JWTEncoder) Encode(identity string) (string, error) {
	if identity == "" {
		return "", ErrEmptyIdentity
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": identity})
	return t.SignedString(e.secret)
}

func (e *JWTEncoder) Decode(encoded string) (string, error) {
	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(encoded, claims, func(*jwt.Token) (interface{}, error) {
		return e.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return sub, nil
}
