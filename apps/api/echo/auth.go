package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/session"
)

const identityTokenKey = "identityToken"

// Claims are the identity claims carried by a token of the identity provider.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

func (c Claims) Identity() session.Identity {
	return session.Identity{ID: c.Subject, Email: c.Email, DisplayName: c.Name}
}

// NewClaims returns the claims of a token for ident, valid for conf.TokenTTL.
func NewClaims(ident session.Identity, conf core.IdentityConfig) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.Issuer,
			Subject:   ident.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(conf.TokenTTL).Unix(),
		},
		Email: ident.Email,
		Name:  ident.DisplayName,
	}
}

// GenerateToken signs claims with HS256.
func GenerateToken(claims *Claims, signingKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(signingKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func newJWTConfig(conf core.IdentityConfig) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SigningKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    identityTokenKey,
		Claims:        new(Claims),
	}
}

// contextIdentity returns the identity of the verified token, checking the issuer when one is configured.
func contextIdentity(ctx echo.Context, conf core.IdentityConfig) (session.Identity, error) {
	token, ok := ctx.Get(identityTokenKey).(*jwt.Token)
	if !ok {
		return session.Identity{}, errUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return session.Identity{}, errUnauthorized
	}
	if conf.Issuer != "" && !claims.VerifyIssuer(conf.Issuer, true) {
		return session.Identity{}, errUnauthorized
	}
	return claims.Identity(), nil
}
