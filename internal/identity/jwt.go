package identity

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access token payload issued by the platform's auth service.
type Claims struct {
	UserID int64 `json:"user_id"`
	// Active is absent on tokens issued before account deactivation existed; absent means active.
	Active *bool `json:"active,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider validates HS256 access tokens locally.
type JWTProvider struct {
	secret []byte
	issuer string
}

// NewJWTProvider constructs a JWTProvider. An empty issuer accepts any issuer.
func NewJWTProvider(secret, issuer string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), issuer: issuer}
}

// Authenticate parses and verifies token.
func (p *JWTProvider) Authenticate(_ context.Context, token string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidCredential
	}

	userID := claims.UserID
	if userID == 0 && claims.Subject != "" {
		userID, err = strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return Identity{}, ErrInvalidCredential
		}
	}
	if userID <= 0 {
		return Identity{}, ErrInvalidCredential
	}

	return Identity{UserID: userID, Active: claims.Active == nil || *claims.Active}, nil
}

// Issue signs a token for userID. It is used by tests and local tooling.
func (p *JWTProvider) Issue(userID int64, active bool, ttl time.Duration) (string, error) {
	if len(p.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Active: &active,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
