package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

// Claims JWT令牌声明
type Claims struct {
	UserID string `json:"userId"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenConfig holds signing secrets and lifetimes. Access and refresh
// tokens are signed with different secrets.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// TokenPair is what register and login hand out.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenIssuer mints and verifies HS256 tokens.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokenIssuer(cfg TokenConfig) *TokenIssuer {
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

func (t *TokenIssuer) IssueAccess(userID string) (string, error) {
	return t.sign(userID, TokenTypeAccess, t.cfg.AccessSecret, t.cfg.AccessExpiry)
}

func (t *TokenIssuer) IssueRefresh(userID string) (string, error) {
	return t.sign(userID, TokenTypeRefresh, t.cfg.RefreshSecret, t.cfg.RefreshExpiry)
}

func (t *TokenIssuer) IssuePair(userID string) (TokenPair, error) {
	access, err := t.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.IssueRefresh(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *TokenIssuer) ParseAccess(token string) (*Claims, error) {
	return t.parse(token, TokenTypeAccess, t.cfg.AccessSecret)
}

func (t *TokenIssuer) ParseRefresh(token string) (*Claims, error) {
	return t.parse(token, TokenTypeRefresh, t.cfg.RefreshSecret)
}

// RefreshExpiry is used for the refresh cookie lifetime.
func (t *TokenIssuer) RefreshExpiry() time.Duration {
	return t.cfg.RefreshExpiry
}

func (t *TokenIssuer) sign(userID, typ, secret string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		UserID: userID,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (t *TokenIssuer) parse(raw, typ, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !token.Valid || claims.Type != typ || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
