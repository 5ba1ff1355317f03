package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

// TokenService validates the HS256 access tokens issued by the account
// service. It never issues tokens itself.
type TokenService struct {
	secretKey []byte

	// Issuer, when set, must match the iss claim.
	Issuer string
	// Leeway tolerates clock skew on exp/nbf.
	Leeway time.Duration
}

// JWTClaims represents the claims in our JWT tokens
type JWTClaims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// User is the authenticated caller stored on the request context.
type User struct {
	ID    int64
	Email string
}

func NewTokenService(secretKey string) *TokenService {
	return &TokenService{
		secretKey: []byte(secretKey),
		Leeway:    30 * time.Second,
	}
}

// ValidateAccessToken parses and verifies a JWT access token and returns the user
func (ts *TokenService) ValidateAccessToken(tokenString string) (*User, error) {
	if len(ts.secretKey) == 0 {
		return nil, ErrMissingSecret
	}
	claims, err := ts.parseTokenClaims(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	return &User{ID: claims.UserID, Email: claims.Email}, nil
}

func (ts *TokenService) parseTokenClaims(tokenString string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(ts.Leeway),
	}
	if ts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrInvalidToken)
	}
	return claims, nil
}
