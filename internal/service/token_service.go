package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clinsync/air-submit-api/internal/models"
	"github.com/clinsync/air-submit-api/pkg/config"
	appErrors "github.com/clinsync/air-submit-api/pkg/errors"
)

// TokenService validates access tokens issued by the organisation's identity
// provider. This service never issues tokens itself.
type TokenService struct {
	cfg config.JWTConfig
}

// NewTokenService constructs the token service.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{cfg: cfg}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}
