// internal/service/auth/auth.go
package auth

import (
	"context"
	"fmt"

	xerrors "vowlist-service/internal/pkg/errors"
	"vowlist-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

// TokenVerifier checks signature, issuer, audience and purpose of a bearer token.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

type TokenBlacklist interface {
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

// AuthService validates tokens minted by the external auth service. Sign-up,
// login and session issuance live there.
type AuthService struct {
	verifier  TokenVerifier
	blacklist TokenBlacklist
	logger    *zap.Logger
}

func NewAuthService(verifier TokenVerifier, blacklist TokenBlacklist, logger *zap.Logger) *AuthService {
	return &AuthService{
		verifier:  verifier,
		blacklist: blacklist,
		logger:    logger,
	}
}

// ValidateToken validates a JWT token and checks it has not been revoked
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := s.verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", xerrors.ErrUnauthorized)
	}

	blacklisted, err := s.blacklist.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		s.logger.Error("failed to check token blacklist",
			zap.Int64("identity_id", claims.IdentityID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to check blacklist: %w", err)
	}
	if blacklisted {
		return nil, fmt.Errorf("token has been revoked: %w", xerrors.ErrSessionExpired)
	}

	return claims, nil
}
