package auth

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/credential"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/db"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/logger"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

const (
	selectorBytes = 16
	secretBytes   = 32
)

// Service implements login / refresh / revoke / revoke_all over the User
// and RefreshToken repositories.
type Service struct {
	users         db.UserRepo
	refreshTokens db.RefreshTokenRepo
	hasher        *credential.Hasher
	jwt           *JWTManager
	refreshTTL    time.Duration
}

// NewService builds a Service.
func NewService(users db.UserRepo, refreshTokens db.RefreshTokenRepo, hasher *credential.Hasher, jwt *JWTManager, refreshTTL time.Duration) *Service {
	return &Service{
		users:         users,
		refreshTokens: refreshTokens,
		hasher:        hasher,
		jwt:           jwt,
		refreshTTL:    refreshTTL,
	}
}

// Login verifies username/password and mints a fresh access/refresh pair.
func (s *Service) Login(ctx context.Context, username, password string) (*models.TokenPairResponse, error) {
	user, err := s.users.FindUserByName(ctx, username)
	if err != nil || !user.Active {
		return nil, apperrors.InvalidCredential("invalid username or password")
	}
	if !s.hasher.VerifyToken(password, user.PasswordHash) {
		return nil, apperrors.InvalidCredential("invalid username or password")
	}
	return s.mintPair(ctx, user)
}

// Refresh rotates presented (selector.secret) for a fresh pair. On
// secret mismatch it treats the presentation as theft/reuse: every
// refresh token belonging to the token's user is invalidated.
func (s *Service) Refresh(ctx context.Context, presented string) (*models.TokenPairResponse, error) {
	selector, secret, ok := splitPresentedToken(presented)
	if !ok {
		return nil, apperrors.MalformedToken()
	}

	rt, err := s.refreshTokens.FindRefreshTokenBySelector(ctx, selector)
	if err != nil {
		return nil, apperrors.Unknown()
	}

	if !s.hasher.VerifyToken(secret, rt.VerifierHash) {
		logger.Security().Warn().Int64("user_id", rt.UserID).Msg("refresh token reuse detected, revoking all sessions")
		if revokeErr := s.refreshTokens.DestroyRefreshTokensByUser(ctx, rt.UserID); revokeErr != nil {
			return nil, revokeErr
		}
		return nil, apperrors.ReuseDetected()
	}

	if time.Now().After(rt.ExpiresAt) {
		_ = s.refreshTokens.DestroyRefreshTokenBySelector(ctx, selector)
		return nil, apperrors.TokenExpired()
	}

	if err := s.refreshTokens.DestroyRefreshTokenBySelector(ctx, selector); err != nil {
		return nil, err
	}

	user, err := s.users.FindUserByID(ctx, rt.UserID)
	if err != nil || !user.Active {
		return nil, apperrors.InvalidCredential("user no longer active")
	}

	return s.mintPair(ctx, user)
}

// Revoke destroys the refresh token presented, returning true iff it
// matched a live row. A mismatched secret does not cascade — the
// presented token never authenticated, so nothing is revoked.
func (s *Service) Revoke(ctx context.Context, presented string) (bool, error) {
	selector, secret, ok := splitPresentedToken(presented)
	if !ok {
		return false, nil
	}

	rt, err := s.refreshTokens.FindRefreshTokenBySelector(ctx, selector)
	if err != nil {
		return false, nil
	}

	if !s.hasher.VerifyToken(secret, rt.VerifierHash) {
		return false, nil
	}

	if err := s.refreshTokens.DestroyRefreshTokenBySelector(ctx, selector); err != nil {
		return false, err
	}
	return true, nil
}

// RevokeAll unconditionally destroys every refresh token belonging to
// userID. Invoked on password change or reuse detection.
func (s *Service) RevokeAll(ctx context.Context, userID int64) error {
	return s.refreshTokens.DestroyRefreshTokensByUser(ctx, userID)
}

// RefreshTTL reports the refresh-token lifetime, used by the HTTP layer
// to set the refresh_token cookie's max age.
func (s *Service) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// CurrentUser looks up the authenticated user for GET /auth/me.
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.users.FindUserByID(ctx, userID)
}

// mintPair issues a fresh access token and a fresh selector/secret
// refresh token, persisting the latter's hash.
func (s *Service) mintPair(ctx context.Context, user *models.User) (*models.TokenPairResponse, error) {
	accessToken, expiresAt, err := s.jwt.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}

	selectorRaw, err := s.hasher.GenerateSecret(selectorBytes)
	if err != nil {
		return nil, err
	}
	secretRaw, err := s.hasher.GenerateSecret(secretBytes)
	if err != nil {
		return nil, err
	}
	selector := hex.EncodeToString(selectorRaw)
	secret := hex.EncodeToString(secretRaw)

	verifierHash, err := s.hasher.HashToken(secret)
	if err != nil {
		return nil, err
	}

	if _, err := s.refreshTokens.CreateRefreshToken(ctx, user.UserID, selector, verifierHash, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}

	return &models.TokenPairResponse{
		AccessToken:  accessToken,
		RefreshToken: selector + "." + secret,
		ExpiresIn:    int64(time.Until(expiresAt).Seconds()),
	}, nil
}

// splitPresentedToken splits "selector.secret" into its two non-empty
// parts. Any other shape is malformed.
func splitPresentedToken(presented string) (selector, secret string, ok bool) {
	parts := strings.SplitN(presented, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
