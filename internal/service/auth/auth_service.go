package auth

import (
	"context"
	"fmt"
	"strings"

	"stash-api/internal/domain"
	"stash-api/internal/service"
	"stash-api/pkg/errors"
	"stash-api/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// UserLookup resolves an access token against the identity provider
type UserLookup interface {
	GetUser(ctx context.Context, accessToken string) (*domain.UserProfile, error)
}

// Service implements the AuthService interface
type Service struct {
	jwtSecret []byte
	users     UserLookup
	logger    *logger.Logger
}

// NewService creates a new auth service. Tokens are verified locally when a
// JWT secret is set, otherwise against users. Either may be empty.
func NewService(jwtSecret string, users UserLookup, logger *logger.Logger) service.AuthService {
	s := &Service{
		users:  users,
		logger: logger.Named("auth"),
	}
	if jwtSecret != "" {
		s.jwtSecret = []byte(jwtSecret)
	}
	return s
}

// ValidateToken verifies a Supabase access token and returns its user
func (s *Service) ValidateToken(ctx context.Context, token string) (*domain.UserProfile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.NewAuthenticationError("Missing access token")
	}

	if isJWTToken(token) && s.jwtSecret != nil {
		return s.validateSupabaseJWT(token)
	}

	if s.users != nil {
		profile, err := s.users.GetUser(ctx, token)
		if err != nil {
			s.logger.WithError(err).Debug("Supabase user lookup failed")
			return nil, errors.NewAuthenticationError("Invalid or expired session")
		}
		return profile, nil
	}

	s.logger.Error("No token validation configured")
	return nil, errors.NewAuthenticationError("Authentication not configured")
}

// validateSupabaseJWT verifies the signature and expiry of a Supabase JWT
func (s *Service) validateSupabaseJWT(tokenString string) (*domain.UserProfile, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		s.logger.WithError(err).Debug("Failed to parse/validate JWT token")
		return nil, errors.NewAuthenticationError("Invalid JWT token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.NewAuthenticationError("Invalid JWT token")
	}

	profile := &domain.UserProfile{
		Sub:   getStringValue(claims, "sub"),
		Email: getStringValue(claims, "email"),
	}

	if userMeta, ok := claims["user_metadata"].(map[string]interface{}); ok {
		profile.Name = getStringValue(userMeta, "full_name")
		if profile.Name == "" {
			profile.Name = getStringValue(userMeta, "name")
		}
		profile.Picture = getStringValue(userMeta, "avatar_url")
		profile.GivenName = getStringValue(userMeta, "given_name")
		profile.FamilyName = getStringValue(userMeta, "family_name")
		profile.EmailVerified = getBoolValue(userMeta, "email_verified")
	}
	if appMeta, ok := claims["app_metadata"].(map[string]interface{}); ok {
		profile.Provider = getStringValue(appMeta, "provider")
	}

	// The anon key is signed with the same secret but carries no subject
	if profile.Sub == "" {
		s.logger.Debug("JWT token has no subject")
		return nil, errors.NewAuthenticationError("Invalid JWT token: no user identifier")
	}

	s.logger.WithField("user_id", profile.Sub).Debug("Supabase JWT token validated successfully")
	return profile, nil
}

func isJWTToken(token string) bool {
	return strings.Count(token, ".") == 2
}

// Helper functions to safely extract values from claim maps
func getStringValue(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

func getBoolValue(m map[string]interface{}, key string) bool {
	if val, ok := m[key].(bool); ok {
		return val
	}
	return false
}
