package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stash-api/internal/config"
	"stash-api/internal/domain"
	"stash-api/pkg/logger"
)

// supabaseUser is the subset of the /auth/v1/user response we read
type supabaseUser struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	EmailConfirmedAt *string                `json:"email_confirmed_at"`
	AppMetadata      map[string]interface{} `json:"app_metadata"`
	UserMetadata     map[string]interface{} `json:"user_metadata"`
}

// SupabaseClient talks to the Supabase auth API
type SupabaseClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewSupabaseClient creates a new Supabase client
func NewSupabaseClient(cfg *config.Config, logger *logger.Logger) *SupabaseClient {
	return &SupabaseClient{
		baseURL: strings.TrimRight(cfg.SupabaseURL, "/"),
		anonKey: cfg.SupabaseAnonKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Configured reports whether a project URL and anon key are set
func (s *SupabaseClient) Configured() bool {
	return s.baseURL != "" && s.anonKey != ""
}

// GetUser resolves an access token to the signed-in user
func (s *SupabaseClient) GetUser(ctx context.Context, accessToken string) (*domain.UserProfile, error) {
	url := fmt.Sprintf("%s/auth/v1/user", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Supabase auth: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Supabase auth returned status %d: %s", resp.StatusCode, string(body))
	}

	var user supabaseUser
	if err := json.Unmarshal(body, &user); err != nil {
		s.logger.WithFields(map[string]interface{}{
			"response_body": string(body),
			"status_code":   resp.StatusCode,
		}).Error("Failed to parse Supabase response")
		return nil, fmt.Errorf("failed to parse Supabase response: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("Supabase auth returned no user id")
	}

	profile := &domain.UserProfile{
		Sub:           user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailConfirmedAt != nil,
		Name:          metaString(user.UserMetadata, "full_name", "name"),
		GivenName:     metaString(user.UserMetadata, "given_name"),
		FamilyName:    metaString(user.UserMetadata, "family_name"),
		Picture:       metaString(user.UserMetadata, "avatar_url", "picture"),
		Provider:      metaString(user.AppMetadata, "provider"),
	}

	s.logger.WithField("user_id", profile.Sub).Debug("Resolved Supabase user")
	return profile, nil
}

// metaString returns the first non-empty string among keys
func metaString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if val, ok := m[key].(string); ok && val != "" {
			return val
		}
	}
	return ""
}
