package domain

// UserProfile represents the signed-in user decoded from a Supabase session
type UserProfile struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Provider      string `json:"provider,omitempty"`
}
