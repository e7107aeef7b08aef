package server

// HTTPError is the JSON error body every endpoint returns on failure.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest is the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest is the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries the issued JWT.
type TokenResponse struct {
	Token string `json:"token"`
}

// TranslateRequest is the body of both translate endpoints.
type TranslateRequest struct {
	Reference  string `json:"reference"`
	HebrewText string `json:"hebrewText"`
}

// SearchRequest is the body of the text search endpoint.
type SearchRequest struct {
	Query   string            `json:"query"`
	Filters map[string]string `json:"filters,omitempty"`
}

// NavigateRequest names a reference for navigation operations.
type NavigateRequest struct {
	Reference string `json:"reference"`
	ParentRef string `json:"parent_ref,omitempty"`
}

// ExpandCommentaryRequest opens one commentary under a section.
type ExpandCommentaryRequest struct {
	SectionRef    string `json:"section_ref"`
	CommentaryRef string `json:"commentary_ref"`
}
