package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// OAuthFlow drives the Google authorization-code + PKCE exchange and
// upserts the resulting user. Provider failures are logged by callers and
// degrade to the generic ErrOAuthFailed; provider error detail never
// reaches the client.
type OAuthFlow struct {
	svc         *Service
	cfg         *oauth2.Config
	userInfoURL string
	client      *http.Client
}

// OAuthFlowOption configures the flow.
type OAuthFlowOption func(*OAuthFlow)

// WithProviderEndpoints overrides the provider URLs (used by tests).
func WithProviderEndpoints(authURL, tokenURL, userInfoURL string) OAuthFlowOption {
	return func(f *OAuthFlow) {
		f.cfg.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
		f.userInfoURL = userInfoURL
	}
}

// WithHTTPClient overrides the client used for provider calls.
func WithHTTPClient(client *http.Client) OAuthFlowOption {
	return func(f *OAuthFlow) {
		if client != nil {
			f.client = client
		}
	}
}

// NewOAuthFlow builds a flow against Google's endpoints.
func NewOAuthFlow(svc *Service, clientID, clientSecret, redirectURL string, opts ...OAuthFlowOption) *OAuthFlow {
	f := &OAuthFlow{
		svc: svc,
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		},
		userInfoURL: defaultUserInfoURL,
		// Provider calls must not hang the request.
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Authorization is the state a caller must hold between redirect and
// callback (stored in short-lived cookies by the HTTP layer).
type Authorization struct {
	URL          string
	State        string
	CodeVerifier string
}

// Begin generates an unguessable state and a PKCE verifier and builds the
// provider authorization URL.
func (f *OAuthFlow) Begin() (Authorization, error) {
	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		return Authorization{}, fmt.Errorf("generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(stateBytes)
	verifier := oauth2.GenerateVerifier()
	url := f.cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	return Authorization{URL: url, State: state, CodeVerifier: verifier}, nil
}

// LoginResult is what a completed authorization yields.
type LoginResult struct {
	Tokens TokenPair
	User   User
}

// Complete validates the returned state, exchanges code+verifier for a
// provider token, fetches the provider's user info, upserts the user and
// issues a first-party token pair. State mismatch (or a missing stored
// value) is ErrStateMismatch; everything else collapses to ErrOAuthFailed.
func (f *OAuthFlow) Complete(ctx context.Context, code, state, storedState, verifier string) (LoginResult, error) {
	if storedState == "" || verifier == "" || state != storedState {
		return LoginResult{}, ErrStateMismatch
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	tok, err := f.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: code exchange: %v", ErrOAuthFailed, err)
	}

	info, err := f.fetchUserInfo(ctx, tok.AccessToken)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: userinfo: %v", ErrOAuthFailed, err)
	}

	user, err := f.svc.store.UpsertOAuthUser(ctx, "google", info.Sub, info.Email, info.Name, DefaultUserRole)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: upsert user: %v", ErrOAuthFailed, err)
	}

	pair, user, err := f.svc.issueFirstPartyPair(ctx, user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: issue tokens: %v", ErrOAuthFailed, err)
	}
	return LoginResult{Tokens: pair, User: user}, nil
}

type providerUserInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (f *OAuthFlow) fetchUserInfo(ctx context.Context, accessToken string) (providerUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.userInfoURL, nil)
	if err != nil {
		return providerUserInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return providerUserInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providerUserInfo{}, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var info providerUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return providerUserInfo{}, err
	}
	if strings.TrimSpace(info.Sub) == "" {
		return providerUserInfo{}, fmt.Errorf("userinfo missing subject")
	}
	return info, nil
}
