package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/httpx"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

// ErrTokenExpired lets verifiers other than Firebase report expiry.
var ErrTokenExpired = errors.New("auth: firebase id token expired")

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns bearer tokens into an Identity on the request context.
type Authenticator struct {
	verifier  TokenVerifier
	roleClaim string
	timeout   time.Duration
}

type Option func(*Authenticator)

// WithRoleClaim names the custom claim holding roles. Defaults to "role".
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator accepts a nil verifier; bearer tokens are then refused while guest
// requests still pass.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, roleClaim: defaultRoleClaim, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authenticate verifies the Authorization header when present. Requests without one stay
// anonymous so guest carts work; a header that fails verification ends the request.
func (a *Authenticator) Authenticate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			identity, failure := a.identify(r.Context(), header)
			if failure != nil {
				httpx.WriteError(r.Context(), w, *failure)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func (a *Authenticator) identify(ctx context.Context, header string) (*Identity, *httpx.Error) {
	scheme, raw, _ := strings.Cut(header, " ")
	raw = strings.TrimSpace(raw)
	if !strings.EqualFold(scheme, "Bearer") || raw == "" {
		return nil, unauthorized("unauthenticated", "authorization header is not a bearer token")
	}
	if a == nil || a.verifier == nil {
		return nil, unauthorized("unauthenticated", "authorization service unavailable")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	token, err := a.verifier.VerifyIDToken(verifyCtx, raw)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenExpired) || firebaseauth.IsIDTokenExpired(err):
		return nil, unauthorized("token_expired", "firebase id token expired")
	default:
		return nil, unauthorized("invalid_token", "firebase id token verification failed")
	}

	roles := claimRoles(token.Claims[a.roleClaim])
	if len(roles) == 0 {
		roles = []string{RoleCustomer}
	}
	email, _ := token.Claims["email"].(string)
	return &Identity{UID: token.UID, Email: strings.TrimSpace(email), Roles: roles, token: token}, nil
}

// RequireRoles admits identities holding any of roles, or any identity when roles is empty.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			switch {
			case !ok:
				httpx.WriteError(r.Context(), w, *unauthorized("unauthenticated", "authentication required"))
			case len(roles) > 0 && !identity.HasAnyRole(roles...):
				httpx.WriteError(r.Context(), w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// claimRoles accepts "staff", ["staff","admin"] or {"staff": true}. Roles are normalised
// and deduplicated in claim order.
func claimRoles(claim any) []string {
	var raw []string
	switch v := claim.(type) {
	case string:
		raw = []string{v}
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case map[string]any:
		for role, enabled := range v {
			if on, _ := enabled.(bool); on {
				raw = append(raw, role)
			}
		}
		slices.Sort(raw)
	}

	var roles []string
	for _, role := range raw {
		if role = normaliseRole(role); role != "" && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return roles
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func unauthorized(code, message string) *httpx.Error {
	err := httpx.NewError(code, message, http.StatusUnauthorized)
	return &err
}
