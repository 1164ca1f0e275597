package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rianhasansiam/digicam/internal/models"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the resolved caller of a request.
type Identity struct {
	ID   string
	Role models.Role
}

// TokenVerifier resolves a bearer token to an identity. The real
// authentication provider lives outside this service; this interface is the
// seam it plugs into.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// StaticVerifier verifies the support-team token against a bcrypt hash from
// configuration. Tokens that don't match resolve to no identity rather than
// an error, so the request falls through to user/guest resolution.
type StaticVerifier struct {
	adminHash []byte
}

// NewStaticVerifier creates a verifier from the configured bcrypt hash.
// An empty hash disables admin resolution entirely.
func NewStaticVerifier(adminTokenHash string) *StaticVerifier {
	return &StaticVerifier{adminHash: []byte(adminTokenHash)}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if len(v.adminHash) == 0 || token == "" {
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword(v.adminHash, []byte(token)); err != nil {
		return nil, nil
	}
	return &Identity{ID: "admin", Role: models.RoleAdmin}, nil
}

// Auth resolves the caller's identity on every request. It never rejects;
// role checks happen per-handler because most chat endpoints are open to
// guests.
type Auth struct {
	verifier TokenVerifier
}

// NewAuth creates the identity-resolving middleware.
func NewAuth(verifier TokenVerifier) *Auth {
	return &Auth{verifier: verifier}
}

// Resolve attaches the caller's identity to the request context. Resolution
// order: admin bearer token, then the storefront-asserted X-User-Id header
// (the upstream gateway authenticates it), then guest.
func (a *Auth) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := &Identity{Role: models.RoleGuest}

		if token := bearerToken(r); token != "" && a.verifier != nil {
			if id, err := a.verifier.Verify(r.Context(), token); err == nil && id != nil {
				identity = id
			}
		}
		if identity.Role != models.RoleAdmin {
			if userID := r.Header.Get("X-User-Id"); userID != "" {
				identity = &Identity{ID: userID, Role: models.RoleUser}
			}
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects requests whose resolved identity is not an admin.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		if identity == nil || identity.Role != models.RoleAdmin {
			jsonError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext retrieves the resolved identity from the request context.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
