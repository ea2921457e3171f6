package namespace

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/cuemby/kvdoc/pkg/httpkit"
	"github.com/cuemby/kvdoc/pkg/storage"
	"github.com/cuemby/kvdoc/pkg/types"
)

// AuthGate enforces admin-token or per-collection-secret authentication on
// /api/* requests. It must run after Resolver.Middleware, since it reads
// the Context the resolver attached to pick the internal CF to check a
// secret against.
type AuthGate struct {
	engine     storage.Engine
	adminToken string
}

// NewAuthGate builds an AuthGate checking against adminToken and engine's
// secrets CF.
func NewAuthGate(engine storage.Engine, adminToken string) *AuthGate {
	return &AuthGate{engine: engine, adminToken: adminToken}
}

// Middleware admits a request if it is collection creation (its own
// bootstrap), or if the admin token header matches, or if the per-collection
// secret header hashes to the value on record. Everything else is 401.
func (g *AuthGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		segs := splitPath(r.URL.Path)
		if len(segs) < 2 || segs[0] != "api" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Method == http.MethodPut && len(segs) == 2 {
			next.ServeHTTP(w, r)
			return
		}

		if adminHeader := r.Header.Get("X-ADMIN-TOKEN"); adminHeader != "" {
			if constantTimeEqual(adminHeader, g.adminToken) {
				next.ServeHTTP(w, r)
				return
			}
		}

		if nsCtx, ok := FromRequest(r); ok {
			if secretHeader := r.Header.Get("X-SECRET-KEY"); secretHeader != "" {
				var rec types.SecretRecord
				if err := g.engine.GetCF(SecretsCF, nsCtx.InternalName, &rec); err == nil {
					if constantTimeEqual(hashSecret(secretHeader), rec.Secret) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
		}

		httpkit.WriteError(w, http.StatusUnauthorized, "unauthorized")
	})
}

// hashSecret hex-encodes sha256(secret), the same digest stored in
// SecretRecord.Secret.
func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// HashSecret is the exported form of hashSecret, used by the collection
// create handler to persist the digest the resolver and AuthGate expect to
// read back.
func HashSecret(secret string) string {
	return hashSecret(secret)
}

// constantTimeEqual compares two strings in constant time regardless of
// length, to avoid leaking secret length or prefix via timing.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
