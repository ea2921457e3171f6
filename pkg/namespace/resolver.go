package namespace

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/cuemby/kvdoc/pkg/storage"
	"github.com/cuemby/kvdoc/pkg/types"
)

// SecretsCF is the global CF every collection's hashed secret is recorded
// in, keyed by internal CF name (and, for the legacy fallback, sometimes by
// the bare user-visible name too).
const SecretsCF = "secrets"

// secretLength is the length, in hex characters, of a freshly generated
// collection secret.
const secretLength = 32

// Resolver implements the namespace derivation and request-context
// attachment described for the API surface: it turns a user-visible
// collection name into the physical CF the rest of the stack operates on.
type Resolver struct {
	engine storage.Engine
}

// NewResolver builds a Resolver over engine.
func NewResolver(engine storage.Engine) *Resolver {
	return &Resolver{engine: engine}
}

// EnsureCFs creates the secrets CF if it doesn't already exist. The very
// first collection create writes into this CF, so callers must run this
// before serving any request, not lazily on first use.
func EnsureCFs(engine storage.Engine) error {
	exists, err := engine.CFExists(SecretsCF)
	if err != nil {
		return err
	}
	if !exists {
		return engine.CreateCF(SecretsCF)
	}
	return nil
}

// Middleware resolves the namespace Context for every /api/* request and
// attaches it before calling next. Requests outside /api/* pass through
// untouched.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		segs := splitPath(r.URL.Path)
		if len(segs) < 2 || segs[0] != "api" {
			next.ServeHTTP(w, r)
			return
		}

		userName := segs[1]
		headerSecret := r.Header.Get("X-SECRET-KEY")

		nsCtx := &Context{UserName: userName}

		switch {
		case r.Method == http.MethodPut && len(segs) == 2:
			secret := headerSecret
			if secret == "" {
				secret = generateSecret()
			}
			nsCtx.Secret = secret
			nsCtx.InternalName = deriveName(secret, userName)

		case res.hasLegacyRow(userName):
			nsCtx.InternalName = res.legacyInternalName(userName)

		case headerSecret != "":
			nsCtx.InternalName = deriveName(headerSecret, userName)

		default:
			nsCtx.InternalName = userName
		}

		next.ServeHTTP(w, withContext(r, nsCtx))
	})
}

// deriveName computes N + "-" + userName, where N is the first 8 hex
// characters of sha256(secret).
func deriveName(secret, userName string) string {
	sum := sha256.Sum256([]byte(secret))
	token := hex.EncodeToString(sum[:])[:8]
	return token + "-" + userName
}

// generateSecret returns a fresh random 32-character hex secret.
func generateSecret() string {
	buf := make([]byte, secretLength/2)
	if _, err := rand.Read(buf); err != nil {
		panic("namespace: failed to read random bytes: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// hasLegacyRow reports whether the secrets CF has a row keyed by the bare
// user-visible name, the legacy (pre-namespacing) lookup path.
func (res *Resolver) hasLegacyRow(userName string) bool {
	var rec types.SecretRecord
	return res.engine.GetCF(SecretsCF, userName, &rec) == nil
}

// legacyInternalName derives N from the stored hash's own prefix rather
// than from a client-supplied secret, the documented legacy fallback.
func (res *Resolver) legacyInternalName(userName string) string {
	var rec types.SecretRecord
	if err := res.engine.GetCF(SecretsCF, userName, &rec); err != nil {
		return userName
	}
	if len(rec.Secret) < 8 {
		return userName
	}
	return rec.Secret[:8] + "-" + userName
}

// splitPath trims leading/trailing slashes and splits on "/", dropping
// empty segments so "/api/users/" and "/api/users" parse identically.
func splitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
