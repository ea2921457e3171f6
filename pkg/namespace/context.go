package namespace

import (
	"context"
	"net/http"
)

// Context is what the resolver attaches to every /api/* request: the
// physical CF to operate on, the user-visible name the client asked for,
// and — only for a collection-creation request — the plaintext secret the
// collection is created under (the one supplied in the request header, or
// a freshly generated one), which the handler echoes back exactly once.
type Context struct {
	InternalName string
	UserName     string
	Secret       string
}

type contextKey struct{}

// FromContext retrieves the Context a Resolver attached to r's context, if
// any.
func FromContext(ctx context.Context) (*Context, bool) {
	nsCtx, ok := ctx.Value(contextKey{}).(*Context)
	return nsCtx, ok
}

// FromRequest is a convenience wrapper around FromContext.
func FromRequest(r *http.Request) (*Context, bool) {
	return FromContext(r.Context())
}

func withContext(r *http.Request, nsCtx *Context) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), contextKey{}, nsCtx))
}
