/*
Package namespace implements kvdoc's tenant namespacing and authentication
layer: turning a user-visible collection name into the physical CF the
storage facade operates on, and gating every /api/* request.

# Architecture

	┌──────────────── REQUEST PIPELINE ─────────────────────────┐
	│                                                             │
	│  Resolver.Middleware                                        │
	│    - extracts U from the path                                │
	│    - PUT /api/{U} (create)   → fresh or header secret        │
	│    - secrets[U] row (legacy) → stored hash's own prefix      │
	│    - header secret present  → derive N from it               │
	│    - otherwise              → U verbatim (likely 404s)       │
	│    attaches *Context{InternalName, UserName, Secret}         │
	│                          │                                    │
	│                          ▼                                    │
	│  AuthGate.Middleware                                          │
	│    - creation bootstrap passes unauthenticated                │
	│    - X-ADMIN-TOKEN match → admit                              │
	│    - X-SECRET-KEY hashes to secrets[InternalName] → admit     │
	│    - else 401                                                 │
	└─────────────────────────────────────────────────────────────┘

The legacy lookup (a secrets row keyed directly by U rather than by an
internal name) intentionally coexists with and can shadow the namespaced
scheme; this is a known quirk carried as-is rather than redesigned. See
DESIGN.md.
*/
package namespace
