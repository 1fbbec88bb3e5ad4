package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Auth modes, selected at boot. The rest of the system only ever sees a
// resolved Principal, never the mechanism that produced it.
const (
	ModeNone          = "none"
	ModeBearer        = "bearer"
	ModeTrustedHeader = "trusted_header"
)

var (
	ErrUnauthenticated  = errors.New("missing or invalid credentials")
	ErrPermissionDenied = errors.New("permission denied")
)

// Principal is the authenticated caller of a request.
type Principal struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// Resolver turns an incoming request into a Principal according to the
// configured auth mode.
type Resolver struct {
	mode       string
	apiToken   string
	adminToken string
}

// NewResolver creates a resolver. Unknown modes fall back to bearer, the
// strictest option.
func NewResolver(mode, apiToken, adminToken string) *Resolver {
	switch mode {
	case ModeNone, ModeBearer, ModeTrustedHeader:
	default:
		mode = ModeBearer
	}
	return &Resolver{mode: mode, apiToken: apiToken, adminToken: adminToken}
}

// Resolve returns the caller's principal or ErrUnauthenticated.
func (r *Resolver) Resolve(req *http.Request) (Principal, error) {
	switch r.mode {
	case ModeNone:
		// Dev mode: every caller is an admin.
		return Principal{Name: "anonymous", Admin: true}, nil

	case ModeTrustedHeader:
		name := req.Header.Get("X-Arre-Principal")
		if name == "" {
			return Principal{}, ErrUnauthenticated
		}
		admin := strings.EqualFold(req.Header.Get("X-Arre-Admin"), "true")
		return Principal{Name: name, Admin: admin}, nil

	default: // bearer
		header := req.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return Principal{}, ErrUnauthenticated
		}
		if r.adminToken != "" && token == r.adminToken {
			return Principal{Name: "admin-token", Admin: true}, nil
		}
		if r.apiToken != "" && token == r.apiToken {
			return Principal{Name: "api-token", Admin: false}, nil
		}
		return Principal{}, ErrUnauthenticated
	}
}

// RequireAdmin returns ErrPermissionDenied when the principal lacks the
// admin capability.
func RequireAdmin(p Principal) error {
	if !p.Admin {
		return ErrPermissionDenied
	}
	return nil
}
