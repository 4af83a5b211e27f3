package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/questforge/questgraph/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

type credential struct {
	user, pass string
	role       Role
}

// authConfig holds the accepted credentials, editor first. A nil or empty
// config disables authentication.
type authConfig struct {
	creds []credential
}

var auth *authConfig

// newAuthConfig keeps the pairs that have both a user and a password.
// Without an editor pair authentication stays disabled, viewer or not.
func newAuthConfig(editorUser, editorPass, viewerUser, viewerPass string) *authConfig {
	if editorUser == "" || editorPass == "" {
		return &authConfig{}
	}
	c := &authConfig{creds: []credential{{editorUser, editorPass, RoleEditor}}}
	if viewerUser != "" && viewerPass != "" {
		c.creds = append(c.creds, credential{viewerUser, viewerPass, RoleViewer})
	}
	return c
}

// InitAuth loads credentials from QUESTGRAPH_EDITOR_USER/PASS and
// QUESTGRAPH_VIEWER_USER/PASS, honouring the *_FILE convention.
func InitAuth() error {
	values, err := config.ResolveSecrets(
		"QUESTGRAPH_EDITOR_USER",
		"QUESTGRAPH_EDITOR_PASS",
		"QUESTGRAPH_VIEWER_USER",
		"QUESTGRAPH_VIEWER_PASS",
	)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	auth = newAuthConfig(
		values["QUESTGRAPH_EDITOR_USER"], values["QUESTGRAPH_EDITOR_PASS"],
		values["QUESTGRAPH_VIEWER_USER"], values["QUESTGRAPH_VIEWER_PASS"],
	)
	return nil
}

func IsAuthEnabled() bool {
	return auth != nil && len(auth.creds) > 0
}

// authenticate returns the caller's role, or "" when the credentials are
// missing or wrong. With authentication disabled everyone is an editor.
func authenticate(r *http.Request) Role {
	if !IsAuthEnabled() {
		return RoleEditor
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	for _, c := range auth.creds {
		// Compare both fields every time so timing doesn't reveal which one matched.
		userOK := secureCompare(user, c.user)
		passOK := secureCompare(pass, c.pass)
		if userOK && passOK {
			return c.role
		}
	}
	return ""
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RequireRole wraps a handler and admits only the given roles: 401 without
// valid credentials, 403 for a known user lacking the role.
func RequireRole(handler http.HandlerFunc, allowed ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="questgraph"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		for _, a := range allowed {
			if role == a {
				handler(w, r)
				return
			}
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireViewer admits editors and viewers.
func RequireViewer(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleEditor, RoleViewer)
}

// RequireEditor admits editors only. Every mutating route uses it.
func RequireEditor(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleEditor)
}
