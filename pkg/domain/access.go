package domain

import (
	"sort"
	"strings"
)

// AccessAction is the capability a caller needs for the operation in flight.
type AccessAction string

// Capabilities checked against permission records.
const (
	AccessRead   AccessAction = "read"
	AccessCreate AccessAction = "create"
	AccessUpdate AccessAction = "update"
	AccessDelete AccessAction = "delete"
	AccessAdmin  AccessAction = "admin"
)

// AdminScope is the claim scope whose __admin role bypasses all filtering.
const AdminScope = "realm_access"

// DefaultToken is the implicit token every authenticated caller holds on the
// read path. It is never used to generate permission rows.
const DefaultToken = "default"

// ActionForVerb maps an HTTP verb to the capability it requires. Unknown
// verbs map to the empty action, which matches no permission flag.
func ActionForVerb(verb string) AccessAction {
	switch strings.ToUpper(verb) {
	case "GET":
		return AccessRead
	case "POST":
		return AccessCreate
	case "PUT", "PATCH":
		return AccessUpdate
	case "DELETE":
		return AccessDelete
	}
	return ""
}

// ActionForRoute maps a verb and path to a capability. Paths under an admin
// prefix require the admin capability regardless of verb.
func ActionForRoute(verb, path string) AccessAction {
	if strings.HasPrefix(path, "/admin") {
		return AccessAdmin
	}
	return ActionForVerb(verb)
}

// Claims carries the verified scope-to-roles mapping extracted from a
// caller's token. Token verification happens upstream; the domain only
// consumes the decoded mapping.
type Claims struct {
	Scopes map[string][]string `json:"scopes"`
}

// Tokens derives the permission tokens for the claims: one "<scope>.<role>"
// per role carrying the double-underscore prefix. Roles without the prefix
// never become tokens. The result is sorted for deterministic permission
// generation.
func (c Claims) Tokens() []string {
	var tokens []string
	for scope, roles := range c.Scopes {
		if scope == "" {
			continue
		}
		for _, role := range roles {
			if strings.HasPrefix(role, "__") {
				tokens = append(tokens, scope+"."+role)
			}
		}
	}
	sort.Strings(tokens)
	return tokens
}

// IsAdmin reports whether the claims carry the admin token.
func (c Claims) IsAdmin() bool {
	for _, role := range c.Scopes[AdminScope] {
		if role == "__admin" {
			return true
		}
	}
	return false
}

// PermissionName derives the display name for a token: the admin scope
// prefix is stripped when present, then one leading role prefix. Tokens from
// other scopes keep the scope in the name.
func PermissionName(token string) string {
	name := strings.Replace(token, AdminScope+".__", "", 1)
	return strings.TrimPrefix(name, "__")
}

// AccessContext describes the caller of a guarded operation. A nil context
// marks an internal caller and disables filtering entirely. A context with
// nil Claims marks an unauthenticated caller, which reads without filtering
// and never receives generated permission rows.
type AccessContext struct {
	Claims *Claims
	Action AccessAction

	disabled bool
}

// DisableNextFilter suppresses filtering for the next guarded read. The flag
// resets as soon as it is consumed.
func (a *AccessContext) DisableNextFilter() {
	a.disabled = true
}

// ConsumeDisabled reports and clears the one-shot disable flag.
func (a *AccessContext) ConsumeDisabled() bool {
	if a == nil {
		return false
	}
	d := a.disabled
	a.disabled = false
	return d
}

// Bypasses reports whether the context skips filtering outright: internal
// callers, unauthenticated callers, and admins all see every record.
func (a *AccessContext) Bypasses() bool {
	if a == nil || a.Claims == nil {
		return true
	}
	return a.Claims.IsAdmin()
}

// Tokens returns the caller's permission tokens, or nil for internal and
// unauthenticated callers.
func (a *AccessContext) Tokens() []string {
	if a == nil || a.Claims == nil {
		return nil
	}
	return a.Claims.Tokens()
}

// FilterTokens returns the tokens used for visibility checks: the caller's
// permission tokens plus the implicit default token. Internal and
// unauthenticated callers have none.
func (a *AccessContext) FilterTokens() []string {
	if a == nil || a.Claims == nil {
		return nil
	}
	return append(a.Claims.Tokens(), DefaultToken)
}
