// Package authz decides whether a resolved principal may proceed.
//
// Decisions are plain values. Nothing here touches the store, so every
// check is deterministic given a principal snapshot.
package authz

import (
	"strings"
)

// Principal is the resolved identity a request acts as.
type Principal struct {
	UserID      uint     `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	IsActive    bool     `json:"is_active"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the principal holds the named permission.
func (p *Principal) HasPermission(name string) bool {
	if p == nil {
		return false
	}
	return contains(p.Permissions, normalize(name))
}

// HasRole reports whether the principal holds the named role.
func (p *Principal) HasRole(name string) bool {
	if p == nil {
		return false
	}
	return contains(p.Roles, normalize(name))
}

type Reason string

const (
	ReasonGranted                 Reason = "granted"
	ReasonUnauthenticated         Reason = "unauthenticated"
	ReasonInsufficientPermissions Reason = "insufficient_permissions"
	ReasonInsufficientRole        Reason = "insufficient_role"
	ReasonResolutionFailed        Reason = "resolution_failed"
)

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Required []string
}

// RequirePermission allows the principal if it holds ANY of required.
// An empty requirement allows any authenticated principal.
func RequirePermission(p *Principal, required ...string) Decision {
	req := normalizeAll(required)
	if p == nil {
		return Decision{Reason: ReasonUnauthenticated, Required: req}
	}
	if len(req) == 0 {
		return Decision{Allowed: true, Reason: ReasonGranted}
	}
	for _, name := range req {
		if contains(p.Permissions, name) {
			return Decision{Allowed: true, Reason: ReasonGranted, Required: req}
		}
	}
	return Decision{Reason: ReasonInsufficientPermissions, Required: req}
}

// RequireRole allows the principal if it holds ANY of required.
func RequireRole(p *Principal, required ...string) Decision {
	req := normalizeAll(required)
	if p == nil {
		return Decision{Reason: ReasonUnauthenticated, Required: req}
	}
	if len(req) == 0 {
		return Decision{Allowed: true, Reason: ReasonGranted}
	}
	for _, name := range req {
		if contains(p.Roles, name) {
			return Decision{Allowed: true, Reason: ReasonGranted, Required: req}
		}
	}
	return Decision{Reason: ReasonInsufficientRole, Required: req}
}

// Failed is the deny decision used when the principal could not be resolved.
func Failed(required ...string) Decision {
	return Decision{Reason: ReasonResolutionFailed, Required: normalizeAll(required)}
}

// normalize trims surrounding space only. Names are case-sensitive, so
// "Tickets.Delete" and "tickets.delete" are distinct grants.
func normalize(name string) string {
	return strings.TrimSpace(name)
}

func normalizeAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = normalize(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func contains(held []string, name string) bool {
	for _, h := range held {
		if h == name {
			return true
		}
	}
	return false
}
