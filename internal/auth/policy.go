package auth

import (
	"net/http"
	"strings"
)

// routeRule maps a method and path to the minimum role.
// An empty method matches any method; prefix rules match by path prefix.
type routeRule struct {
	method string
	path   string
	prefix bool
	role   Role
}

var routeRules = []routeRule{
	{path: "/api/v1/cutoffs/resolve", role: RoleViewer},
	{path: "/api/v1/cutoffs/label", role: RoleViewer},
	{path: "/api/v1/cutoffs/overrides", role: RoleOperator},
	{method: http.MethodGet, path: "/api/v1/cutoffs/overrides/", prefix: true, role: RoleOperator},
	{path: "/api/v1/cutoffs/overrides/", prefix: true, role: RoleAdmin},
	{path: "/api/v1/reports/generate", role: RoleOperator},
	{path: "/api/v1/reports/batch", role: RoleOperator},
	{path: "/api/v1/reports/export.", prefix: true, role: RoleViewer},
}

func (rule routeRule) matches(method, path string) bool {
	if rule.method != "" && rule.method != method {
		return false
	}
	if rule.prefix {
		return strings.HasPrefix(path, rule.path)
	}
	return path == rule.path
}

// Policy decides which requests need a token and which role they need.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds the billing API policy with the given exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt reports whether the request skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole returns the minimum role for the request.
// Unlisted API routes need viewer for safe methods and operator otherwise.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range routeRules {
		if rule.matches(r.Method, r.URL.Path) {
			return rule.role, true
		}
	}
	if !strings.HasPrefix(r.URL.Path, "/api/") {
		return "", false
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return RoleViewer, true
	default:
		return RoleOperator, true
	}
}
