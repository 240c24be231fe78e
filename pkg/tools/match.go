package tools

import "strings"

// Permissions is a tool access declaration. Both lists support "*"
// (matches everything) and a trailing "*" (prefix match). Restricted always
// denies, overriding Allowed.
type Permissions struct {
	Allowed    []string
	Restricted []string
}

// Allows reports whether the named tool may be called under these
// permissions. A nil Permissions allows everything.
func (p *Permissions) Allows(name string) bool {
	if p == nil {
		return true
	}
	for _, denied := range p.Restricted {
		if MatchPattern(denied, name) {
			return false
		}
	}
	for _, pattern := range p.Allowed {
		if MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}

// MatchPattern matches a tool name against an allow pattern.
// "*" matches all; "web_*" matches any name starting with "web_";
// anything else is an exact match.
func MatchPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == name
}
