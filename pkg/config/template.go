package config

import (
	"regexp"
	"strings"
)

// placeholderPattern matches {{key}} placeholders (optional inner spaces).
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// RenderTemplate substitutes {{key}} placeholders with values from vars.
// Only placeholders whose key is present in vars are replaced; unknown
// placeholders and all characters outside {{...}} are left untouched.
func RenderTemplate(tmpl string, vars map[string]string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})
}
