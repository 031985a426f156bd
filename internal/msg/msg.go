// Package msg renders operator-authored message templates with named
// {placeholder} substitution. Templates are user input: placeholders with no
// matching variable are left in place instead of failing the send.
package msg

import "strings"

// Render substitutes every {key} occurrence for which vars has a value.
func Render(template string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(template, "{") {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
