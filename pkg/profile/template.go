package profile

import (
	"regexp"
	"strings"
)

// assignLine matches "assign <var> [=] <value> # %<param>% <comment>"
var assignLine = regexp.MustCompile(`^(\s*assign\s+[A-Za-z0-9_:]+\s*=?\s*)(\S+)(\s+#\s*%([A-Za-z0-9_]+)%.*)$`)

// renderTemplate rewrites the value of every parameterized assign line
// whose parameter is set. Other lines pass through unchanged.
func renderTemplate(text string, params Params) (string, error) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		m := assignLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value, ok := params[m[4]]
		if !ok {
			continue
		}
		if err := checkValue(m[4], value); err != nil {
			return "", err
		}
		s, _ := formatValue(value)
		lines[i] = m[1] + s + m[3]
	}
	return strings.Join(lines, "\n"), nil
}

// templateParams lists the parameter markers found in a template
func templateParams(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		m := assignLine.FindStringSubmatch(line)
		if m == nil || seen[m[4]] {
			continue
		}
		seen[m[4]] = true
		names = append(names, m[4])
	}
	return names
}
