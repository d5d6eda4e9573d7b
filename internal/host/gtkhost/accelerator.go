// Package gtkhost runs the application inside a GTK main loop. Everything except accelerator parsing needs cgo and a
// display, so it is only built with the "gtk" build tag.
package gtkhost

import (
	"fmt"
	"strings"
	"unicode"
)

var modifiers = map[string]string{
	"commandorcontrol": "<Primary>",
	"cmdorctrl":        "<Primary>",
	"control":          "<Control>",
	"ctrl":             "<Control>",
	"shift":            "<Shift>",
	"alt":              "<Alt>",
	"option":           "<Alt>",
	"super":            "<Super>",
	"meta":             "<Meta>",
}

// ParseAccelerator converts an accelerator like "CommandOrControl+Shift+T" into GTK's "<Primary><Shift>t".
func ParseAccelerator(accelerator string) (string, error) {
	parts := strings.Split(accelerator, "+")
	if len(parts) < 1 || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("invalid accelerator %q: no key", accelerator)
	}
	var b strings.Builder
	for _, part := range parts[:len(parts)-1] {
		modifier, ok := modifiers[strings.ToLower(part)]
		if !ok {
			return "", fmt.Errorf("invalid accelerator %q: unknown modifier %q", accelerator, part)
		}
		b.WriteString(modifier)
	}
	key := parts[len(parts)-1]
	if len([]rune(key)) == 1 {
		key = string(unicode.ToLower([]rune(key)[0]))
	}
	b.WriteString(key)
	return b.String(), nil
}

// actionName derives a GIO action name from an accelerator.
func actionName(accelerator string) string {
	return "shortcut-" + strings.ToLower(strings.ReplaceAll(accelerator, "+", "-"))
}
