package hotkey

import (
	"fmt"
	"strings"
)

// Manager defines the interface for global hotkey management. The recorder
// binds a single accelerator that toggles recording; callbacks fire with
// pressed=true on key down and pressed=false on release.
type Manager interface {
	Register(accel string, callback func(pressed bool)) error
	Unregister(accel string) error
	Close() error
}

// accel is a parsed accelerator: modifier flags plus a single key name.
type accel struct {
	ctrl  bool
	alt   bool
	shift bool
	cmd   bool
	key   string // lowercase, e.g. "space", "r", "f9"
}

// parseAccel parses accelerator strings like "Alt+Space" or "Ctrl+Shift+R".
// The last segment is the key; everything before it must be a modifier.
func parseAccel(s string) (accel, error) {
	var a accel
	parts := strings.Split(s, "+")
	if len(parts) == 0 || strings.TrimSpace(parts[len(parts)-1]) == "" {
		return a, fmt.Errorf("invalid accelerator %q", s)
	}

	for _, part := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "ctrl", "control":
			a.ctrl = true
		case "alt", "option", "opt":
			a.alt = true
		case "shift":
			a.shift = true
		case "cmd", "command", "super", "meta", "win":
			a.cmd = true
		default:
			return a, fmt.Errorf("unknown modifier %q in accelerator %q", part, s)
		}
	}

	a.key = strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
	return a, nil
}
