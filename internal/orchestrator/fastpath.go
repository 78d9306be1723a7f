package orchestrator

import (
	"runtime"
	"strings"
)

// Router short-circuits purely informational queries (disk usage, uptime,
// current user, ...) to a single shell command, skipping the reasoning
// pipeline entirely.
type Router struct {
	commands map[string]string
}

// NewRouter builds the router for the current platform.
func NewRouter() *Router {
	return NewRouterForOS(runtime.GOOS)
}

// NewRouterForOS builds the router for a specific GOOS value. Exposed so
// tests can pin a platform.
func NewRouterForOS(goos string) *Router {
	switch goos {
	case "darwin":
		return &Router{commands: darwinCommands}
	case "linux":
		return &Router{commands: linuxCommands}
	default:
		return &Router{commands: genericCommands}
	}
}

// Match returns the command mapped to the most specific keyword contained in
// the description, matching case-insensitively. The longest matching keyword
// wins; equal lengths tie-break lexicographically so selection never depends
// on map iteration order.
func (r *Router) Match(description string) (string, bool) {
	lower := strings.ToLower(description)

	best := ""
	for keyword := range r.commands {
		if !strings.Contains(lower, keyword) {
			continue
		}
		if len(keyword) > len(best) || (len(keyword) == len(best) && keyword < best) {
			best = keyword
		}
	}

	if best == "" {
		return "", false
	}
	return r.commands[best], true
}

var linuxCommands = map[string]string{
	"time":         "date",
	"date":         "date",
	"disk":         "df -h",
	"disk space":   "df -h",
	"disk usage":   "df -h",
	"memory":       "free -h",
	"memory usage": "free -h",
	"ram":          "free -h",
	"uptime":       "uptime",
	"load":         "uptime",
	"status":       "uptime && free -h && df -h",
	"system":       "uptime && free -h && df -h",
	"processes":    "ps aux | head -10",
	"cpu":          "top -bn1 | head -20",
	"cpu usage":    "top -bn1 | head -20",
	"user":         "whoami",
	"user name":    "whoami",
	"current user": "whoami",
	"users":        "cut -d: -f1 /etc/passwd | grep -v ^# | sort",
	"list users":   "cut -d: -f1 /etc/passwd | grep -v ^# | sort",
	"local users":  "cut -d: -f1 /etc/passwd | grep -v ^# | sort",
}

var darwinCommands = map[string]string{
	"time":         "date",
	"date":         "date",
	"disk":         "df -h",
	"disk space":   "df -h",
	"disk usage":   "df -h",
	"memory":       "vm_stat | head -10",
	"memory usage": "vm_stat | head -10",
	"ram":          "vm_stat | head -10",
	"uptime":       "uptime",
	"load":         "uptime",
	"status":       "uptime && df -h && vm_stat | head -5",
	"system":       "uptime && df -h && vm_stat | head -5",
	"processes":    "ps aux | head -10",
	"cpu":          "top -l1 -s0 | head -15",
	"cpu usage":    "top -l1 -s0 | head -15",
	"user":         "whoami",
	"user name":    "whoami",
	"current user": "whoami",
	"users":        "dscl . list /Users | grep -v ^_",
	"list users":   "dscl . list /Users | grep -v ^_",
	"local users":  "dscl . list /Users | grep -v ^_",
}

// genericCommands is the conservative fallback for platforms without a
// dedicated table.
var genericCommands = map[string]string{
	"time":         "date",
	"date":         "date",
	"disk":         "df -h",
	"disk space":   "df -h",
	"disk usage":   "df -h",
	"uptime":       "uptime",
	"load":         "uptime",
	"user":         "whoami",
	"current user": "whoami",
}
