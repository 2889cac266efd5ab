// Package access decides, once per entry point, whether a caller may use a
// capability. The result is a tagged decision so that transports can map it
// to their own redirect or forbidden responses.
package access

import (
	"strings"

	"github.com/stemsi/cbt-backend/internal/model"
)

// Capability names an action guarded at an entry point.
type Capability string

const (
	TakeExam     Capability = "exam:take"
	ViewOwnScore Capability = "score:view-own"
	ViewScores   Capability = "score:view-all"
	DeleteScores Capability = "score:delete"
	MonitorExam  Capability = "exam:monitor"
)

// Decision is the outcome of a capability check.
type Decision int

const (
	Allow Decision = iota
	RedirectLogin
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case Forbidden:
		return "forbidden"
	}
	return "unknown"
}

// RolePermissions is the default policy. Staff may take exams to preview them.
var RolePermissions = map[model.Role][]Capability{
	model.RoleStudent: {
		TakeExam,
		ViewOwnScore,
	},
	model.RoleStaff: {
		TakeExam,
		ViewOwnScore,
		"score:*",
		MonitorExam,
	},
	model.RoleAdmin: {
		"*",
	},
}

// Checker evaluates capabilities against a role → capabilities table.
// Entries ending in "*" match by prefix.
type Checker struct {
	RolePermissions map[model.Role][]Capability
}

// NewChecker returns a checker over rp, or over RolePermissions when rp is nil.
func NewChecker(rp map[model.Role][]Capability) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

// Has reports whether role holds capability.
func (c *Checker) Has(role model.Role, capability Capability) bool {
	for _, p := range c.RolePermissions[role] {
		if matchCapability(p, capability) {
			return true
		}
	}
	return false
}

// Check evaluates capability for role. Anonymous callers are sent to login;
// signed-in callers lacking the capability are forbidden.
func (c *Checker) Check(role model.Role, capability Capability) Decision {
	if role == "" || role == model.RoleAnonymous {
		return RedirectLogin
	}
	if c.Has(role, capability) {
		return Allow
	}
	return Forbidden
}

func matchCapability(pattern, capability Capability) bool {
	if pattern == "*" || pattern == capability {
		return true
	}
	p := string(pattern)
	if strings.HasSuffix(p, "*") {
		return strings.HasPrefix(string(capability), strings.TrimSuffix(p, "*"))
	}
	return false
}

var defaultChecker = NewChecker(nil)

// Check evaluates capability for role against the default policy.
func Check(role model.Role, capability Capability) Decision {
	return defaultChecker.Check(role, capability)
}
