// Package anticheat evaluates the violation signals reported by the exam
// client against a per-exam policy and decides when an attempt must be
// terminated. The server never observes these signals itself: whatever the
// client reports is recorded as-is.
package anticheat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Signal identifies one kind of client-observed violation.
type Signal string

const (
	SignalFocusLost        Signal = "focus_lost"
	SignalVisibilityHidden Signal = "visibility_hidden"
	SignalFullscreenExit   Signal = "fullscreen_exit"
	SignalCopy             Signal = "copy"
	SignalPaste            Signal = "paste"
	SignalContextMenu      Signal = "context_menu"
	SignalDevtoolsOpen     Signal = "devtools_open"
	SignalShortcutBlocked  Signal = "shortcut_blocked"
)

var signalLabels = map[Signal]string{
	SignalFocusLost:        "window lost focus",
	SignalVisibilityHidden: "exam tab was hidden",
	SignalFullscreenExit:   "fullscreen was exited",
	SignalCopy:             "copy attempted",
	SignalPaste:            "paste attempted",
	SignalContextMenu:      "right-click menu opened",
	SignalDevtoolsOpen:     "developer tools detected",
	SignalShortcutBlocked:  "disallowed keyboard shortcut",
}

// Valid reports whether s is a known signal.
func (s Signal) Valid() bool {
	_, ok := signalLabels[s]
	return ok
}

// Label returns a human-readable description of s.
func (s Signal) Label() string {
	if l, ok := signalLabels[s]; ok {
		return l
	}
	return string(s)
}

// Mode selects what the monitor does with a violation.
type Mode string

const (
	ModeLogOnly              Mode = "log_only"
	ModeTerminateAfterN      Mode = "terminate_after_n"
	ModeTerminateImmediately Mode = "terminate_immediately"
)

var ErrInvalidPolicy = errors.New("invalid anti-cheat policy")

// Policy is the monitor configuration of an exam.
type Policy struct {
	Mode          Mode `json:"mode"`
	MaxViolations int  `json:"max_violations"`
}

// Validate checks mode and threshold.
func (p Policy) Validate() error {
	switch p.Mode {
	case ModeLogOnly, ModeTerminateImmediately:
		return nil
	case ModeTerminateAfterN:
		if p.MaxViolations < 1 {
			return fmt.Errorf("%w: max_violations must be at least 1", ErrInvalidPolicy)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, p.Mode)
}

// Terminates reports whether the count-th violation ends the attempt.
func (p Policy) Terminates(count int) bool {
	switch p.Mode {
	case ModeTerminateImmediately:
		return true
	case ModeTerminateAfterN:
		return count >= p.MaxViolations
	}
	return false
}

// ParsePolicy reads an exam's stored policy. Missing fields take their value
// from fallback; an empty document yields fallback.
func ParsePolicy(raw json.RawMessage, fallback Policy) (Policy, error) {
	p := fallback
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return p, p.Validate()
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return fallback, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if p.Mode == ModeTerminateAfterN && p.MaxViolations == 0 {
		p.MaxViolations = fallback.MaxViolations
	}
	if err := p.Validate(); err != nil {
		return fallback, err
	}
	return p, nil
}
