// Package unlock holds the lock-state rules for memory collections.
//
// The stored lock flag and the unlock schedule are independent: a scheduled
// unlock time that has passed makes a collection behave as unlocked on every
// read without anything ever flipping the stored flag. There is no background
// job; Effective is the read-time veto that makes time-based unlocks work.
package unlock

import "time"

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

type Type string

const (
	TypeScheduled Type = "scheduled"
	TypeTaskBased Type = "task_based"
)

// Effective reports whether a collection is locked for reads at the given
// instant. The stored flag only ever changes through an explicit write.
func Effective(isLocked bool, unlockAt *time.Time, now time.Time) bool {
	if !isLocked {
		return false
	}
	return unlockAt == nil || unlockAt.After(now)
}

func ValidVisibility(value string) bool {
	switch Visibility(value) {
	case VisibilityPrivate, VisibilityPublic:
		return true
	}
	return false
}

func ValidType(value string) bool {
	switch Type(value) {
	case TypeScheduled, TypeTaskBased:
		return true
	}
	return false
}

// ClampBlur bounds a blur strength to the stored 0-100 scale. Any unit
// conversion for rendering happens downstream; the stored value is always the
// percentage.
func ClampBlur(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
