// Package visibility redacts memory collections for viewers without manage
// capability. It is the single place lock state turns into an outward view;
// callers consume the projection verbatim and never re-derive lock state.
package visibility

import (
	"time"

	"locket/api/internal/store"
	"locket/api/internal/unlock"
)

// Input bundles one collection with the aggregates the projection may need.
type Input struct {
	Collection store.MemoryCollection
	ItemCount  int
	// Preview is the representative media item, if any. It is the only item
	// a locked public collection may surface.
	Preview *store.MediaItem
}

// Locked is the one lock rule every consumer shares. A private collection is
// governed by the stored flag alone: a lapsed schedule never unlocks it, only
// an explicit unlock does. A public collection unlocks when its schedule
// lapses.
func Locked(c store.MemoryCollection, now time.Time) bool {
	if c.LockVisibility == string(unlock.VisibilityPrivate) {
		return c.IsLocked
	}
	return unlock.Effective(c.IsLocked, c.UnlockAt, now)
}

// Project returns the view of a collection appropriate for the given viewer
// and whether the collection is visible to them at all. Managers always get
// the full view plus the stored flag and the current lock state.
func Project(in Input, managerView bool, now time.Time) (map[string]any, bool) {
	c := in.Collection
	locked := Locked(c, now)

	if managerView {
		view := fullView(in)
		view["locked"] = c.IsLocked
		view["currentlyLocked"] = locked
		return view, true
	}

	if c.LockVisibility == string(unlock.VisibilityPrivate) {
		if locked {
			return nil, false
		}
		return fullView(in), true
	}

	if !locked {
		return fullView(in), true
	}

	return partialView(in), true
}

func fullView(in Input) map[string]any {
	c := in.Collection
	view := map[string]any{
		"id":              c.ID,
		"tenantId":        c.TenantID,
		"title":           c.Title,
		"description":     c.Description,
		"createdBy":       c.CreatedBy,
		"itemCount":       in.ItemCount,
		"locked":          false,
		"lockVisibility":  c.LockVisibility,
		"unlockType":      c.UnlockType,
		"taskCompleted":   c.TaskCompleted,
		"blurStrength":    c.BlurStrength,
		"createdAt":       c.CreatedAt,
		"updatedAt":       c.UpdatedAt,
	}
	if c.MemoryDate != nil {
		view["memoryDate"] = *c.MemoryDate
	}
	if c.UnlockAt != nil {
		view["unlockAt"] = *c.UnlockAt
	}
	if c.UnlockHint != "" {
		view["unlockHint"] = c.UnlockHint
	}
	if c.TaskDescription != "" {
		view["taskDescription"] = c.TaskDescription
	}
	return view
}

// partialView discloses fields strictly per the collection's boolean flags.
// The hint and, for scheduled unlocks, the unlock timestamp are always shown:
// they are metadata about the lock, not content of the collection.
func partialView(in Input) map[string]any {
	c := in.Collection
	view := map[string]any{
		"id":             c.ID,
		"tenantId":       c.TenantID,
		"locked":         true,
		"lockVisibility": c.LockVisibility,
		"unlockType":     c.UnlockType,
		"unlockHint":     c.UnlockHint,
	}
	if c.UnlockType == string(unlock.TypeScheduled) && c.UnlockAt != nil {
		view["unlockAt"] = *c.UnlockAt
	}
	if c.UnlockType == string(unlock.TypeTaskBased) {
		// The task is the gate the viewer is asked to satisfy.
		view["taskDescription"] = c.TaskDescription
	}
	if c.ShowTitle {
		view["title"] = c.Title
	}
	if c.ShowDescription {
		view["description"] = c.Description
	}
	if c.ShowItemCount {
		view["itemCount"] = in.ItemCount
	}
	if c.ShowCreatedDate {
		view["createdAt"] = c.CreatedAt
	}
	if c.ShowBlurred && in.Preview != nil {
		view["preview"] = map[string]any{
			"storageKey":   in.Preview.StorageKey,
			"contentType":  in.Preview.ContentType,
			"blurStrength": unlock.ClampBlur(c.BlurStrength),
		}
	}
	return view
}
