package layout

import "fmt"

// OutputTracker implements output collision detection: every concrete
// output path (and hardlink path) is registered as it
// is scheduled; a duplicate registration is a warning, not a hard
// error, per documented historical-compatibility carve-out.
type OutputTracker struct {
	owners map[string]string // path -> owning unit identifier
}

func NewOutputTracker() *OutputTracker {
	return &OutputTracker{owners: make(map[string]string)}
}

// Register claims path for unitID, returning a non-empty warning
// string if another unit already claimed it. sameTargetName controls
// which of the two worded warnings distinguishes.
func (t *OutputTracker) Register(path, unitID string, sameTargetName bool) string {
	existing, ok := t.owners[path]
	if !ok {
		t.owners[path] = unitID
		return ""
	}
	if existing == unitID {
		return ""
	}
	if sameTargetName {
		return fmt.Sprintf("output path %q is produced by both %s and %s", path, existing, unitID)
	}
	return fmt.Sprintf("output path %q is produced by %s and %s, which have different target names but collide on disk", path, existing, unitID)
}
