package relay

// audience is the registry of currently attached viewers, in attach order,
// together with (via the fresh flag) the subset still waiting for their first
// boundary-aligned write. Mutated only by the session goroutine.
type audience struct {
	members []*viewer
}

func (a *audience) attach(v *viewer) {
	v.fresh = true
	a.members = append(a.members, v)
}

// detach removes v if present and reports whether the audience is now empty.
// Detaching a viewer that already left is a no-op, not an error.
func (a *audience) detach(v *viewer) bool {
	for i, m := range a.members {
		if m == v {
			a.members = append(a.members[:i], a.members[i+1:]...)
			break
		}
	}
	return len(a.members) == 0
}

// markDelivered moves v out of the first-frame-pending subset.
func (a *audience) markDelivered(v *viewer) { v.fresh = false }

func (a *audience) isNew(v *viewer) bool { return v.fresh }

func (a *audience) all() []*viewer { return a.members }

func (a *audience) size() int { return len(a.members) }
