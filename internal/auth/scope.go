package auth

// Scope is the set of agent ids a caller may see.
type Scope struct {
	// Unrestricted admits every agent, including ones created after login.
	Unrestricted bool
	// AgentIDs is ignored when Unrestricted is set.
	AgentIDs []string
}

// Allows reports whether records of agentID are visible.
func (s Scope) Allows(agentID string) bool {
	if s.Unrestricted {
		return true
	}
	for _, id := range s.AgentIDs {
		if id == agentID {
			return true
		}
	}
	return false
}

// Narrow intersects a requested agent list with the scope and returns the store filter.
//
// Rules:
// - nil means unrestricted (only for an unrestricted scope with no request).
// - a non-nil empty slice matches nothing.
func (s Scope) Narrow(requested []string) []string {
	if len(requested) == 0 {
		if s.Unrestricted {
			return nil
		}
		return append([]string{}, s.AgentIDs...)
	}

	out := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if s.Allows(id) {
			out = append(out, id)
		}
	}
	return out
}

// Identity is the authenticated dashboard caller.
type Identity struct {
	Username  string
	Developer bool
	Scope     Scope
}
