package ws

import "fmt"

// groupSet is the desired group membership: what the caller wants to be
// joined to, regardless of what the server currently knows. Replayed in full
// after every transition into Connected. Callers hold the Client mutex.
type groupSet struct {
	members map[string]struct{}
}

func newGroupSet() groupSet {
	return groupSet{members: make(map[string]struct{})}
}

func (g *groupSet) add(name string) {
	g.members[name] = struct{}{}
}

func (g *groupSet) remove(name string) {
	delete(g.members, name)
}

func (g *groupSet) list() []string {
	out := make([]string, 0, len(g.members))
	for name := range g.members {
		out = append(out, name)
	}
	return out
}

// ConsultationGroup names the conversation channel for one consultation.
func ConsultationGroup(consultationID int64) string {
	return fmt.Sprintf("consultation_%d", consultationID)
}
