package finance

import "custfin/internal/core"

// Member is a profile as shown in team and member pickers.
type Member struct {
	ID        string
	FullName  string
	ManagerID string
}

// Directory indexes profiles for name look-ups and the manager → members hierarchy.
type Directory struct {
	members []Member
	teams   []Member
	names   map[string]string
}

// NewDirectory builds a Directory. Profile order is preserved; managers are
// the profiles with the mod role.
func NewDirectory(profiles []core.Profile) Directory {
	d := Directory{
		members: make([]Member, 0, len(profiles)),
		names:   make(map[string]string, len(profiles)),
	}
	for _, p := range profiles {
		m := Member{ID: p.ID, FullName: p.FullName, ManagerID: p.ManagerID}
		d.members = append(d.members, m)
		d.names[p.ID] = p.FullName
		if p.Role == core.RoleMod {
			d.teams = append(d.teams, m)
		}
	}
	return d
}

// Teams returns the selectable teams, one per manager.
func (d Directory) Teams() []Member {
	return append([]Member(nil), d.teams...)
}

// Members returns the members of a team: the manager and their direct reports.
// With no team selected every member is returned.
func (d Directory) Members(team string) []Member {
	if isAll(team) {
		return append([]Member(nil), d.members...)
	}
	var out []Member
	for _, m := range d.members {
		if inTeam(m, team) {
			out = append(out, m)
		}
	}
	return out
}

// TeamScope returns the set of creator ids belonging to a team.
func (d Directory) TeamScope(team string) map[string]struct{} {
	scope := make(map[string]struct{})
	for _, m := range d.members {
		if inTeam(m, team) {
			scope[m.ID] = struct{}{}
		}
	}
	return scope
}

// Name returns the display name of a profile, empty when unknown.
func (d Directory) Name(id string) string {
	return d.names[id]
}

// Names returns a copy of the id → display name index.
func (d Directory) Names() map[string]string {
	out := make(map[string]string, len(d.names))
	for k, v := range d.names {
		out[k] = v
	}
	return out
}

func inTeam(m Member, team string) bool {
	return m.ManagerID == team || m.ID == team
}
