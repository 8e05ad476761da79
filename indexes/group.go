package indexes

import "github.com/drpcorg/offline/tables"

// Group is the bucket of row ids sharing one index value.
type Group struct {
	Value any   `json:"value"`
	IDs   []any `json:"ids"`
}

func (g *Group) indexOf(id string) int {
	for i, gid := range g.IDs {
		if tables.IDString(gid) == id {
			return i
		}
	}
	return -1
}

// IDStrings returns the member ids as key components, in group order.
func (g *Group) IDStrings() []string {
	ids := make([]string, 0, len(g.IDs))
	for _, id := range g.IDs {
		ids = append(ids, tables.IDString(id))
	}
	return ids
}

// FindGroup returns the position of the group whose value strictly equals
// value, or -1.
func FindGroup(groups []Group, value any) int {
	for i := range groups {
		if tables.Equal(groups[i].Value, value) {
			return i
		}
	}
	return -1
}

func (g *Group) strip(id string) bool {
	i := g.indexOf(id)
	if i < 0 {
		return false
	}
	ids := make([]any, 0, len(g.IDs)-1)
	ids = append(ids, g.IDs[:i]...)
	g.IDs = append(ids, g.IDs[i+1:]...)
	return true
}

func stripID(groups []Group, value any, id string) []Group {
	if i := FindGroup(groups, value); i >= 0 && groups[i].strip(id) {
		return groups
	}
	for i := range groups {
		if groups[i].strip(id) {
			break
		}
	}
	return groups
}

func addID(groups []Group, value any, id any) []Group {
	i := FindGroup(groups, value)
	if i < 0 {
		return append(groups, Group{Value: value, IDs: []any{id}})
	}
	if groups[i].indexOf(tables.IDString(id)) < 0 {
		groups[i].IDs = append(groups[i].IDs, id)
	}
	return groups
}
