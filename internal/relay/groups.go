// Package relay maintains named groups and their membership via the Directory
// type.
package relay

import "sync"

type group struct {
	name    string
	creator string
	members map[string]struct{}
	order   []string
}

func (g *group) add(member string) {
	if _, ok := g.members[member]; ok {
		return
	}
	g.members[member] = struct{}{}
	g.order = append(g.order, member)
}

func (g *group) remove(member string) {
	if _, ok := g.members[member]; !ok {
		return
	}
	delete(g.members, member)
	for i, m := range g.order {
		if m == member {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Directory maps group names to their creator and member set. Groups are never
// deleted; membership changes through explicit join and leave actions plus the
// disconnect sweep.
type Directory struct {
	mu     sync.RWMutex
	groups map[string]*group
	order  []string
}

// NewDirectory returns an empty group directory.
func NewDirectory() *Directory {
	return &Directory{groups: make(map[string]*group)}
}

// Create records a new group with the creator as its first member. It fails
// with ErrGroupExists if the name is already in use.
func (d *Directory) Create(name, creator string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.groups[name]; exists {
		return ErrGroupExists
	}
	g := &group{name: name, creator: creator, members: make(map[string]struct{})}
	g.add(creator)
	d.groups[name] = g
	d.order = append(d.order, name)
	return nil
}

// Join adds member to the named group. Joining a group the member already
// belongs to is a no-op; joining a missing group fails with ErrGroupNotFound.
func (d *Directory) Join(name, member string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.groups[name]
	if !ok {
		return ErrGroupNotFound
	}
	g.add(member)
	return nil
}

// Leave removes member from the named group. It fails with ErrGroupNotFound
// for a missing group and ErrNotAMember when the member is not in it.
func (d *Directory) Leave(name, member string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.groups[name]
	if !ok {
		return ErrGroupNotFound
	}
	if _, in := g.members[member]; !in {
		return ErrNotAMember
	}
	g.remove(member)
	return nil
}

// RemoveEverywhere sweeps member out of every group. It backs disconnect
// cleanup, so a client that leaves the server never lingers in a member set.
func (d *Directory) RemoveEverywhere(member string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, g := range d.groups {
		g.remove(member)
	}
}

// MembersOf returns the named group's members in join order, or ok=false if
// the group does not exist.
func (d *Directory) MembersOf(name string) ([]string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.groups[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), g.order...), true
}

// IsMember reports whether member currently belongs to the named group.
func (d *Directory) IsMember(name, member string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.groups[name]
	if !ok {
		return false
	}
	_, in := g.members[member]
	return in
}

// Creator returns the group's creator, or ok=false if the group does not
// exist.
func (d *Directory) Creator(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.groups[name]
	if !ok {
		return "", false
	}
	return g.creator, true
}

// Snapshot returns every group with its current members, groups in creation
// order and members in join order.
func (d *Directory) Snapshot() []GroupInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snapshot := make([]GroupInfo, 0, len(d.order))
	for _, name := range d.order {
		g := d.groups[name]
		snapshot = append(snapshot, GroupInfo{
			Name:    name,
			Members: append([]string(nil), g.order...),
		})
	}
	return snapshot
}
