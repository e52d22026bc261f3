// Package groupcache implements the Group-Member Cache (C2): a membership
// set per group id used for fan-out, with invalidation rules tied to
// GroupDismiss / GroupMemberExit / GroupRemoveMember (spec §4.2). On a miss
// List falls back to the group repository and repopulates via AddMany.
package groupcache

import "sync"

// Repository is the external group-membership collaborator (spec §1 "the
// CRUD-heavy ... group services are external collaborators").
type Repository interface {
	Members(groupID string) ([]string, error)
}

// Cache is a concurrent map of group id to member-id set, grounded on
// leijux-server's RWMutex-guarded concurrent map idiom.
type Cache struct {
	repo Repository

	mu     sync.RWMutex
	groups map[string]map[string]struct{}
}

// New builds a Cache. repo may be nil for tests that never need the
// repository fallback.
func New(repo Repository) *Cache {
	return &Cache{repo: repo, groups: make(map[string]map[string]struct{})}
}

// Add inserts one member into groupID's set.
func (c *Cache) Add(groupID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.groups[groupID]
	if !ok {
		set = make(map[string]struct{})
		c.groups[groupID] = set
	}
	set[userID] = struct{}{}
}

// AddMany inserts several members, replacing nothing already present.
func (c *Cache) AddMany(groupID string, userIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.groups[groupID]
	if !ok {
		set = make(map[string]struct{}, len(userIDs))
		c.groups[groupID] = set
	}
	for _, u := range userIDs {
		set[u] = struct{}{}
	}
}

// Remove deletes one member from groupID's set (GroupMemberExit).
func (c *Cache) Remove(groupID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.groups[groupID]; ok {
		delete(set, userID)
	}
}

// RemoveMany deletes several members from groupID's set (GroupRemoveMember).
func (c *Cache) RemoveMany(groupID string, userIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.groups[groupID]
	if !ok {
		return
	}
	for _, u := range userIDs {
		delete(set, u)
	}
}

// RemoveAll drops groupID's entire set (GroupDismiss).
func (c *Cache) RemoveAll(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, groupID)
}

// List returns groupID's member set, falling back to the repository and
// repopulating the cache on a miss (spec §4.2). excludeUserID, if non-empty,
// is omitted from the returned slice — callers use this to implement the
// "fan-out recipient set excludes the sender" invariant (spec §3) in one
// step.
func (c *Cache) List(groupID, excludeUserID string) ([]string, error) {
	c.mu.RLock()
	set, ok := c.groups[groupID]
	c.mu.RUnlock()

	if !ok {
		if c.repo == nil {
			return nil, nil
		}
		members, err := c.repo.Members(groupID)
		if err != nil {
			return nil, err
		}
		c.AddMany(groupID, members)
		c.mu.RLock()
		set = c.groups[groupID]
		c.mu.RUnlock()
	}

	out := make([]string, 0, len(set))
	for u := range set {
		if u == excludeUserID {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}
