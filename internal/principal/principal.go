// Package principal models the subjects that appear on blocking
// allow-lists and resource ACLs. Users, groups, and event roles all
// collapse into one interface so permission checks never care which
// kind they are looking at.
package principal

import "strconv"

// Principal is anything that can stand for a set of users.
type Principal interface {
	// Contains reports whether the given user is covered by this principal.
	Contains(userID int64) bool
	// Kind returns the storage discriminator ("user", "group", "role").
	Kind() string
	// Ref returns the stored reference (user id or group/role name).
	Ref() string
}

// User is a single-user principal.
type User struct {
	ID int64
}

func (u User) Contains(userID int64) bool { return u.ID == userID }
func (u User) Kind() string               { return "user" }
func (u User) Ref() string                { return formatID(u.ID) }

// Group is a named principal with a resolved member set.
type Group struct {
	Name    string
	Members map[int64]struct{}
}

// NewGroup builds a Group from a member id list.
func NewGroup(name string, memberIDs ...int64) Group {
	members := make(map[int64]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = struct{}{}
	}
	return Group{Name: name, Members: members}
}

func (g Group) Contains(userID int64) bool {
	_, ok := g.Members[userID]
	return ok
}

func (g Group) Kind() string { return "group" }
func (g Group) Ref() string  { return g.Name }

// Role is an event-role principal; membership is resolved when the role
// is loaded, same as Group.
type Role struct {
	Name    string
	Holders map[int64]struct{}
}

func NewRole(name string, holderIDs ...int64) Role {
	holders := make(map[int64]struct{}, len(holderIDs))
	for _, id := range holderIDs {
		holders[id] = struct{}{}
	}
	return Role{Name: name, Holders: holders}
}

func (r Role) Contains(userID int64) bool {
	_, ok := r.Holders[userID]
	return ok
}

func (r Role) Kind() string { return "role" }
func (r Role) Ref() string  { return r.Name }

// AnyContains reports whether any principal in the list covers the user.
func AnyContains(principals []Principal, userID int64) bool {
	for _, p := range principals {
		if p.Contains(userID) {
			return true
		}
	}
	return false
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
