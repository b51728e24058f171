package main

import (
	"context"
	"sync"
)

// groupRegistry is a thread-safe index of multicast groups to live
// connection ids, with a reverse index so a closing connection can be
// swept out of all its groups at once. Join and leave are idempotent,
// which is what dispatch.Bus requires of its transport.
type groupRegistry struct {
	mu     sync.RWMutex
	groups map[string]map[string]bool // group -> set of connIds
	byConn map[string]map[string]bool // connId -> set of groups
}

func newGroupRegistry() *groupRegistry {
	return &groupRegistry{
		groups: make(map[string]map[string]bool),
		byConn: make(map[string]map[string]bool),
	}
}

func (r *groupRegistry) Join(_ context.Context, connID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groups[group] == nil {
		r.groups[group] = make(map[string]bool)
	}
	r.groups[group][connID] = true
	if r.byConn[connID] == nil {
		r.byConn[connID] = make(map[string]bool)
	}
	r.byConn[connID][group] = true
	return nil
}

func (r *groupRegistry) Leave(_ context.Context, connID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(connID, group)
	return nil
}

// drop sweeps a closed connection out of every group it joined.
func (r *groupRegistry) drop(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for group := range r.byConn[connID] {
		r.removeLocked(connID, group)
	}
}

func (r *groupRegistry) removeLocked(connID, group string) {
	if conns, ok := r.groups[group]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.groups, group)
		}
	}
	if groups, ok := r.byConn[connID]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(r.byConn, connID)
		}
	}
}

// members returns the distinct connection ids across the target groups.
func (r *groupRegistry) members(targets []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var conns []string
	for _, group := range targets {
		for connID := range r.groups[group] {
			if !seen[connID] {
				seen[connID] = true
				conns = append(conns, connID)
			}
		}
	}
	return conns
}

func (r *groupRegistry) groupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

func (r *groupRegistry) connCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
