// Package access provides the admin role check and the pause gate consulted
// by the vault service.
package access

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Authorizer decides whether a principal holds the admin role.
type Authorizer interface {
	IsAdmin(principal common.Address) bool
}

// Gate is a single suspend switch.
type Gate interface {
	Paused() bool
	SetPaused(paused bool)
}

// RoleSet is a fixed set of admin principals.
type RoleSet struct {
	admins map[common.Address]struct{}
}

// NewRoleSet creates a RoleSet. The zero address is never an admin.
func NewRoleSet(admins ...common.Address) *RoleSet {
	rs := &RoleSet{admins: make(map[common.Address]struct{}, len(admins))}
	for _, a := range admins {
		if a == (common.Address{}) {
			continue
		}
		rs.admins[a] = struct{}{}
	}
	return rs
}

// IsAdmin implements Authorizer.
func (rs *RoleSet) IsAdmin(principal common.Address) bool {
	_, ok := rs.admins[principal]
	return ok
}

// Admins returns the configured principals.
func (rs *RoleSet) Admins() []common.Address {
	out := make([]common.Address, 0, len(rs.admins))
	for a := range rs.admins {
		out = append(out, a)
	}
	return out
}

// PauseSwitch is a concurrency-safe Gate. The zero value is unpaused.
type PauseSwitch struct {
	mu     sync.RWMutex
	paused bool
}

// Paused implements Gate.
func (p *PauseSwitch) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// SetPaused implements Gate.
func (p *PauseSwitch) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
}
