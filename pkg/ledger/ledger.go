// Package ledger holds the vault's bookkeeping state: feed bindings, the
// outstanding USD6 capacity and per (asset, holder) positions.
//
// None of the types here are safe for concurrent use. The vault service
// serializes every access.
package ledger

// Undo reverts exactly one successful mutation.
type Undo func()

// Undos collects mutations so they can be reverted in reverse order.
type Undos []Undo

// Push appends undo.
func (u *Undos) Push(undo Undo) {
	*u = append(*u, undo)
}

// Revert runs every collected undo, newest first, and clears the list.
func (u *Undos) Revert() {
	for i := len(*u) - 1; i >= 0; i-- {
		(*u)[i]()
	}
	*u = nil
}
