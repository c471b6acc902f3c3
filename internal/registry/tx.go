package registry

import "party-rsvp/internal/models"

// Tx is the registry view handed to Update callbacks. It is only valid
// inside the callback.
type Tx struct {
	r     *Registry
	undo  map[models.UserID]undoEntry
	dirty bool
}

type undoEntry struct {
	guest   models.Guest
	existed bool
}

// Get returns the guest record for id.
func (tx *Tx) Get(id models.UserID) (models.Guest, bool) {
	return tx.r.get(id)
}

// Put inserts or replaces the record for id.
func (tx *Tx) Put(id models.UserID, guest models.Guest) {
	tx.remember(id)
	tx.r.put(id, guest)
}

// Remove deletes the record for id and reports whether it existed.
func (tx *Tx) Remove(id models.UserID) bool {
	if _, ok := tx.r.guests[id]; !ok {
		return false
	}
	tx.remember(id)
	return tx.r.remove(id)
}

func (tx *Tx) remember(id models.UserID) {
	if _, seen := tx.undo[id]; seen {
		return
	}
	g, ok := tx.r.guests[id]
	tx.undo[id] = undoEntry{guest: g, existed: ok}
}

func (tx *Tx) rollback() {
	for id, e := range tx.undo {
		if e.existed {
			tx.r.guests[id] = e.guest
		} else {
			delete(tx.r.guests, id)
		}
	}
	tx.r.dirty = tx.dirty
}
