package treekem

// Roster is the ordered list of member credentials.  Slot order is
// load-bearing: a member's roster index is both its signer identifier and
// its leaf index in the ratchet tree.  Removed members leave a blank slot
// behind that a later Add may fill.

type RosterEntry struct {
	Credential *Credential `tls:"optional"`
}

func (e RosterEntry) blank() bool {
	return e.Credential == nil
}

type Roster struct {
	Entries []RosterEntry `tls:"head=4"`
}

func (r Roster) Size() int {
	return len(r.Entries)
}

// Add installs a credential at the given index.  The index must name an
// existing blank slot or be equal to the roster size, in which case the
// roster grows by exactly one entry.
func (r *Roster) Add(index LeafIndex, cred Credential) error {
	switch {
	case int(index) == len(r.Entries):
		r.Entries = append(r.Entries, RosterEntry{Credential: &cred})
		return nil

	case int(index) < len(r.Entries):
		if !r.Entries[index].blank() {
			return ValidationError("roster index already occupied")
		}
		r.Entries[index].Credential = &cred
		return nil

	default:
		return ValidationError("roster index out of range")
	}
}

func (r *Roster) Blank(index LeafIndex) error {
	if int(index) >= len(r.Entries) {
		return ValidationError("roster index out of range")
	}
	if r.Entries[index].blank() {
		return ValidationError("roster index already blank")
	}

	r.Entries[index].Credential = nil
	return nil
}

// Get returns the credential at the given slot, or nil when the slot is
// blank.
func (r Roster) Get(index LeafIndex) (*Credential, error) {
	if int(index) >= len(r.Entries) {
		return nil, ValidationError("roster index out of range")
	}
	return r.Entries[index].Credential, nil
}

func (r Roster) Equals(o Roster) bool {
	if len(r.Entries) != len(o.Entries) {
		return false
	}

	for i := range r.Entries {
		if r.Entries[i].blank() != o.Entries[i].blank() {
			return false
		}
		if r.Entries[i].blank() {
			continue
		}
		if !r.Entries[i].Credential.Equals(*o.Entries[i].Credential) {
			return false
		}
	}
	return true
}

func (r Roster) clone() Roster {
	cloned := Roster{Entries: make([]RosterEntry, len(r.Entries))}
	for i, e := range r.Entries {
		if e.blank() {
			continue
		}
		cred := *e.Credential
		cloned.Entries[i].Credential = &cred
	}
	return cloned
}
