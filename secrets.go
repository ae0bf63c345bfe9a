package treekem

///
/// TreeSecrets
///

// TreeSecrets is a member's private view of the tree: the private keys for
// exactly those nodes whose subtree contains the member's leaf, plus the
// root secret left behind by the last successful path update.  It is never
// serialized with the tree.
type TreeSecrets struct {
	PrivateKeys map[NodeIndex]HPKEPrivateKey
	RootSecret  []byte
}

func NewTreeSecrets() *TreeSecrets {
	return &TreeSecrets{
		PrivateKeys: map[NodeIndex]HPKEPrivateKey{},
	}
}

func (ts *TreeSecrets) Clone() *TreeSecrets {
	if ts == nil {
		return NewTreeSecrets()
	}

	out := NewTreeSecrets()
	for i, pk := range ts.PrivateKeys {
		out.PrivateKeys[i] = pk
	}
	out.RootSecret = dup(ts.RootSecret)
	return out
}
