package treekem

import (
	"bytes"
	"crypto/hmac"
	"fmt"

	syntax "github.com/cisco/go-tls-syntax"
)

// GroupContext is the public name of an epoch.  It is fed to the key schedule
// so that epoch secrets are bound to the group, the epoch number, and the
// whole operation history.
type GroupContext struct {
	GroupID        []byte `tls:"head=1"`
	Epoch          Epoch
	TranscriptHash []byte `tls:"head=1"`
}

// GroupState is one member's view of the group at one epoch.  States are
// immutable: every operation returns a successor state and leaves the
// receiver untouched, so a failed handshake can never corrupt the group.
//
// The serialized form covers only the public view.  The member's own leaf
// index, identity key, tree secrets, and epoch secrets never hit the wire.
type GroupState struct {
	CipherSuite    CipherSuite
	GroupID        []byte `tls:"head=1"`
	Epoch          Epoch
	Roster         Roster
	Tree           RatchetTree
	TranscriptHash []byte `tls:"head=1"`

	// Local state
	Index        LeafIndex           `tls:"omit"`
	IdentityPriv SignaturePrivateKey `tls:"omit"`
	Keys         epochSecrets        `tls:"omit"`
}

// NewGroupState creates a one-member group with the creator at leaf 0.
func NewGroupState(groupID []byte, suite CipherSuite, identityPriv SignaturePrivateKey, cred Credential, leafSecret []byte) (*GroupState, error) {
	s := &GroupState{
		CipherSuite:    suite,
		GroupID:        dup(groupID),
		Epoch:          0,
		Roster:         Roster{},
		Tree:           *NewRatchetTree(suite),
		TranscriptHash: make([]byte, suite.Constants().HashSize),
		Index:          0,
		IdentityPriv:   identityPriv,
	}

	if err := s.Roster.Add(0, cred); err != nil {
		return nil, err
	}

	priv, err := s.Tree.nodePrivateKey(leafSecret)
	if err != nil {
		return nil, err
	}

	if err := s.Tree.AddLeaf(0, priv.PublicKey); err != nil {
		return nil, err
	}

	if err := s.Tree.Merge(0, leafSecret); err != nil {
		return nil, err
	}

	ctx, err := s.groupContext()
	if err != nil {
		return nil, err
	}

	s.Keys = newEpochSecrets(suite, s.Tree.RootSecret(), nil, ctx)
	return s, nil
}

// NewGroupStateWithMembers builds a member's view of a group whose initial
// secrets were established out of band.  Every member calls it with the same
// group ID, credentials, and leaf secrets, differing only in their own index
// and identity key.  The member at each leaf must refresh with an update
// before the group's secrecy depends on their leaf alone.
func NewGroupStateWithMembers(groupID []byte, suite CipherSuite, index LeafIndex, identityPriv SignaturePrivateKey, creds []Credential, leafSecrets [][]byte) (*GroupState, error) {
	if len(creds) == 0 || len(creds) != len(leafSecrets) {
		return nil, ValidationError("treekem: mismatched credential and leaf secret lists")
	}
	if int(index) >= len(creds) {
		return nil, ValidationError("treekem: member index outside the group")
	}

	s := &GroupState{
		CipherSuite:    suite,
		GroupID:        dup(groupID),
		Epoch:          0,
		Roster:         Roster{},
		Tree:           *NewRatchetTree(suite),
		TranscriptHash: make([]byte, suite.Constants().HashSize),
		Index:          index,
		IdentityPriv:   identityPriv,
	}

	for i := range creds {
		if err := s.Roster.Add(LeafIndex(i), creds[i]); err != nil {
			return nil, err
		}

		priv, err := s.Tree.nodePrivateKey(leafSecrets[i])
		if err != nil {
			return nil, err
		}

		if err := s.Tree.AddLeaf(LeafIndex(i), priv.PublicKey); err != nil {
			return nil, err
		}

		if err := s.Tree.Merge(LeafIndex(i), leafSecrets[i]); err != nil {
			return nil, err
		}
	}

	ctx, err := s.groupContext()
	if err != nil {
		return nil, err
	}

	s.Keys = newEpochSecrets(suite, s.Tree.RootSecret(), nil, ctx)
	return s, nil
}

///
/// Handshake creation
///

// CreateAdd proposes adding the holder of the init key at the given roster
// index.  The index may name a blank slot or extend the roster by one.  Adds
// contribute no fresh entropy, so the epoch's root secret is all zero and the
// new member should update promptly.
func (s *GroupState) CreateAdd(at LeafIndex, uik UserInitKey) (*Handshake, *GroupState, error) {
	if err := uik.Validate(); err != nil {
		return nil, nil, err
	}
	if err := uik.VerifySignature(); err != nil {
		return nil, nil, err
	}

	initKey, err := uik.InitKeyForSuite(s.CipherSuite)
	if err != nil {
		return nil, nil, err
	}
	if initKey == nil {
		return nil, nil, ValidationError("treekem: init key does not support the group's cipher suite")
	}

	next := s.clone()
	if err := next.Roster.Add(at, uik.Credential); err != nil {
		return nil, nil, err
	}
	if err := next.Tree.AddLeaf(at, *initKey); err != nil {
		return nil, nil, err
	}

	op := GroupOperation{Add: &GroupAdd{RosterIndex: uint32(at), InitKey: uik}}
	return s.finalize(next, op, s.CipherSuite.zero())
}

// CreateUpdate refreshes this member's leaf and direct path from a fresh
// leaf secret.
func (s *GroupState) CreateUpdate(leafSecret []byte) (*Handshake, *GroupState, error) {
	ctx, err := s.groupContext()
	if err != nil {
		return nil, nil, err
	}

	next := s.clone()
	path, rootSecret, err := next.Tree.UpdateDirectPath(s.Index, ctx, leafSecret)
	if err != nil {
		return nil, nil, err
	}

	op := GroupOperation{Update: &GroupUpdate{Path: *path}}
	return s.finalize(next, op, rootSecret)
}

// CreateRemove evicts the member at the given index and refreshes this
// member's direct path so the evicted member cannot follow the group into
// the new epoch.
func (s *GroupState) CreateRemove(at LeafIndex, leafSecret []byte) (*Handshake, *GroupState, error) {
	if at == s.Index {
		return nil, nil, ValidationError("treekem: cannot remove ourselves")
	}

	ctx, err := s.groupContext()
	if err != nil {
		return nil, nil, err
	}

	next := s.clone()
	if err := next.Roster.Blank(at); err != nil {
		return nil, nil, err
	}
	if err := next.Tree.RemoveLeaf(at); err != nil {
		return nil, nil, err
	}

	path, rootSecret, err := next.Tree.UpdateDirectPath(s.Index, ctx, leafSecret)
	if err != nil {
		return nil, nil, err
	}

	op := GroupOperation{Remove: &GroupRemove{RemovedIndex: uint32(at), Path: *path}}
	return s.finalize(next, op, rootSecret)
}

// finalize advances a worked copy into the next epoch and wraps the
// operation in a signed, confirmed handshake.
func (s *GroupState) finalize(next *GroupState, op GroupOperation, rootSecret []byte) (*Handshake, *GroupState, error) {
	if err := s.advance(next, op, rootSecret); err != nil {
		return nil, nil, err
	}

	cred, err := s.Roster.Get(s.Index)
	if err != nil {
		return nil, nil, err
	}
	if cred == nil {
		return nil, nil, ValidationError("treekem: no credential for our own leaf")
	}

	sigData, err := cred.Scheme().Sign(&s.IdentityPriv, next.TranscriptHash)
	if err != nil {
		return nil, nil, err
	}
	sig := Signature{Data: sigData}

	hs := &Handshake{
		PriorEpoch:   s.Epoch,
		Operation:    op,
		SignerIndex:  s.Index,
		Signature:    sig,
		Confirmation: next.Keys.confirmationMAC(next.TranscriptHash, sig),
	}
	return hs, next, nil
}

///
/// Handshake processing
///

// ProcessHandshake verifies a handshake against this state and, if every
// check passes, returns the successor state.  Checks run strictly in order:
// epoch, then signature, then the operation itself, then the confirmation
// MAC.  Any failure leaves the receiver state untouched.
func (s *GroupState) ProcessHandshake(hs *Handshake) (*GroupState, error) {
	if hs.PriorEpoch != s.Epoch {
		return nil, EpochMismatchError{Have: s.Epoch, Got: hs.PriorEpoch}
	}

	if hs.SignerIndex == s.Index {
		return nil, ValidationError("treekem: processing our own handshake")
	}

	cred, err := s.Roster.Get(hs.SignerIndex)
	if err != nil {
		return nil, SignatureError("treekem: signer index outside the roster")
	}
	if cred == nil {
		return nil, SignatureError("treekem: signer slot is blank")
	}

	// The signature covers the transcript hash as extended by this
	// operation, so compute the candidate extension up front.
	newTranscript, err := s.extendTranscript(hs.Operation)
	if err != nil {
		return nil, err
	}
	if !cred.Scheme().Verify(cred.PublicKey(), newTranscript, hs.Signature.Data) {
		return nil, SignatureError("treekem: invalid handshake signature")
	}

	next, rootSecret, err := s.applyOperation(hs)
	if err != nil {
		return nil, err
	}

	if err := s.advance(next, hs.Operation, rootSecret); err != nil {
		return nil, err
	}

	candidate := next.Keys.confirmationMAC(next.TranscriptHash, hs.Signature)
	if !hmac.Equal(candidate, hs.Confirmation) {
		return nil, ConfirmationError("treekem: handshake confirmation does not verify")
	}

	return next, nil
}

func (s *GroupState) applyOperation(hs *Handshake) (*GroupState, []byte, error) {
	ctx, err := s.groupContext()
	if err != nil {
		return nil, nil, err
	}

	next := s.clone()
	op := hs.Operation

	switch op.Type() {
	case GroupOperationTypeAdd:
		add := op.Add
		if err := add.InitKey.Validate(); err != nil {
			return nil, nil, err
		}
		if err := add.InitKey.VerifySignature(); err != nil {
			return nil, nil, err
		}

		initKey, err := add.InitKey.InitKeyForSuite(s.CipherSuite)
		if err != nil {
			return nil, nil, err
		}
		if initKey == nil {
			return nil, nil, ValidationError("treekem: init key does not support the group's cipher suite")
		}

		at := LeafIndex(add.RosterIndex)
		if err := next.Roster.Add(at, add.InitKey.Credential); err != nil {
			return nil, nil, err
		}
		if err := next.Tree.AddLeaf(at, *initKey); err != nil {
			return nil, nil, err
		}
		return next, s.CipherSuite.zero(), nil

	case GroupOperationTypeUpdate:
		rootSecret, err := next.Tree.ApplyDirectPath(hs.SignerIndex, ctx, &op.Update.Path)
		if err != nil {
			return nil, nil, err
		}
		return next, rootSecret, nil

	case GroupOperationTypeRemove:
		at := LeafIndex(op.Remove.RemovedIndex)
		if at == s.Index {
			return nil, nil, ValidationError("treekem: we were removed from the group")
		}
		if at == hs.SignerIndex {
			return nil, nil, ValidationError("treekem: remove operation removes its own sender")
		}

		if err := next.Roster.Blank(at); err != nil {
			return nil, nil, err
		}
		if err := next.Tree.RemoveLeaf(at); err != nil {
			return nil, nil, err
		}

		rootSecret, err := next.Tree.ApplyDirectPath(hs.SignerIndex, ctx, &op.Remove.Path)
		if err != nil {
			return nil, nil, err
		}
		return next, rootSecret, nil

	case GroupOperationTypeInit:
		return nil, nil, ValidationError("treekem: init operations are never processed against a live group")
	}

	return nil, nil, ValidationError("treekem: malformed group operation")
}

// advance moves a worked copy of this state into the next epoch: bump the
// epoch, extend the transcript, and ratchet the key schedule forward under
// the new group context.
func (s *GroupState) advance(next *GroupState, op GroupOperation, rootSecret []byte) error {
	transcript, err := s.extendTranscript(op)
	if err != nil {
		return err
	}

	next.Epoch = s.Epoch + 1
	next.TranscriptHash = transcript

	ctx, err := next.groupContext()
	if err != nil {
		return err
	}

	next.Keys = s.Keys.Next(rootSecret, ctx)
	return nil
}

///
/// Accessors and helpers
///

// ApplicationSecret exposes the per-epoch secret from which message
// protection keys are derived.
func (s *GroupState) ApplicationSecret() []byte {
	return dup(s.Keys.ApplicationSecret)
}

func (s *GroupState) groupContext() ([]byte, error) {
	return syntax.Marshal(GroupContext{
		GroupID:        s.GroupID,
		Epoch:          s.Epoch,
		TranscriptHash: s.TranscriptHash,
	})
}

func (s *GroupState) extendTranscript(op GroupOperation) ([]byte, error) {
	opData, err := syntax.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("treekem: marshal of group operation failed: %v", err)
	}

	h := s.CipherSuite.newDigest()
	h.Write(s.TranscriptHash)
	h.Write(opData)
	return h.Sum(nil), nil
}

func (s GroupState) Equals(o GroupState) bool {
	suite := s.CipherSuite == o.CipherSuite
	groupID := bytes.Equal(s.GroupID, o.GroupID)
	epoch := s.Epoch == o.Epoch
	roster := s.Roster.Equals(o.Roster)
	tree := s.Tree.Equals(&o.Tree)
	transcript := bytes.Equal(s.TranscriptHash, o.TranscriptHash)
	return suite && groupID && epoch && roster && tree && transcript
}

func (s GroupState) clone() *GroupState {
	return &GroupState{
		CipherSuite:    s.CipherSuite,
		GroupID:        dup(s.GroupID),
		Epoch:          s.Epoch,
		Roster:         s.Roster.clone(),
		Tree:           *s.Tree.clone(),
		TranscriptHash: dup(s.TranscriptHash),
		Index:          s.Index,
		IdentityPriv:   s.IdentityPriv,
		Keys:           s.Keys,
	}
}
