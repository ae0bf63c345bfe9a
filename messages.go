package treekem

import (
	"fmt"

	syntax "github.com/cisco/go-tls-syntax"
)

type ProtocolVersion uint8

const ProtocolVersionInitial ProtocolVersion = 0x00

///
/// Direct path messages
///

// DirectPathNodeMessage carries a node's new public key and the node's secret
// encrypted for everyone in the resolution of the node's copath child.  The
// first entry on a path belongs to the sender's leaf and carries no secrets.
type DirectPathNodeMessage struct {
	PublicKey   HPKEPublicKey
	NodeSecrets []HPKECiphertext `tls:"head=2"`
}

// DirectPathMessage carries one entry per node on the sender's direct path,
// ordered leaf first, root last.
type DirectPathMessage struct {
	Nodes []DirectPathNodeMessage `tls:"head=2"`
}

///
/// Group operations
///

type GroupOperationType uint8

const (
	GroupOperationTypeInit   GroupOperationType = 0
	GroupOperationTypeAdd    GroupOperationType = 1
	GroupOperationTypeUpdate GroupOperationType = 2
	GroupOperationTypeRemove GroupOperationType = 3
)

func (t GroupOperationType) ValidForTLS() error {
	return validateEnum(t, GroupOperationTypeInit, GroupOperationTypeAdd,
		GroupOperationTypeUpdate, GroupOperationTypeRemove)
}

// GroupInit is only ever valid as the implicit first operation of a group.
// Processing one against a live group is a validation error.
type GroupInit struct{}

// GroupAdd introduces a new member at the given roster index, which may name
// a blank slot or extend the roster by exactly one entry.
type GroupAdd struct {
	RosterIndex uint32
	InitKey     UserInitKey
}

// GroupUpdate refreshes the sender's leaf and direct path with new entropy.
type GroupUpdate struct {
	Path DirectPathMessage
}

// GroupRemove evicts the member at the removed index and refreshes the
// sender's direct path so the removed member's knowledge goes stale.
type GroupRemove struct {
	RemovedIndex uint32
	Path         DirectPathMessage
}

// GroupOperation is a tagged union over the four operation kinds.  Exactly
// one arm is non-nil.
type GroupOperation struct {
	Init   *GroupInit
	Add    *GroupAdd
	Update *GroupUpdate
	Remove *GroupRemove
}

func (op GroupOperation) Type() GroupOperationType {
	switch {
	case op.Init != nil:
		return GroupOperationTypeInit
	case op.Add != nil:
		return GroupOperationTypeAdd
	case op.Update != nil:
		return GroupOperationTypeUpdate
	case op.Remove != nil:
		return GroupOperationTypeRemove
	default:
		panic("treekem.messages: malformed GroupOperation")
	}
}

func (op GroupOperation) MarshalTLS() ([]byte, error) {
	s := syntax.NewWriteStream()
	opType := op.Type()
	err := s.Write(opType)
	if err != nil {
		return nil, err
	}

	switch opType {
	case GroupOperationTypeInit:
		err = s.Write(op.Init)
	case GroupOperationTypeAdd:
		err = s.Write(op.Add)
	case GroupOperationTypeUpdate:
		err = s.Write(op.Update)
	case GroupOperationTypeRemove:
		err = s.Write(op.Remove)
	default:
		err = fmt.Errorf("treekem.messages: GroupOperationType not allowed")
	}

	if err != nil {
		return nil, err
	}

	return s.Data(), nil
}

func (op *GroupOperation) UnmarshalTLS(data []byte) (int, error) {
	s := syntax.NewReadStream(data)
	var opType GroupOperationType
	_, err := s.Read(&opType)
	if err != nil {
		return 0, err
	}

	switch opType {
	case GroupOperationTypeInit:
		op.Init = new(GroupInit)
		_, err = s.Read(op.Init)
	case GroupOperationTypeAdd:
		op.Add = new(GroupAdd)
		_, err = s.Read(op.Add)
	case GroupOperationTypeUpdate:
		op.Update = new(GroupUpdate)
		_, err = s.Read(op.Update)
	case GroupOperationTypeRemove:
		op.Remove = new(GroupRemove)
		_, err = s.Read(op.Remove)
	default:
		err = fmt.Errorf("treekem.messages: GroupOperationType not allowed")
	}

	if err != nil {
		return 0, err
	}
	return s.Position(), nil
}

///
/// Handshake
///

// Handshake binds a group operation to the epoch it was created against.
//
//	signature    = Sign(identity_key, new_transcript_hash)
//	confirmation = HMAC(confirmation_key, new_transcript_hash || signature)
//
// where new_transcript_hash extends the prior transcript hash with the
// serialized operation.
type Handshake struct {
	PriorEpoch   Epoch
	Operation    GroupOperation
	SignerIndex  LeafIndex
	Signature    Signature
	Confirmation []byte `tls:"head=1"`
}
