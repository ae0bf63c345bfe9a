package treekem

import "fmt"

// Every fallible operation in this package reports one of the error kinds
// below.  None of them is fatal to the group: a failed handshake leaves the
// caller's GroupState untouched and a later or corrected message may be
// retried against it.

// ValidationError reports a structural or invariant violation: mismatched
// parallel arrays, duplicate cipher suites, a malformed direct path, or an
// out-of-range index.
type ValidationError string

func (e ValidationError) Error() string {
	return "treekem: invalid input: " + string(e)
}

// SignatureError reports a failed signature verification.
type SignatureError string

func (e SignatureError) Error() string {
	return "treekem: signature: " + string(e)
}

// ConfirmationError reports that the confirmation MAC on a handshake did not
// match the locally derived confirmation key.  It is distinct from
// SignatureError: the signature verified, but the sender does not hold the
// epoch secrets it claims to.
type ConfirmationError string

func (e ConfirmationError) Error() string {
	return "treekem: confirmation: " + string(e)
}

// EpochMismatchError reports a handshake bound to an epoch other than the
// current one, i.e. a stale replay or a premature message.
type EpochMismatchError struct {
	Have Epoch
	Got  Epoch
}

func (e EpochMismatchError) Error() string {
	return fmt.Sprintf("treekem: epoch mismatch, have %d, got %d", e.Have, e.Got)
}

// EncryptionError reports a hybrid-encryption failure.  All underlying causes
// collapse into this one value so that error content cannot be used as a
// decryption oracle.
type EncryptionError struct{}

func (e EncryptionError) Error() string {
	return "treekem: encryption failure"
}
