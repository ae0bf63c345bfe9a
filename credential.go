package treekem

import (
	"fmt"
	"reflect"

	syntax "github.com/cisco/go-tls-syntax"
)

type CredentialType uint8

const (
	CredentialTypeBasic   CredentialType = 0
	CredentialTypeInvalid CredentialType = 255
)

func (ct CredentialType) ValidForTLS() error {
	return validateEnum(ct, CredentialTypeBasic)
}

// struct {
//     opaque identity<0..2^16-1>;
//     SignatureScheme algorithm;
//     SignaturePublicKey public_key;
// } BasicCredential;
type BasicCredential struct {
	Identity        []byte `tls:"head=2"`
	SignatureScheme SignatureScheme
	PublicKey       SignaturePublicKey
}

// Credential names a member and carries the public half of its long-term
// identity key.  The private half is present only on the member's own copy
// and never leaves the process.
type Credential struct {
	Basic *BasicCredential

	privateKey *SignaturePrivateKey
}

func NewBasicCredential(identity []byte, scheme SignatureScheme, priv *SignaturePrivateKey) *Credential {
	basic := &BasicCredential{
		Identity:        identity,
		SignatureScheme: scheme,
		PublicKey:       priv.PublicKey,
	}
	return &Credential{Basic: basic, privateKey: priv}
}

// compare the public aspects
func (c Credential) Equals(o Credential) bool {
	switch c.Type() {
	case CredentialTypeBasic:
		return reflect.DeepEqual(c.Basic, o.Basic)
	default:
		return false
	}
}

func (c Credential) Type() CredentialType {
	switch {
	case c.Basic != nil:
		return CredentialTypeBasic
	default:
		return CredentialTypeInvalid
	}
}

func (c Credential) Identity() []byte {
	switch c.Type() {
	case CredentialTypeBasic:
		return c.Basic.Identity
	default:
		panic("treekem.credential: malformed credential")
	}
}

func (c Credential) Scheme() SignatureScheme {
	switch c.Type() {
	case CredentialTypeBasic:
		return c.Basic.SignatureScheme
	default:
		panic("treekem.credential: malformed credential")
	}
}

func (c Credential) PublicKey() *SignaturePublicKey {
	switch c.Type() {
	case CredentialTypeBasic:
		return &c.Basic.PublicKey
	default:
		panic("treekem.credential: malformed credential")
	}
}

func (c Credential) MarshalTLS() ([]byte, error) {
	s := syntax.NewWriteStream()
	credentialType := c.Type()
	err := s.Write(credentialType)
	if err != nil {
		return nil, err
	}

	switch credentialType {
	case CredentialTypeBasic:
		err = s.Write(c.Basic)
	default:
		err = fmt.Errorf("treekem.credential: CredentialType not allowed")
	}

	if err != nil {
		return nil, err
	}

	return s.Data(), nil
}

func (c *Credential) UnmarshalTLS(data []byte) (int, error) {
	s := syntax.NewReadStream(data)
	var credentialType CredentialType
	_, err := s.Read(&credentialType)
	if err != nil {
		return 0, err
	}

	switch credentialType {
	case CredentialTypeBasic:
		c.Basic = new(BasicCredential)
		_, err = s.Read(c.Basic)
	default:
		err = fmt.Errorf("treekem.credential: CredentialType not allowed")
	}

	if err != nil {
		return 0, err
	}
	return s.Position(), nil
}
