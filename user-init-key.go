package treekem

import (
	syntax "github.com/cisco/go-tls-syntax"
)

// UserInitKey is the out-of-band join bundle: one ephemeral HPKE public key
// per supported cipher suite, the owner's credential, and a signature over
// everything else under the owner's identity key.  The parallel arrays
// SupportedVersions, CipherSuites, and InitKeys are index-aligned and must
// have equal lengths.
type UserInitKey struct {
	ID                []byte
	SupportedVersions []ProtocolVersion
	CipherSuites      []CipherSuite
	InitKeys          []HPKEPublicKey
	Credential        Credential
	Signature         Signature

	// Present only on the bundle's originator, aligned with InitKeys.
	privateKeys []HPKEPrivateKey
}

// The serialized form of everything but the signature, used as the message
// the signature is computed over.
type userInitKeyTBS struct {
	ID                []byte            `tls:"head=1"`
	SupportedVersions []ProtocolVersion `tls:"head=1"`
	CipherSuites      []CipherSuite     `tls:"head=1"`
	InitKeys          []HPKEPublicKey   `tls:"head=2"`
	Credential        Credential
}

func (uik UserInitKey) toBeSigned() ([]byte, error) {
	return syntax.Marshal(userInitKeyTBS{
		ID:                uik.ID,
		SupportedVersions: uik.SupportedVersions,
		CipherSuites:      uik.CipherSuites,
		InitKeys:          uik.InitKeys,
		Credential:        uik.Credential,
	})
}

func (uik UserInitKey) MarshalTLS() ([]byte, error) {
	tbs, err := uik.toBeSigned()
	if err != nil {
		return nil, err
	}

	sig, err := syntax.Marshal(uik.Signature)
	if err != nil {
		return nil, err
	}
	return append(tbs, sig...), nil
}

func (uik *UserInitKey) UnmarshalTLS(data []byte) (int, error) {
	s := syntax.NewReadStream(data)
	var tbs userInitKeyTBS
	_, err := s.Read(&tbs)
	if err == nil {
		_, err = s.Read(&uik.Signature)
	}
	if err != nil {
		return 0, err
	}

	uik.ID = tbs.ID
	uik.SupportedVersions = tbs.SupportedVersions
	uik.CipherSuites = tbs.CipherSuites
	uik.InitKeys = tbs.InitKeys
	uik.Credential = tbs.Credential
	uik.privateKeys = nil
	return s.Position(), nil
}

// NewUserInitKey generates a fresh key pair for each of the given cipher
// suites and signs the bundle under the credential's identity key.  The
// returned bundle retains the private keys; its serialized form does not.
func NewUserInitKey(id []byte, cred *Credential, suites []CipherSuite) (*UserInitKey, error) {
	seen := map[CipherSuite]bool{}
	for _, cs := range suites {
		if seen[cs] {
			return nil, ValidationError("duplicate cipher suite in init key")
		}
		seen[cs] = true
	}

	if cred.privateKey == nil {
		return nil, ValidationError("credential has no private key to sign with")
	}

	uik := &UserInitKey{
		ID:         dup(id),
		Credential: *cred,
	}
	for _, cs := range suites {
		priv, err := cs.hpke().Generate()
		if err != nil {
			return nil, err
		}

		uik.SupportedVersions = append(uik.SupportedVersions, ProtocolVersionInitial)
		uik.CipherSuites = append(uik.CipherSuites, cs)
		uik.InitKeys = append(uik.InitKeys, priv.PublicKey)
		uik.privateKeys = append(uik.privateKeys, priv)
	}

	tbs, err := uik.toBeSigned()
	if err != nil {
		return nil, err
	}

	sig, err := cred.Scheme().Sign(cred.privateKey, tbs)
	if err != nil {
		return nil, err
	}
	uik.Signature = Signature{sig}

	return uik, nil
}

// Validate checks the structural invariants: the parallel arrays have equal
// lengths and the listed cipher suites are pairwise distinct.  The check is
// independent of the order the suites appear in.
func (uik UserInitKey) Validate() error {
	if len(uik.SupportedVersions) != len(uik.CipherSuites) {
		return ValidationError("supported versions and cipher suites differ in length")
	}
	if len(uik.InitKeys) != len(uik.CipherSuites) {
		return ValidationError("init keys and cipher suites differ in length")
	}
	if uik.privateKeys != nil && len(uik.privateKeys) != len(uik.CipherSuites) {
		return ValidationError("private keys and cipher suites differ in length")
	}

	seen := map[CipherSuite]bool{}
	for _, cs := range uik.CipherSuites {
		if seen[cs] {
			return ValidationError("duplicate cipher suite in init key")
		}
		seen[cs] = true
	}

	return nil
}

// VerifySignature reconstructs the signed subset in its canonical wire form
// and verifies it under the identity key named in the credential.
func (uik UserInitKey) VerifySignature() error {
	tbs, err := uik.toBeSigned()
	if err != nil {
		return err
	}

	scheme := uik.Credential.Scheme()
	if !scheme.Verify(uik.Credential.PublicKey(), tbs, uik.Signature.Data) {
		return SignatureError("init key signature failed to verify")
	}
	return nil
}

// InitKeyForSuite returns the public key offered for the given suite, or
// (nil, nil) when the suite is not offered.  Validation runs first so the
// result can never depend on the order of a malformed bundle.
func (uik UserInitKey) InitKeyForSuite(suite CipherSuite) (*HPKEPublicKey, error) {
	if err := uik.Validate(); err != nil {
		return nil, err
	}

	for i, cs := range uik.CipherSuites {
		if cs == suite {
			return &uik.InitKeys[i], nil
		}
	}
	return nil, nil
}

// PrivateKeyForSuite is the private-side counterpart of InitKeyForSuite; it
// returns (nil, nil) unless this copy of the bundle is the originator's.
func (uik UserInitKey) PrivateKeyForSuite(suite CipherSuite) (*HPKEPrivateKey, error) {
	if err := uik.Validate(); err != nil {
		return nil, err
	}

	if uik.privateKeys == nil {
		return nil, nil
	}

	for i, cs := range uik.CipherSuites {
		if cs == suite {
			return &uik.privateKeys[i], nil
		}
	}
	return nil, nil
}
