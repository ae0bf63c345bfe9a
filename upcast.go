package treekem

import "fmt"

// Wire structures carry cryptographic values as opaque byte strings until a
// cipher-suite context is known.  Upcasting is the second pass that
// reinterprets each opaque field for the now-resolved algorithms, failing
// with a ValidationError when a field cannot belong to that algorithm.  No
// cryptographic operation runs on a structure before its upcast succeeds.

type CryptoContext struct {
	suite      CipherSuite
	haveSuite  bool
	scheme     SignatureScheme
	haveScheme bool
}

func (ctx CryptoContext) SetCipherSuite(suite CipherSuite) CryptoContext {
	ctx.suite = suite
	ctx.haveSuite = true
	return ctx
}

func (ctx CryptoContext) SetSignatureScheme(scheme SignatureScheme) CryptoContext {
	ctx.scheme = scheme
	ctx.haveScheme = true
	return ctx
}

// Upcaster is implemented by every wire structure holding opaque
// cryptographic values.
type Upcaster interface {
	Upcast(ctx CryptoContext) error
}

func sigPublicKeySize(scheme SignatureScheme) int {
	switch scheme {
	case Ed25519:
		return 32
	case ECDSA_SECP256R1_SHA256:
		return 65
	case ECDSA_SECP521R1_SHA512:
		return 133
	}

	panic("Unsupported signature scheme")
}

func (k *HPKEPublicKey) Upcast(ctx CryptoContext) error {
	if !ctx.haveSuite {
		return ValidationError("upcast of DH key without a cipher suite")
	}

	if size := ctx.suite.Constants().KEMKeySize; len(k.Data) != size {
		return ValidationError(
			fmt.Sprintf("DH key is %d bytes, expected %d for %v", len(k.Data), size, ctx.suite))
	}
	return nil
}

func (ct *HPKECiphertext) Upcast(ctx CryptoContext) error {
	if !ctx.haveSuite {
		return ValidationError("upcast of ciphertext without a cipher suite")
	}

	if size := ctx.suite.Constants().KEMKeySize; len(ct.KEMOutput) != size {
		return ValidationError("ciphertext KEM output has the wrong size")
	}

	// Every AEAD in our suites carries a 16-byte tag
	if len(ct.Ciphertext) < 16 {
		return ValidationError("ciphertext shorter than an AEAD tag")
	}
	return nil
}

func (sig *Signature) Upcast(ctx CryptoContext) error {
	if !ctx.haveScheme {
		return ValidationError("upcast of signature without a scheme")
	}

	switch ctx.scheme {
	case Ed25519:
		if len(sig.Data) != 64 {
			return ValidationError("Ed25519 signature must be 64 bytes")
		}
	case ECDSA_SECP256R1_SHA256, ECDSA_SECP521R1_SHA512:
		// DER-encoded (r, s); exact size varies
		if len(sig.Data) < 8 || len(sig.Data) > 150 {
			return ValidationError("ECDSA signature has an implausible size")
		}
	default:
		return ValidationError("unknown signature scheme")
	}
	return nil
}

func (c *Credential) Upcast(ctx CryptoContext) error {
	if c.Type() != CredentialTypeBasic {
		return ValidationError("unsupported credential type")
	}

	scheme := c.Scheme()
	if err := scheme.ValidForTLS(); err != nil {
		return ValidationError("unknown signature scheme in credential")
	}

	if len(c.Basic.PublicKey.Data) != sigPublicKeySize(scheme) {
		return ValidationError("identity key has the wrong size for its scheme")
	}
	return nil
}

func (uik *UserInitKey) Upcast(ctx CryptoContext) error {
	if err := uik.Validate(); err != nil {
		return err
	}

	for i := range uik.InitKeys {
		if err := uik.CipherSuites[i].ValidForTLS(); err != nil {
			return ValidationError("unknown cipher suite in init key")
		}

		entryCtx := ctx.SetCipherSuite(uik.CipherSuites[i])
		if err := uik.InitKeys[i].Upcast(entryCtx); err != nil {
			return err
		}
	}

	if err := uik.Credential.Upcast(ctx); err != nil {
		return err
	}

	sigCtx := ctx.SetSignatureScheme(uik.Credential.Scheme())
	return uik.Signature.Upcast(sigCtx)
}

func (p *DirectPathMessage) Upcast(ctx CryptoContext) error {
	for i := range p.Nodes {
		if err := p.Nodes[i].PublicKey.Upcast(ctx); err != nil {
			return err
		}
		for j := range p.Nodes[i].NodeSecrets {
			if err := p.Nodes[i].NodeSecrets[j].Upcast(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (op *GroupOperation) Upcast(ctx CryptoContext) error {
	switch op.Type() {
	case GroupOperationTypeInit:
		return nil
	case GroupOperationTypeAdd:
		return op.Add.InitKey.Upcast(ctx)
	case GroupOperationTypeUpdate:
		return op.Update.Path.Upcast(ctx)
	case GroupOperationTypeRemove:
		return op.Remove.Path.Upcast(ctx)
	}
	return ValidationError("malformed group operation")
}

func (hs *Handshake) Upcast(ctx CryptoContext) error {
	if err := hs.Operation.Upcast(ctx); err != nil {
		return err
	}

	if err := hs.Signature.Upcast(ctx); err != nil {
		return err
	}

	if len(hs.Confirmation) == 0 {
		return ValidationError("handshake carries no confirmation")
	}
	return nil
}
