package treekem

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"math/big"

	"github.com/cisco/go-hpke"
	syntax "github.com/cisco/go-tls-syntax"
	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/hkdf"
)

///
/// Cipher suites
///

type CipherSuite uint16

const (
	X25519_AES128GCM_SHA256_Ed25519        CipherSuite = 0x0001
	P256_AES128GCM_SHA256_P256             CipherSuite = 0x0002
	X25519_CHACHA20POLY1305_SHA256_Ed25519 CipherSuite = 0x0003
	P521_AES256GCM_SHA512_P521             CipherSuite = 0x0010
)

func (cs CipherSuite) ValidForTLS() error {
	return validateEnum(cs,
		X25519_AES128GCM_SHA256_Ed25519,
		P256_AES128GCM_SHA256_P256,
		X25519_CHACHA20POLY1305_SHA256_Ed25519,
		P521_AES256GCM_SHA512_P521)
}

func (cs CipherSuite) String() string {
	switch cs {
	case X25519_AES128GCM_SHA256_Ed25519:
		return "X25519_AES128GCM_SHA256_Ed25519"
	case P256_AES128GCM_SHA256_P256:
		return "P256_AES128GCM_SHA256_P256"
	case X25519_CHACHA20POLY1305_SHA256_Ed25519:
		return "X25519_CHACHA20POLY1305_SHA256_Ed25519"
	case P521_AES256GCM_SHA512_P521:
		return "P521_AES256GCM_SHA512_P521"
	}
	return "UnknownCipherSuite"
}

type constants struct {
	SecretSize int
	HashSize   int
	KEMKeySize int
}

func (cs CipherSuite) Constants() constants {
	switch cs {
	case X25519_AES128GCM_SHA256_Ed25519, X25519_CHACHA20POLY1305_SHA256_Ed25519:
		return constants{
			SecretSize: 32,
			HashSize:   32,
			KEMKeySize: 32,
		}
	case P256_AES128GCM_SHA256_P256:
		return constants{
			SecretSize: 32,
			HashSize:   32,
			KEMKeySize: 65,
		}
	case P521_AES256GCM_SHA512_P521:
		return constants{
			SecretSize: 64,
			HashSize:   64,
			KEMKeySize: 133,
		}
	}

	panic("Unsupported ciphersuite")
}

func (cs CipherSuite) Scheme() SignatureScheme {
	switch cs {
	case X25519_AES128GCM_SHA256_Ed25519, X25519_CHACHA20POLY1305_SHA256_Ed25519:
		return Ed25519
	case P256_AES128GCM_SHA256_P256:
		return ECDSA_SECP256R1_SHA256
	case P521_AES256GCM_SHA512_P521:
		return ECDSA_SECP521R1_SHA512
	}

	panic("Unsupported ciphersuite")
}

func (cs CipherSuite) newDigest() hash.Hash {
	switch cs {
	case X25519_AES128GCM_SHA256_Ed25519, P256_AES128GCM_SHA256_P256,
		X25519_CHACHA20POLY1305_SHA256_Ed25519:
		return sha256.New()

	case P521_AES256GCM_SHA512_P521:
		return sha512.New()
	}

	panic("Unsupported ciphersuite")
}

func (cs CipherSuite) hashFunc() func() hash.Hash {
	switch cs {
	case X25519_AES128GCM_SHA256_Ed25519, P256_AES128GCM_SHA256_P256,
		X25519_CHACHA20POLY1305_SHA256_Ed25519:
		return sha256.New

	case P521_AES256GCM_SHA512_P521:
		return sha512.New
	}

	panic("Unsupported ciphersuite")
}

func (cs CipherSuite) Digest(data []byte) []byte {
	d := cs.newDigest()
	d.Write(data)
	return d.Sum(nil)
}

func (cs CipherSuite) newHMAC(key []byte) hash.Hash {
	return hmac.New(cs.hashFunc(), key)
}

func (cs CipherSuite) zero() []byte {
	return make([]byte, cs.Constants().SecretSize)
}

///
/// HKDF with labeled expansion
///

func (cs CipherSuite) hkdfExtract(salt, ikm []byte) []byte {
	return hkdf.Extract(cs.hashFunc(), ikm, salt)
}

func (cs CipherSuite) hkdfExpand(secret, info []byte, size int) []byte {
	out := make([]byte, size)
	r := hkdf.Expand(cs.hashFunc(), secret, info)
	if _, err := r.Read(out); err != nil {
		panic(fmt.Errorf("treekem.crypto: hkdf expand failure %v", err))
	}
	return out
}

type hkdfLabel struct {
	Length  uint16
	Label   []byte `tls:"head=1"`
	Context []byte `tls:"head=4"`
}

func (cs CipherSuite) hkdfExpandLabel(secret []byte, label string, context []byte, length int) []byte {
	mlabel := hkdfLabel{
		Length:  uint16(length),
		Label:   []byte("treekem " + label),
		Context: context,
	}

	info, err := syntax.Marshal(mlabel)
	if err != nil {
		panic(fmt.Errorf("treekem.crypto: hkdf label marshal failure %v", err))
	}

	return cs.hkdfExpand(secret, info, length)
}

func (cs CipherSuite) deriveSecret(secret []byte, label string, context []byte) []byte {
	contextHash := cs.Digest(context)
	size := cs.Constants().SecretSize
	return cs.hkdfExpandLabel(secret, label, contextHash, size)
}

///
/// HPKE
///

type HPKECiphertext struct {
	KEMOutput  []byte `tls:"head=2"`
	Ciphertext []byte `tls:"head=4"`
}

type HPKEPublicKey struct {
	Data []byte `tls:"head=2"`
}

func (k HPKEPublicKey) Equals(o HPKEPublicKey) bool {
	return bytes.Equal(k.Data, o.Data)
}

type HPKEPrivateKey struct {
	Data      []byte `tls:"head=2"`
	PublicKey HPKEPublicKey
}

type hpkeInstance struct {
	BaseSuite CipherSuite
	Suite     hpke.CipherSuite
}

func (cs CipherSuite) hpke() hpkeInstance {
	switch cs {
	case X25519_AES128GCM_SHA256_Ed25519:
		suite, _ := hpke.AssembleCipherSuite(hpke.DHKEM_X25519, hpke.KDF_HKDF_SHA256, hpke.AEAD_AESGCM128)
		return hpkeInstance{cs, suite}

	case P256_AES128GCM_SHA256_P256:
		suite, _ := hpke.AssembleCipherSuite(hpke.DHKEM_P256, hpke.KDF_HKDF_SHA256, hpke.AEAD_AESGCM128)
		return hpkeInstance{cs, suite}

	case X25519_CHACHA20POLY1305_SHA256_Ed25519:
		suite, _ := hpke.AssembleCipherSuite(hpke.DHKEM_X25519, hpke.KDF_HKDF_SHA256, hpke.AEAD_CHACHA20POLY1305)
		return hpkeInstance{cs, suite}

	case P521_AES256GCM_SHA512_P521:
		suite, _ := hpke.AssembleCipherSuite(hpke.DHKEM_P521, hpke.KDF_HKDF_SHA512, hpke.AEAD_AESGCM256)
		return hpkeInstance{cs, suite}
	}

	panic("Unsupported ciphersuite")
}

func (h hpkeInstance) Generate() (HPKEPrivateKey, error) {
	priv, pub, err := h.Suite.KEM.GenerateKeyPair(rand.Reader)
	if err != nil {
		return HPKEPrivateKey{}, EncryptionError{}
	}

	key := HPKEPrivateKey{
		Data:      h.Suite.KEM.SerializePrivate(priv),
		PublicKey: HPKEPublicKey{h.Suite.KEM.Serialize(pub)},
	}
	return key, nil
}

// Derive produces a key pair deterministically from a secret, so that two
// members deriving from the same path secret land on the same key pair.
func (h hpkeInstance) Derive(seed []byte) (HPKEPrivateKey, error) {
	digest := h.BaseSuite.Digest(seed)
	priv, pub, err := h.Suite.KEM.DeriveKeyPair(digest)
	if err != nil {
		return HPKEPrivateKey{}, EncryptionError{}
	}

	key := HPKEPrivateKey{
		Data:      h.Suite.KEM.SerializePrivate(priv),
		PublicKey: HPKEPublicKey{h.Suite.KEM.Serialize(pub)},
	}
	return key, nil
}

func (h hpkeInstance) Encrypt(pub HPKEPublicKey, aad, pt []byte) (HPKECiphertext, error) {
	pkR, err := h.Suite.KEM.Deserialize(pub.Data)
	if err != nil {
		return HPKECiphertext{}, EncryptionError{}
	}

	enc, ctx, err := hpke.SetupBaseS(h.Suite, rand.Reader, pkR, nil)
	if err != nil {
		return HPKECiphertext{}, EncryptionError{}
	}

	ct := ctx.Seal(aad, pt)
	return HPKECiphertext{enc, ct}, nil
}

func (h hpkeInstance) Decrypt(priv HPKEPrivateKey, aad []byte, ct HPKECiphertext) ([]byte, error) {
	skR, err := h.Suite.KEM.DeserializePrivate(priv.Data)
	if err != nil {
		return nil, EncryptionError{}
	}

	ctx, err := hpke.SetupBaseR(h.Suite, skR, ct.KEMOutput, nil)
	if err != nil {
		return nil, EncryptionError{}
	}

	pt, err := ctx.Open(aad, ct.Ciphertext)
	if err != nil {
		return nil, EncryptionError{}
	}
	return pt, nil
}

///
/// Signing
///

type Signature struct {
	Data []byte `tls:"head=2"`
}

type SignaturePublicKey struct {
	Data []byte `tls:"head=2"`
}

func (p SignaturePublicKey) Equals(o SignaturePublicKey) bool {
	return bytes.Equal(p.Data, o.Data)
}

type SignaturePrivateKey struct {
	Data      []byte `tls:"head=2"`
	PublicKey SignaturePublicKey
}

type SignatureScheme uint16

const (
	ECDSA_SECP256R1_SHA256 SignatureScheme = 0x0403
	ECDSA_SECP521R1_SHA512 SignatureScheme = 0x0603
	Ed25519                SignatureScheme = 0x0807
)

func (ss SignatureScheme) ValidForTLS() error {
	return validateEnum(ss, ECDSA_SECP256R1_SHA256, ECDSA_SECP521R1_SHA512, Ed25519)
}

func (ss SignatureScheme) String() string {
	switch ss {
	case ECDSA_SECP256R1_SHA256:
		return "ECDSA_SECP256R1_SHA256"
	case ECDSA_SECP521R1_SHA512:
		return "ECDSA_SECP521R1_SHA512"
	case Ed25519:
		return "Ed25519"
	}
	return "UnknownSignatureScheme"
}

func (ss SignatureScheme) curve() elliptic.Curve {
	switch ss {
	case ECDSA_SECP256R1_SHA256:
		return elliptic.P256()
	case ECDSA_SECP521R1_SHA512:
		return elliptic.P521()
	}

	panic("Unsupported signature scheme")
}

func (ss SignatureScheme) sigDigest(message []byte) []byte {
	switch ss {
	case ECDSA_SECP256R1_SHA256:
		d := sha256.Sum256(message)
		return d[:]
	case ECDSA_SECP521R1_SHA512:
		d := sha512.Sum512(message)
		return d[:]
	}

	panic("Unsupported signature scheme")
}

func (ss SignatureScheme) Generate() (SignaturePrivateKey, error) {
	switch ss {
	case ECDSA_SECP256R1_SHA256, ECDSA_SECP521R1_SHA512:
		curve := ss.curve()
		priv, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return SignaturePrivateKey{}, err
		}

		pub := elliptic.Marshal(curve, priv.PublicKey.X, priv.PublicKey.Y)
		key := SignaturePrivateKey{
			Data:      priv.D.Bytes(),
			PublicKey: SignaturePublicKey{pub},
		}
		return key, nil

	case Ed25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return SignaturePrivateKey{}, err
		}

		key := SignaturePrivateKey{
			Data:      priv,
			PublicKey: SignaturePublicKey{pub},
		}
		return key, nil
	}

	panic("Unsupported signature scheme")
}

// Derive produces a key pair deterministically from a pre-seed.
func (ss SignatureScheme) Derive(preSeed []byte) (SignaturePrivateKey, error) {
	switch ss {
	case ECDSA_SECP256R1_SHA256, ECDSA_SECP521R1_SHA512:
		curve := ss.curve()
		d := big.NewInt(0).SetBytes(ss.sigDigest(preSeed))
		d.Mod(d, curve.Params().N)

		x, y := curve.Params().ScalarBaseMult(d.Bytes())
		pub := elliptic.Marshal(curve, x, y)
		key := SignaturePrivateKey{
			Data:      d.Bytes(),
			PublicKey: SignaturePublicKey{pub},
		}
		return key, nil

	case Ed25519:
		d := sha256.Sum256(preSeed)
		priv := ed25519.NewKeyFromSeed(d[:])
		pub := priv.Public().(ed25519.PublicKey)
		key := SignaturePrivateKey{
			Data:      priv,
			PublicKey: SignaturePublicKey{pub},
		}
		return key, nil
	}

	panic("Unsupported signature scheme")
}

func (ss SignatureScheme) Sign(priv *SignaturePrivateKey, message []byte) ([]byte, error) {
	switch ss {
	case ECDSA_SECP256R1_SHA256, ECDSA_SECP521R1_SHA512:
		ecPriv := &ecdsa.PrivateKey{
			PublicKey: ecdsa.PublicKey{Curve: ss.curve()},
			D:         big.NewInt(0).SetBytes(priv.Data),
		}
		return ecdsa.SignASN1(rand.Reader, ecPriv, ss.sigDigest(message))

	case Ed25519:
		priv25519 := ed25519.PrivateKey(priv.Data)
		return ed25519.Sign(priv25519, message), nil
	}

	panic("Unsupported signature scheme")
}

func (ss SignatureScheme) Verify(pub *SignaturePublicKey, message, signature []byte) bool {
	switch ss {
	case ECDSA_SECP256R1_SHA256, ECDSA_SECP521R1_SHA512:
		curve := ss.curve()
		x, y := elliptic.Unmarshal(curve, pub.Data)
		if x == nil {
			return false
		}

		ecPub := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
		return ecdsa.VerifyASN1(ecPub, ss.sigDigest(message), signature)

	case Ed25519:
		pub25519 := ed25519.PublicKey(pub.Data)
		return ed25519.Verify(pub25519, message, signature)
	}

	panic("Unsupported signature scheme")
}
