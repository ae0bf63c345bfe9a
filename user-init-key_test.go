package treekem

import (
	"testing"

	syntax "github.com/cisco/go-tls-syntax"
	"github.com/stretchr/testify/require"
)

func newTestCredential(t *testing.T, identity string) *Credential {
	priv, err := Ed25519.Generate()
	require.Nil(t, err)
	return NewBasicCredential([]byte(identity), Ed25519, &priv)
}

func TestUserInitKeyLifecycle(t *testing.T) {
	cred := newTestCredential(t, "alice")

	uik, err := NewUserInitKey([]byte{0, 1, 2, 3}, cred, supportedSuites)
	require.Nil(t, err)
	require.Nil(t, uik.Validate())
	require.Nil(t, uik.VerifySignature())

	for _, suite := range supportedSuites {
		pub, err := uik.InitKeyForSuite(suite)
		require.Nil(t, err)
		require.NotNil(t, pub)
		require.Equal(t, len(pub.Data), suite.Constants().KEMKeySize)

		// The originator's copy holds the matching private key
		priv, err := uik.PrivateKeyForSuite(suite)
		require.Nil(t, err)
		require.NotNil(t, priv)
		require.True(t, priv.PublicKey.Equals(*pub))
	}

	// An unoffered suite is absent, not an error
	pub, err := uik.InitKeyForSuite(CipherSuite(0x7777))
	require.Nil(t, err)
	require.Nil(t, pub)
}

func TestUserInitKeyMarshalRoundTrip(t *testing.T) {
	cred := newTestCredential(t, "bob")

	uik, err := NewUserInitKey([]byte{4, 5, 6, 7}, cred, supportedSuites)
	require.Nil(t, err)

	data, err := syntax.Marshal(uik)
	require.Nil(t, err)

	var uik2 UserInitKey
	_, err = syntax.Unmarshal(data, &uik2)
	require.Nil(t, err)

	// The signature survives the wire and still verifies
	require.Nil(t, uik2.Validate())
	require.Nil(t, uik2.VerifySignature())
	require.Equal(t, uik.ID, uik2.ID)
	require.Equal(t, uik.CipherSuites, uik2.CipherSuites)
	require.Equal(t, uik.InitKeys, uik2.InitKeys)

	// The private keys do not
	priv, err := uik2.PrivateKeyForSuite(supportedSuites[0])
	require.Nil(t, err)
	require.Nil(t, priv)
}

func TestUserInitKeyValidation(t *testing.T) {
	cred := newTestCredential(t, "carol")

	// Duplicate suites are rejected at creation
	_, err := NewUserInitKey(nil, cred, []CipherSuite{
		X25519_AES128GCM_SHA256_Ed25519,
		X25519_AES128GCM_SHA256_Ed25519,
	})
	require.Error(t, err)
	require.IsType(t, ValidationError(""), err)

	// Mismatched parallel arrays are rejected regardless of suite order
	uik, err := NewUserInitKey(nil, cred, supportedSuites)
	require.Nil(t, err)

	mangled := *uik
	mangled.SupportedVersions = mangled.SupportedVersions[:1]
	err = mangled.Validate()
	require.Error(t, err)
	require.IsType(t, ValidationError(""), err)

	mangled = *uik
	mangled.InitKeys = mangled.InitKeys[:2]
	err = mangled.Validate()
	require.Error(t, err)

	mangled = *uik
	mangled.CipherSuites = []CipherSuite{
		P256_AES128GCM_SHA256_P256, P256_AES128GCM_SHA256_P256,
		P256_AES128GCM_SHA256_P256, P256_AES128GCM_SHA256_P256,
	}
	err = mangled.Validate()
	require.Error(t, err)

	_, err = mangled.InitKeyForSuite(P256_AES128GCM_SHA256_P256)
	require.Error(t, err)
}

func TestUserInitKeyBadSignature(t *testing.T) {
	cred := newTestCredential(t, "dave")

	uik, err := NewUserInitKey(nil, cred, supportedSuites)
	require.Nil(t, err)

	uik.ID = []byte("not what was signed")
	err = uik.VerifySignature()
	require.Error(t, err)
	require.IsType(t, SignatureError(""), err)
}
