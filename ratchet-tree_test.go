package treekem

import (
	"testing"

	"github.com/stretchr/testify/require"

	syntax "github.com/cisco/go-tls-syntax"
)

// newTestRatchetTree builds one member's view of a tree over the given leaf
// secrets: every leaf's public key is known, only the member's own leaf
// private key is held.
func newTestRatchetTree(t *testing.T, suite CipherSuite, me LeafIndex, secrets [][]byte) *RatchetTree {
	tree := NewRatchetTree(suite)
	for i := range secrets {
		priv, err := tree.nodePrivateKey(secrets[i])
		require.Nil(t, err)

		err = tree.AddLeaf(LeafIndex(i), priv.PublicKey)
		require.Nil(t, err)

		if LeafIndex(i) == me {
			err = tree.Merge(me, secrets[i])
			require.Nil(t, err)
		}
	}
	return tree
}

func TestRatchetTreeAddLeaf(t *testing.T) {
	suite := P256_AES128GCM_SHA256_P256
	tree := NewRatchetTree(suite)

	priv, err := suite.hpke().Generate()
	require.Nil(t, err)

	// Adds extend the tree one leaf at a time, doubling capacity as needed
	require.Nil(t, tree.AddLeaf(0, priv.PublicKey))
	require.Equal(t, tree.size(), LeafCount(1))

	require.Nil(t, tree.AddLeaf(1, priv.PublicKey))
	require.Equal(t, tree.size(), LeafCount(2))

	require.Nil(t, tree.AddLeaf(2, priv.PublicKey))
	require.Equal(t, tree.size(), LeafCount(4))
	require.Equal(t, len(tree.Nodes), 7)

	// An add beyond the next free slot is rejected
	err = tree.AddLeaf(5, priv.PublicKey)
	require.Error(t, err)
	require.IsType(t, ValidationError(""), err)
}

func TestRatchetTreeUpdateOwnPath(t *testing.T) {
	suite := X25519_AES128GCM_SHA256_Ed25519
	secrets := [][]byte{randomBytes(32)}
	tree := newTestRatchetTree(t, suite, 0, secrets)

	leafSecret := randomBytes(32)
	path, rootSecret, err := tree.UpdateDirectPath(0, []byte{}, leafSecret)
	require.Nil(t, err)
	require.Equal(t, len(path.Nodes), 1)
	require.Empty(t, path.Nodes[0].NodeSecrets)
	require.Equal(t, rootSecret, tree.RootSecret())
}

func TestRatchetTreeConvergence(t *testing.T) {
	convergence := func(suite CipherSuite) func(t *testing.T) {
		return func(t *testing.T) {
			size := suite.Constants().SecretSize
			secrets := [][]byte{
				randomBytes(size), randomBytes(size),
				randomBytes(size), randomBytes(size),
			}

			treeA := newTestRatchetTree(t, suite, 0, secrets)
			treeB := newTestRatchetTree(t, suite, 1, secrets)
			require.True(t, treeA.Equals(treeB))

			context := []byte("group context")
			leafSecret := randomBytes(size)

			path, rootA, err := treeA.UpdateDirectPath(0, context, leafSecret)
			require.Nil(t, err)

			rootB, err := treeB.ApplyDirectPath(0, context, path)
			require.Nil(t, err)

			require.Equal(t, rootA, rootB)
			require.True(t, treeA.Equals(treeB))
		}
	}

	for _, suite := range supportedSuites {
		t.Run(suite.String(), convergence(suite))
	}
}

func TestRatchetTreeApplyFailures(t *testing.T) {
	suite := X25519_AES128GCM_SHA256_Ed25519
	secrets := [][]byte{
		randomBytes(32), randomBytes(32),
		randomBytes(32), randomBytes(32),
	}

	context := []byte("group context")
	leafSecret := randomBytes(32)

	treeA := newTestRatchetTree(t, suite, 0, secrets)
	path, _, err := treeA.UpdateDirectPath(0, context, leafSecret)
	require.Nil(t, err)

	// Wrong path length
	treeB := newTestRatchetTree(t, suite, 1, secrets)
	short := &DirectPathMessage{Nodes: path.Nodes[:len(path.Nodes)-1]}
	_, err = treeB.ApplyDirectPath(0, context, short)
	require.Error(t, err)
	require.IsType(t, ValidationError(""), err)

	// Secrets on the leaf entry
	treeB = newTestRatchetTree(t, suite, 1, secrets)
	bad := &DirectPathMessage{Nodes: append([]DirectPathNodeMessage{}, path.Nodes...)}
	bad.Nodes[0].NodeSecrets = []HPKECiphertext{{}}
	_, err = treeB.ApplyDirectPath(0, context, bad)
	require.Error(t, err)
	require.IsType(t, ValidationError(""), err)

	// Tampered ciphertext
	treeB = newTestRatchetTree(t, suite, 1, secrets)
	data, err := syntax.Marshal(path)
	require.Nil(t, err)
	tampered := &DirectPathMessage{}
	_, err = syntax.Unmarshal(data, tampered)
	require.Nil(t, err)
	tampered.Nodes[1].NodeSecrets[0].Ciphertext[0] ^= 0xFF
	_, err = treeB.ApplyDirectPath(0, context, tampered)
	require.Error(t, err)
	require.Equal(t, err, EncryptionError{})

	// A carried public key that does not match the derived one
	treeB = newTestRatchetTree(t, suite, 1, secrets)
	forged := &DirectPathMessage{}
	_, err = syntax.Unmarshal(data, forged)
	require.Nil(t, err)
	wrongPriv, err := suite.hpke().Generate()
	require.Nil(t, err)
	forged.Nodes[len(forged.Nodes)-1].PublicKey = wrongPriv.PublicKey
	_, err = treeB.ApplyDirectPath(0, context, forged)
	require.Error(t, err)
	require.IsType(t, ValidationError(""), err)
}

func TestRatchetTreeRemove(t *testing.T) {
	suite := X25519_AES128GCM_SHA256_Ed25519
	secrets := [][]byte{
		randomBytes(32), randomBytes(32),
		randomBytes(32), randomBytes(32),
	}

	context := []byte("group context")

	treeA := newTestRatchetTree(t, suite, 0, secrets)
	treeC := newTestRatchetTree(t, suite, 2, secrets)

	// Both remaining members blank leaf 3, then A refreshes its path
	require.Nil(t, treeA.RemoveLeaf(3))
	require.Nil(t, treeC.RemoveLeaf(3))
	require.False(t, treeA.occupied(3))

	leafSecret := randomBytes(32)
	path, rootA, err := treeA.UpdateDirectPath(0, context, leafSecret)
	require.Nil(t, err)

	rootC, err := treeC.ApplyDirectPath(0, context, path)
	require.Nil(t, err)
	require.Equal(t, rootA, rootC)

	// Removing a blank leaf is an error
	err = treeA.RemoveLeaf(3)
	require.Error(t, err)
	require.IsType(t, ValidationError(""), err)
}

func TestRatchetTreeDerivationSteps(t *testing.T) {
	tree := NewRatchetTree(X25519_AES128GCM_SHA256_Ed25519)
	secret := randomBytes(32)

	// The node and path steps are deterministic and mutually independent
	require.Equal(t, tree.nodeStep(secret), tree.nodeStep(secret))
	require.Equal(t, tree.pathStep(secret), tree.pathStep(secret))
	require.NotEqual(t, tree.nodeStep(secret), tree.pathStep(secret))

	// Neither step returns its input
	require.NotEqual(t, tree.nodeStep(secret), secret)
	require.NotEqual(t, tree.pathStep(secret), secret)
}

func TestRatchetTreeMarshalRoundTrip(t *testing.T) {
	suite := X25519_AES128GCM_SHA256_Ed25519
	secrets := [][]byte{randomBytes(32), randomBytes(32)}
	tree := newTestRatchetTree(t, suite, 0, secrets)

	data, err := syntax.Marshal(tree)
	require.Nil(t, err)

	tree2 := NewRatchetTree(suite)
	_, err = syntax.Unmarshal(data, tree2)
	require.Nil(t, err)

	// Only the public view survives the wire
	require.True(t, tree.Equals(tree2))
	require.Empty(t, tree2.Secrets.PrivateKeys)
}
