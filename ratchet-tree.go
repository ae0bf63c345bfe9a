package treekem

import (
	"fmt"
	"reflect"

	syntax "github.com/cisco/go-tls-syntax"
)

///
/// RatchetTreeNode
///

// A node holds a DH key pair once one has been derived for it.  The public
// half is shared state; the private half lives in TreeSecrets and is present
// only on members whose leaf lies in the node's subtree.  A node with no key
// material at all is "blank".
type RatchetTreeNode struct {
	PublicKey *HPKEPublicKey
}

// Compare the public aspects of two nodes
func (n RatchetTreeNode) Equals(o RatchetTreeNode) bool {
	return reflect.DeepEqual(n.PublicKey, o.PublicKey)
}

func (n RatchetTreeNode) Clone() RatchetTreeNode {
	cloned := RatchetTreeNode{}
	if n.PublicKey != nil {
		pub := HPKEPublicKey{dup(n.PublicKey.Data)}
		cloned.PublicKey = &pub
	}
	return cloned
}

///
/// OptionalRatchetNode
///

type OptionalRatchetNode struct {
	Node *RatchetTreeNode `tls:"optional"`
}

func (n OptionalRatchetNode) blank() bool {
	return n.Node == nil
}

// Compare node values
func (n OptionalRatchetNode) Equals(o OptionalRatchetNode) bool {
	switch {
	case n.blank() != o.blank():
		return false
	case n.blank():
		return true
	default:
		return n.Node.Equals(*o.Node)
	}
}

func (n OptionalRatchetNode) Clone() OptionalRatchetNode {
	cloned := OptionalRatchetNode{}
	if !n.blank() {
		node := n.Node.Clone()
		cloned.Node = &node
	}
	return cloned
}

///
/// RatchetTree
///

// RatchetTree is the binary key tree over the group's leaves, held as a flat
// node array.  Leaf capacity is always a power of two, so the tree is
// complete and internal node count = leaf count - 1; leaves without a member
// are blank.  Leaf i of the roster lives at node index 2*i.
type RatchetTree struct {
	Nodes       []OptionalRatchetNode `tls:"head=4"`
	CipherSuite CipherSuite           `tls:"omit"`
	Secrets     *TreeSecrets          `tls:"omit"`
}

func NewRatchetTree(cs CipherSuite) *RatchetTree {
	return &RatchetTree{
		Nodes:       []OptionalRatchetNode{},
		CipherSuite: cs,
		Secrets:     NewTreeSecrets(),
	}
}

type ratchetTreeNodeList struct {
	Data []OptionalRatchetNode `tls:"head=4"`
}

func (t RatchetTree) MarshalTLS() ([]byte, error) {
	enc, err := syntax.Marshal(ratchetTreeNodeList{Data: t.Nodes})
	if err != nil {
		return nil, fmt.Errorf("treekem.tree: marshal failed: %v", err)
	}
	return enc, nil
}

func (t *RatchetTree) UnmarshalTLS(data []byte) (int, error) {
	var nodeList ratchetTreeNodeList
	read, err := syntax.Unmarshal(data, &nodeList)
	if err != nil {
		return 0, fmt.Errorf("treekem.tree: unmarshal failed: %v", err)
	}
	t.Nodes = nodeList.Data
	if t.Secrets == nil {
		t.Secrets = NewTreeSecrets()
	}
	return read, nil
}

// AddLeaf installs the given public key at a leaf.  The index must land
// inside the current leaf capacity or grow it by exactly one level; anything
// farther out fails validation.  All nodes strictly above the new leaf are
// blanked: the new member cannot know their secrets, so from its perspective
// they are compromised until the next path refresh.
func (t *RatchetTree) AddLeaf(index LeafIndex, key HPKEPublicKey) error {
	if index > LeafIndex(t.size()) {
		return ValidationError("add index outside tree")
	}

	if index == LeafIndex(t.size()) {
		newCap := leafCapacity(LeafCount(index) + 1)
		for i := len(t.Nodes); i < int(nodeWidth(newCap)); i++ {
			t.Nodes = append(t.Nodes, OptionalRatchetNode{})
		}
	}

	n := toNodeIndex(index)
	pub := HPKEPublicKey{dup(key.Data)}
	t.Nodes[n] = OptionalRatchetNode{Node: &RatchetTreeNode{PublicKey: &pub}}
	delete(t.Secrets.PrivateKeys, n)

	for _, v := range dirpath(n, t.size()) {
		if v == n {
			continue
		}
		t.blankNode(v)
	}
	return nil
}

// UpdateDirectPath refreshes the leaf's whole direct path from a fresh leaf
// secret.  Each ancestor's secret is derived one-way from its child's; each
// ancestor's new secret is encrypted to the resolution of its child on the
// copath, so every other member can recover the value meant for it.  The
// returned message carries one entry per direct-path node, leaf first.
func (t *RatchetTree) UpdateDirectPath(from LeafIndex, context, leafSecret []byte) (*DirectPathMessage, []byte, error) {
	leafNode := toNodeIndex(from)
	if int(leafNode) >= len(t.Nodes) {
		return nil, nil, ValidationError("update index outside tree")
	}

	priv, err := t.nodePrivateKey(leafSecret)
	if err != nil {
		return nil, nil, err
	}
	t.ensureInit(leafNode)
	t.setPrivate(leafNode, priv)

	path := &DirectPathMessage{}
	path.Nodes = append(path.Nodes, DirectPathNodeMessage{
		PublicKey:   t.getPublic(leafNode),
		NodeSecrets: []HPKECiphertext{},
	})

	secrets := t.pathSecrets(leafNode, leafSecret)

	for _, v := range copath(leafNode, t.size()) {
		p := parent(v, t.size())
		pathSecret := secrets[p]

		priv, err := t.nodePrivateKey(pathSecret)
		if err != nil {
			return nil, nil, err
		}
		t.ensureInit(p)
		t.setPrivate(p, priv)

		pathNode := DirectPathNodeMessage{
			PublicKey:   t.getPublic(p),
			NodeSecrets: []HPKECiphertext{},
		}

		// encrypt the new secret to everyone below the copath node
		for _, rnode := range t.resolve(v) {
			ct, err := t.CipherSuite.hpke().Encrypt(t.getPublic(rnode), context, pathSecret)
			if err != nil {
				return nil, nil, EncryptionError{}
			}
			pathNode.NodeSecrets = append(pathNode.NodeSecrets, ct)
		}

		path.Nodes = append(path.Nodes, pathNode)
	}

	rootSecret := dup(secrets[t.rootIndex()])
	t.Secrets.RootSecret = rootSecret
	return path, rootSecret, nil
}

// ApplyDirectPath replays a received direct path message from the given
// leaf: install the carried public keys, decrypt the one secret addressed to
// a node we hold a private key for, re-derive every node above it, and check
// the derived public keys against the carried ones.
func (t *RatchetTree) ApplyDirectPath(from LeafIndex, context []byte, path *DirectPathMessage) ([]byte, error) {
	leafNode := toNodeIndex(from)
	if int(leafNode) >= len(t.Nodes) {
		return nil, ValidationError("sender index outside tree")
	}

	dp := dirpath(leafNode, t.size())
	if len(path.Nodes) != len(dp) {
		return nil, ValidationError(
			fmt.Sprintf("direct path length %d does not match tree %d", len(path.Nodes), len(dp)))
	}

	if len(path.Nodes[0].NodeSecrets) != 0 {
		return nil, ValidationError("leaf path node must carry no secrets")
	}

	for i, node := range dp {
		t.ensureInit(node)
		t.setPublic(node, path.Nodes[i].PublicKey)
	}

	overlap, pathSecret, err := t.decryptPathSecret(leafNode, context, path)
	if err != nil {
		return nil, err
	}

	rootSecret, err := t.implant(overlap, pathSecret)
	if err != nil {
		return nil, err
	}

	t.Secrets.RootSecret = rootSecret
	return rootSecret, nil
}

func (t *RatchetTree) decryptPathSecret(leafNode NodeIndex, context []byte, path *DirectPathMessage) (NodeIndex, []byte, error) {
	for i, curr := range copath(leafNode, t.size()) {
		res := t.resolve(curr)
		pathNode := path.Nodes[i+1]

		if len(pathNode.NodeSecrets) != len(res) {
			return 0, nil, ValidationError("malformed direct path node")
		}

		for idx, v := range res {
			if !t.hasPrivate(v) {
				continue
			}

			pathSecret, err := t.CipherSuite.hpke().Decrypt(t.getPrivate(v), context, pathNode.NodeSecrets[idx])
			if err != nil {
				return 0, nil, EncryptionError{}
			}

			return parent(curr, t.size()), pathSecret, nil
		}
	}

	return 0, nil, EncryptionError{}
}

// implant installs the path secret at the given node and re-derives upward
// to the root.  Every derived key pair must match the public key already in
// place; a mismatch means the sender lied about the path contents.
func (t *RatchetTree) implant(start NodeIndex, pathSecret []byte) ([]byte, error) {
	secrets := t.pathSecrets(start, pathSecret)

	for curr, secret := range secrets {
		if t.Nodes[curr].blank() {
			return nil, ValidationError("attempt to implant into a blank node")
		}

		priv, err := t.nodePrivateKey(secret)
		if err != nil {
			return nil, err
		}

		if !t.getPublic(curr).Equals(priv.PublicKey) {
			return nil, ValidationError("derived public key does not match direct path")
		}

		t.setPrivate(curr, priv)
	}

	return dup(secrets[t.rootIndex()]), nil
}

// Merge installs a leaf secret at an occupied leaf, deriving its key pair in
// place.  Used by a member to implant its own leaf key at group formation.
func (t *RatchetTree) Merge(index LeafIndex, secret []byte) error {
	curr := toNodeIndex(index)
	if int(curr) >= len(t.Nodes) || t.Nodes[curr].blank() {
		return ValidationError("cannot merge into a blank leaf")
	}

	priv, err := t.nodePrivateKey(secret)
	if err != nil {
		return err
	}

	if !t.getPublic(curr).Equals(priv.PublicKey) {
		return ValidationError("leaf secret does not match leaf public key")
	}

	t.setPrivate(curr, priv)
	return nil
}

// RemoveLeaf blanks the leaf and its whole direct path.  The removed
// member's knowledge of those nodes goes stale the moment the remover's
// refresh path lands on top of the blanks.
func (t *RatchetTree) RemoveLeaf(index LeafIndex) error {
	n := toNodeIndex(index)
	if int(n) >= len(t.Nodes) {
		return ValidationError("remove index outside tree")
	}
	if t.Nodes[n].blank() {
		return ValidationError("remove of a blank leaf")
	}

	for _, v := range dirpath(n, t.size()) {
		t.blankNode(v)
	}
	return nil
}

// RootSecret returns the secret left at the root by the last successful
// update or apply, the key schedule's input for the next epoch.
func (t *RatchetTree) RootSecret() []byte {
	return t.Secrets.RootSecret
}

func (t *RatchetTree) Equals(o *RatchetTree) bool {
	if len(t.Nodes) != len(o.Nodes) {
		return false
	}

	for i := range t.Nodes {
		if !t.Nodes[i].Equals(o.Nodes[i]) {
			return false
		}
	}
	return true
}

//// Tree helpers

// leaf capacity of the tree
func (t *RatchetTree) size() LeafCount {
	return leafWidth(NodeCount(len(t.Nodes)))
}

func (t *RatchetTree) occupied(l LeafIndex) bool {
	n := toNodeIndex(l)
	if int(n) >= len(t.Nodes) {
		return false
	}
	return !t.Nodes[n].blank()
}

func (t *RatchetTree) rootIndex() NodeIndex {
	return root(t.size())
}

func (t *RatchetTree) blankNode(n NodeIndex) {
	t.Nodes[n].Node = nil
	delete(t.Secrets.PrivateKeys, n)
}

func (t *RatchetTree) ensureInit(n NodeIndex) {
	if t.Nodes[n].Node == nil {
		t.Nodes[n].Node = &RatchetTreeNode{}
	}
}

func (t *RatchetTree) setPublic(n NodeIndex, pub HPKEPublicKey) {
	key := HPKEPublicKey{dup(pub.Data)}
	t.Nodes[n].Node.PublicKey = &key
	delete(t.Secrets.PrivateKeys, n)
}

func (t *RatchetTree) getPublic(n NodeIndex) HPKEPublicKey {
	return *t.Nodes[n].Node.PublicKey
}

func (t *RatchetTree) setPrivate(n NodeIndex, priv HPKEPrivateKey) {
	t.Secrets.PrivateKeys[n] = priv
	key := HPKEPublicKey{dup(priv.PublicKey.Data)}
	t.Nodes[n].Node.PublicKey = &key
}

func (t *RatchetTree) getPrivate(n NodeIndex) HPKEPrivateKey {
	return t.Secrets.PrivateKeys[n]
}

func (t *RatchetTree) hasPrivate(n NodeIndex) bool {
	_, ok := t.Secrets.PrivateKeys[n]
	return ok
}

// One-way derivation steps.  A node's key pair derives from its node secret,
// and a parent's path secret derives from its child's; neither step can be
// run backwards.
func (t *RatchetTree) nodeStep(pathSecret []byte) []byte {
	return t.CipherSuite.hkdfExpandLabel(pathSecret, "node", []byte{}, t.CipherSuite.Constants().SecretSize)
}

func (t *RatchetTree) pathStep(pathSecret []byte) []byte {
	return t.CipherSuite.hkdfExpandLabel(pathSecret, "path", []byte{}, t.CipherSuite.Constants().SecretSize)
}

func (t *RatchetTree) nodePrivateKey(pathSecret []byte) (HPKEPrivateKey, error) {
	return t.CipherSuite.hpke().Derive(t.nodeStep(pathSecret))
}

// pathSecrets maps every node from start to the root to its path secret,
// deriving each parent's secret from its child's.
func (t *RatchetTree) pathSecrets(start NodeIndex, pathSecret []byte) map[NodeIndex][]byte {
	secrets := map[NodeIndex][]byte{}

	curr := start
	secrets[curr] = dup(pathSecret)

	for curr != t.rootIndex() {
		next := parent(curr, t.size())
		secrets[next] = t.pathStep(secrets[curr])
		curr = next
	}

	return secrets
}

// resolve computes the encryption audience below a node: the node itself if
// it has a key, otherwise the concatenated resolutions of its children.
func (t *RatchetTree) resolve(index NodeIndex) []NodeIndex {
	if !t.Nodes[index].blank() {
		return []NodeIndex{index}
	}

	// Resolution of a blank leaf is the empty list
	if level(index) == 0 {
		return []NodeIndex{}
	}

	l := t.resolve(left(index))
	r := t.resolve(right(index, t.size()))
	return append(l, r...)
}

func (t RatchetTree) clone() *RatchetTree {
	nodes := make([]OptionalRatchetNode, len(t.Nodes))
	for i, node := range t.Nodes {
		nodes[i] = node.Clone()
	}

	return &RatchetTree{
		Nodes:       nodes,
		CipherSuite: t.CipherSuite,
		Secrets:     t.Secrets.Clone(),
	}
}
