package commands

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arisechat/treekem"
)

func randomSecret(size int) []byte {
	out := make([]byte, size)
	rand.Read(out)
	return out
}

// demoCmd runs an in-process group through its lifecycle: formation, an
// update from every member, an add, and a remove, checking at each epoch
// that every member derived the same application secret.
func demoCmd() *cobra.Command {
	var size int
	var suiteName string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run an in-process group through update, add, and remove",
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := suiteByName(suiteName)
			if err != nil {
				return err
			}
			if size < 2 {
				return fmt.Errorf("the demo needs at least two members")
			}

			scheme := suite.Scheme()
			secretSize := suite.Constants().SecretSize
			groupID := randomSecret(16)

			idPrivs := make([]treekem.SignaturePrivateKey, size)
			creds := make([]treekem.Credential, size)
			leafSecrets := make([][]byte, size)
			for i := 0; i < size; i++ {
				if idPrivs[i], err = scheme.Generate(); err != nil {
					return err
				}
				name := fmt.Sprintf("member-%d", i)
				creds[i] = *treekem.NewBasicCredential([]byte(name), scheme, &idPrivs[i])
				leafSecrets[i] = randomSecret(secretSize)
			}

			states := make([]*treekem.GroupState, size)
			for i := 0; i < size; i++ {
				states[i], err = treekem.NewGroupStateWithMembers(
					groupID, suite, treekem.LeafIndex(i), idPrivs[i], creds, leafSecrets)
				if err != nil {
					return err
				}
			}
			report(states)

			// Every member refreshes its leaf in turn
			for i := range states {
				hs, next, err := states[i].CreateUpdate(randomSecret(secretSize))
				if err != nil {
					return err
				}
				if err := broadcast(states, i, hs, next); err != nil {
					return err
				}
				report(states)
			}

			// The first member adds a newcomer
			newPriv, err := scheme.Generate()
			if err != nil {
				return err
			}
			newCred := treekem.NewBasicCredential([]byte("newcomer"), scheme, &newPriv)
			uik, err := treekem.NewUserInitKey(randomSecret(16), newCred, []treekem.CipherSuite{suite})
			if err != nil {
				return err
			}

			hs, next, err := states[0].CreateAdd(treekem.LeafIndex(size), *uik)
			if err != nil {
				return err
			}
			if err := broadcast(states, 0, hs, next); err != nil {
				return err
			}
			fmt.Printf("added %q at leaf %d\n", "newcomer", size)
			report(states)

			// The last member removes the first
			last := len(states) - 1
			hs, next, err = states[last].CreateRemove(0, randomSecret(secretSize))
			if err != nil {
				return err
			}
			removed := states[0]
			if err := broadcast(states[1:], last-1, hs, next); err != nil {
				return err
			}
			if _, err := removed.ProcessHandshake(hs); err == nil {
				return fmt.Errorf("removed member still able to follow the group")
			}
			fmt.Printf("removed member-0; locked out as expected\n")
			report(states[1:])

			return nil
		},
	}

	cmd.Flags().IntVar(&size, "members", 4, "number of founding members")
	cmd.Flags().StringVar(&suiteName, "suite",
		treekem.X25519_AES128GCM_SHA256_Ed25519.String(), "cipher suite")
	return cmd
}

// broadcast installs the creator's next state and has every other member
// process the handshake.
func broadcast(states []*treekem.GroupState, creator int, hs *treekem.Handshake, next *treekem.GroupState) error {
	states[creator] = next
	for i := range states {
		if i == creator {
			continue
		}

		processed, err := states[i].ProcessHandshake(hs)
		if err != nil {
			return fmt.Errorf("member %d rejected the handshake: %v", i, err)
		}
		states[i] = processed
	}
	return nil
}

func report(states []*treekem.GroupState) {
	base := states[0].ApplicationSecret()
	for _, s := range states[1:] {
		if !bytes.Equal(base, s.ApplicationSecret()) {
			fmt.Printf("epoch %d: application secrets DIVERGED\n", states[0].Epoch)
			return
		}
	}
	fmt.Printf("epoch %d: %d members converged on %s...\n",
		states[0].Epoch, len(states), hex.EncodeToString(base[:8]))
}
