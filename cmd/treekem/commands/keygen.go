package commands

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	syntax "github.com/cisco/go-tls-syntax"
	"github.com/spf13/cobra"

	"github.com/arisechat/treekem"
)

func schemeByName(name string) (treekem.SignatureScheme, error) {
	for _, ss := range []treekem.SignatureScheme{
		treekem.Ed25519,
		treekem.ECDSA_SECP256R1_SHA256,
		treekem.ECDSA_SECP521R1_SHA512,
	} {
		if ss.String() == name {
			return ss, nil
		}
	}
	return 0, fmt.Errorf("unknown signature scheme %q", name)
}

func suiteByName(name string) (treekem.CipherSuite, error) {
	for _, cs := range []treekem.CipherSuite{
		treekem.X25519_AES128GCM_SHA256_Ed25519,
		treekem.P256_AES128GCM_SHA256_P256,
		treekem.X25519_CHACHA20POLY1305_SHA256_Ed25519,
		treekem.P521_AES256GCM_SHA512_P521,
	} {
		if cs.String() == name {
			return cs, nil
		}
	}
	return 0, fmt.Errorf("unknown cipher suite %q", name)
}

func identityKeyPath(identity string) string {
	return filepath.Join(home, identity+".identity")
}

func writeIdentityKey(identity string, priv treekem.SignaturePrivateKey) error {
	data, err := syntax.Marshal(priv)
	if err != nil {
		return err
	}
	return os.WriteFile(identityKeyPath(identity), data, 0o600)
}

func readIdentityKey(identity string) (treekem.SignaturePrivateKey, error) {
	var priv treekem.SignaturePrivateKey

	data, err := os.ReadFile(identityKeyPath(identity))
	if err != nil {
		return priv, err
	}

	_, err = syntax.Unmarshal(data, &priv)
	return priv, err
}

func keygenCmd() *cobra.Command {
	var schemeName string

	cmd := &cobra.Command{
		Use:   "keygen <identity>",
		Short: "Generate a long-term identity key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, err := schemeByName(schemeName)
			if err != nil {
				return err
			}

			priv, err := scheme.Generate()
			if err != nil {
				return err
			}

			if err := writeIdentityKey(args[0], priv); err != nil {
				return err
			}

			fmt.Printf("Identity:   %s\n", args[0])
			fmt.Printf("Scheme:     %s\n", scheme)
			fmt.Printf("Public key: %s\n", hex.EncodeToString(priv.PublicKey.Data))
			return nil
		},
	}

	cmd.Flags().StringVar(&schemeName, "scheme", treekem.Ed25519.String(), "signature scheme")
	return cmd
}
