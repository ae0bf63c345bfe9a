package commands

import (
	"encoding/hex"
	"fmt"
	"os"

	syntax "github.com/cisco/go-tls-syntax"
	"github.com/spf13/cobra"

	"github.com/arisechat/treekem"
)

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <initkey file>",
		Short: "Decode and verify an init key bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var uik treekem.UserInitKey
			if _, err := syntax.Unmarshal(data, &uik); err != nil {
				return fmt.Errorf("not a valid init key bundle: %v", err)
			}

			if err := uik.Upcast(treekem.CryptoContext{}); err != nil {
				return fmt.Errorf("init key fails validation: %v", err)
			}

			fmt.Printf("ID:       %s\n", hex.EncodeToString(uik.ID))
			fmt.Printf("Identity: %s\n", uik.Credential.Identity())
			fmt.Printf("Scheme:   %s\n", uik.Credential.Scheme())
			for i, cs := range uik.CipherSuites {
				fmt.Printf("Suite:    %s (key %s...)\n", cs, hex.EncodeToString(uik.InitKeys[i].Data[:8]))
			}

			if err := uik.VerifySignature(); err != nil {
				return fmt.Errorf("signature: INVALID: %v", err)
			}
			fmt.Printf("Signature: ok\n")
			return nil
		},
	}
	return cmd
}
