package commands

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	syntax "github.com/cisco/go-tls-syntax"
	"github.com/spf13/cobra"

	"github.com/arisechat/treekem"
)

// initKeyProfile is the TOML description of an init key to publish:
//
//	identity      = "alice"
//	scheme        = "Ed25519"
//	cipher_suites = ["X25519_AES128GCM_SHA256_Ed25519"]
type initKeyProfile struct {
	Identity     string   `toml:"identity"`
	Scheme       string   `toml:"scheme"`
	CipherSuites []string `toml:"cipher_suites"`
}

func initKeyCmd() *cobra.Command {
	var profilePath, outPath string

	cmd := &cobra.Command{
		Use:   "initkey",
		Short: "Publish an init key bundle for joining groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			var profile initKeyProfile
			if _, err := toml.DecodeFile(profilePath, &profile); err != nil {
				return err
			}
			if profile.Identity == "" || len(profile.CipherSuites) == 0 {
				return fmt.Errorf("profile must name an identity and at least one cipher suite")
			}

			scheme, err := schemeByName(profile.Scheme)
			if err != nil {
				return err
			}

			priv, err := readIdentityKey(profile.Identity)
			if err != nil {
				return fmt.Errorf("no identity key for %q, run keygen first: %v", profile.Identity, err)
			}
			cred := treekem.NewBasicCredential([]byte(profile.Identity), scheme, &priv)

			suites := make([]treekem.CipherSuite, len(profile.CipherSuites))
			for i, name := range profile.CipherSuites {
				if suites[i], err = suiteByName(name); err != nil {
					return err
				}
			}

			id := make([]byte, 16)
			if _, err := rand.Read(id); err != nil {
				return err
			}

			uik, err := treekem.NewUserInitKey(id, cred, suites)
			if err != nil {
				return err
			}

			data, err := syntax.Marshal(uik)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return err
			}

			fmt.Printf("Init key for %q written to %s (%d bytes, %d suites)\n",
				profile.Identity, outPath, len(data), len(suites))
			return nil
		},
	}

	cmd.Flags().StringVar(&profilePath, "profile", "initkey.toml", "TOML profile to build from")
	cmd.Flags().StringVar(&outPath, "out", "initkey.bin", "output file")
	return cmd
}
