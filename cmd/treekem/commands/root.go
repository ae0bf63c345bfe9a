package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var home string

func Execute() error {
	root := &cobra.Command{
		Use:           "treekem",
		Short:         "Group key agreement over a TreeKEM ratchet tree",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".treekem")
			}
			return os.MkdirAll(home, 0o700)
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "key directory (default ~/.treekem)")

	root.AddCommand(keygenCmd(), initKeyCmd(), inspectCmd(), demoCmd())
	return root.Execute()
}
