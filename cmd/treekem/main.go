package main

import (
	"github.com/etclab/mu"

	"github.com/arisechat/treekem/cmd/treekem/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		mu.Fatalf("error: %v", err)
	}
}
