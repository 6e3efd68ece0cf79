// Command symbolsrv runs the Language-Server Orchestration and Symbol
// Engine: a per-project fleet of Language Servers behind a content-cached
// symbol facade, exposed as a small set of dispatchable tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagRoot   string
	flagConfig string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "symbolsrv",
		Short: "Language-server-backed symbol orchestration and editing",
	}
	root.PersistentFlags().StringVar(&flagRoot, "root", ".", "Project root to activate")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to symbolsrv.yml (default: <root>/.serena/symbolsrv.yml)")
	root.AddCommand(newServeCmd(), newProbeCmd(), newWarmCmd())
	return root
}
