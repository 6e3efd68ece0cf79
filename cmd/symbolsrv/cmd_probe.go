package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexcodex/lspsymbols/internal/symtree"
)

// newProbeCmd generalizes the teacher's single-language "lsp" probe
// command into one that goes through the full manager/registry stack
// instead of a per-language client factory: it activates root, lets the
// registry pick the language server for --file's extension, and prints
// its document symbols (and references at --line/--character, if given).
func newProbeCmd() *cobra.Command {
	var file string
	var line, character int
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Start the language server for a file and print its symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("probe: --file is required")
			}
			a, err := newApp(flagRoot, flagConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := a.manager.Activate(ctx, flagRoot); err != nil {
				return err
			}
			defer a.manager.ShutdownAll(context.Background())

			server, err := a.manager.ServerFor(ctx, file)
			if err != nil {
				return err
			}

			tree, err := server.RequestDocumentSymbols(ctx, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d symbols in %s\n", len(tree.Nodes), file)
			for _, node := range tree.Nodes {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", node.Kind, node.Name)
			}

			if cmd.Flags().Changed("line") {
				pos := symtree.Position{Line: line, Character: character}
				refs, err := server.RequestReferences(ctx, file, pos, true)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d references at %d:%d\n", len(refs), line, character)
				for _, ref := range refs {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s:%d:%d\n", ref.URI, ref.Range.Start.Line, ref.Range.Start.Character)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "File to probe (required)")
	cmd.Flags().IntVar(&line, "line", 0, "Zero-based line for a references lookup")
	cmd.Flags().IntVar(&character, "character", 0, "Zero-based character offset for a references lookup")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Deadline for the probe")
	return cmd
}
