package main

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// newWarmCmd primes the on-disk symbol cache (C3) for every file under
// root with a registered language, so the first real findSymbol/
// getSymbolsOverview call after `serve` starts is a cache hit rather than
// a live LS round trip.
func newWarmCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Prime the symbol cache for every supported file under root",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			warmed, failed := 0, 0
			err = filepath.WalkDir(flagRoot, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				if _, ok := a.registry.LanguageForPath(path); !ok {
					return nil
				}
				server, err := a.manager.ServerFor(ctx, path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warm: %s: %v\n", path, err)
					failed++
					return nil
				}
				if _, err := server.RequestDocumentSymbols(ctx, path); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warm: %s: %v\n", path, err)
					failed++
					return nil
				}
				warmed++
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "warmed %d files, %d failed\n", warmed, failed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Deadline for warming the whole tree")
	return cmd
}
