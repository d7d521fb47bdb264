package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/corpusrag/internal/tui"
	"github.com/Aman-CERP/corpusrag/internal/ui"
)

func newTUICmd(a *app) *cobra.Command {
	var (
		k       int
		noColor bool
	)

	cmd := &cobra.Command{
		Use:         "tui",
		Short:       "Search the index interactively",
		Long:        `Open a full-screen search box over the index. Enter runs a query, arrows scroll, Esc quits.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationStdio: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			embedder, err := newEmbedder(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = embedder.Close() }()

			retriever, err := openRetriever(ctx, a.cfg, embedder, nil, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = retriever.Close() }()

			return tui.Run(ctx, retriever, tui.Options{
				Input:   os.Stdin,
				Output:  os.Stdout,
				NoColor: noColor || ui.DetectNoColor(),
				K:       k,
				Title:   a.cfg.Index.PersistDir,
			})
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of results (default: retriever.k)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")

	return cmd
}
