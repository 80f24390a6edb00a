/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Convert and index the document corpus",
	Long: `Convert supported documents in the corpus directory to Markdown and build
the search index. Runs index the corpus on first use; this command reports
what was found.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	return withEnvironment(cmd, func(ctx context.Context, env *environment) error {
		corpus := env.services.Corpus
		result, err := corpus.Index(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Corpus: %s\n", corpus.Dir())
		_, _ = fmt.Fprintf(out, "Documents: %d\n", result.Documents)
		_, _ = fmt.Fprintf(out, "Chunks: %d\n", result.Chunks)
		_, _ = fmt.Fprintf(out, "Converted: %d (skipped %d, failed %d)\n", result.Converted, result.Skipped, result.Failed)
		return nil
	})
}
