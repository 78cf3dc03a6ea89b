package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agenthands/kgfuse/internal/app"
	"github.com/agenthands/kgfuse/internal/reporter"
)

var (
	flagRunID  string
	flagOutput string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage and write the configured artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			summary, err := a.Engine.Run(ctx)
			if perr := printJSON(cmd, summary); perr != nil {
				return perr
			}
			return err
		})
	},
}

var provenanceCmd = &cobra.Command{
	Use:   "provenance",
	Short: "Tag scanner-detected CVEs with NESSUS provenance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Engine.TagProvenance(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"corrected": n})
		})
	},
}

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Match NESSUS CVEs to NVD CVEs and write SAME_AS edges",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			runID := flagRunID
			if runID == "" {
				runID = uuid.NewString()
			}
			summary, err := a.Engine.Align(ctx, runID)
			if summary == nil {
				return err
			}
			if path := a.Config.Export.MatchesCSV; path != "" {
				data, cerr := reporter.Matches(summary.Matches)
				if cerr == nil {
					cerr = reporter.WriteFile(path, data)
				}
				if cerr != nil {
					return fmt.Errorf("matches csv: %w", cerr)
				}
			}
			if perr := printJSON(cmd, summary); perr != nil {
				return perr
			}
			return err
		})
	},
}

var fuseCmd = &cobra.Command{
	Use:   "fuse",
	Short: "Fuse equivalence classes into CVE_UNIFIED nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			summary, err := a.Engine.Fuse(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		})
	},
}

var impactsCmd = &cobra.Command{
	Use:   "impacts",
	Short: "Infer host to service IMPACTS edges across SAME_AS",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Engine.PropagateImpacts(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"paths": n})
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the owl:sameAs cross-references as Turtle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			triples, err := a.Engine.CrossReferences(ctx)
			if err != nil {
				return err
			}
			data, err := reporter.Turtle(triples)
			if err != nil {
				return err
			}
			path := flagOutput
			if path == "" {
				path = a.Config.Export.CrossRefTurtle
			}
			if path == "" || path == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := reporter.WriteFile(path, data); err != nil {
				return err
			}
			a.Log.Info("cross-references exported", "path", path, "triples", len(triples))
			return nil
		})
	},
}

func init() {
	alignCmd.Flags().StringVar(&flagRunID, "run-id", "", "Run identifier stamped on new edges (default: random UUID)")
	exportCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Turtle output path, - for stdout (default: export.crossref_turtle)")
}
