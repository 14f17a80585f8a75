package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/warp/authz-report/recon"
	memstore "github.com/warp/authz-report/recon/store"
	"github.com/warp/authz-report/service"
	"github.com/warp/authz-report/source"
	"github.com/warp/authz-report/source/archive"
	"github.com/warp/authz-report/source/folder"
)

type runOptions struct {
	archive      string
	fixedTermDir string
	commonDir    string
	out          string
	ephemeral    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build one report and write it to a file",
		Long: `Build one report from a zip archive (--archive) or from a fixed-term
folder plus a common folder (--fixed-term-dir, --common-dir).

The run is recorded in the configured database unless --ephemeral is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.archive, "archive", "", "Zip archive containing the extracts")
	cmd.Flags().StringVar(&opts.fixedTermDir, "fixed-term-dir", "", "Folder with the CKH extracts")
	cmd.Flags().StringVar(&opts.commonDir, "common-dir", "", "Folder with KKH, MUC 30, DK_SMS and SCM010")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output workbook (default: report.file_name from config)")
	cmd.Flags().BoolVar(&opts.ephemeral, "ephemeral", false, "Do not record the run in the database")
	cmd.MarkFlagsMutuallyExclusive("archive", "fixed-term-dir")
	cmd.MarkFlagsMutuallyExclusive("archive", "common-dir")
	cmd.MarkFlagsRequiredTogether("fixed-term-dir", "common-dir")
	return cmd
}

func runOnce(cmd *cobra.Command, opts runOptions) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	var (
		src  source.Source
		kind string
	)
	switch {
	case opts.archive != "":
		data, err := os.ReadFile(opts.archive)
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		src, kind = archive.New(filepath.Base(opts.archive), data, a.cfg.Sources), service.KindArchive
	case opts.fixedTermDir != "":
		src, kind = folder.New(opts.fixedTermDir, opts.commonDir, a.cfg.Sources), service.KindFolder
	default:
		return errors.New("either --archive or --fixed-term-dir with --common-dir is required")
	}

	var store recon.RunStore
	if opts.ephemeral {
		store = memstore.NewMemory()
	} else {
		s, err := a.openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	run, err := a.runner(store).Execute(cmd.Context(), kind, src)
	if err != nil {
		return err
	}

	artifact, err := store.GetArtifact(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	out := opts.out
	if out == "" {
		out = artifact.Name
	}
	if err := os.WriteFile(out, artifact.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s completed: %s\n", run.ID, out)
	for _, s := range run.Sheets {
		fmt.Fprintf(w, "  %-12s %d rows\n", s.Name, s.Rows)
	}
	if len(run.Warnings) > 0 {
		fmt.Fprintf(w, "%d warning(s):\n", len(run.Warnings))
		for _, warn := range run.Warnings {
			fmt.Fprintf(w, "  [%s] %s\n", warn.Code, warn.Message)
		}
	}
	return nil
}
