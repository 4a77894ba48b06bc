package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-scraper/internal/export"
	"github.com/JakeFAU/lead-scraper/internal/lead"
)

type runOptions struct {
	input   string
	output  string
	format  string
	workers int
	quiet   bool
}

// newRunCmd creates the 'run' subcommand which scrapes a URL list into a lead file.
func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape a list of URLs into a lead sheet",
		Long: `Reads one URL per line from --input (or stdin with "-"), scrapes every
site with a bounded pool of browser workers, and writes one row per URL, in
input order, to --output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLeads(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", `file with one URL per line ("-" for stdin)`)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default leads-<batch>.<format>)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "csv, xlsx or json (default from output extension or config)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "concurrent browser workers (default from config)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress spinner")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runLeads(cmd *cobra.Command, opts runOptions) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg := rt.cfg
	logger := rt.logger.Named("run")

	if opts.workers > 0 {
		cfg.Pipeline.Workers = opts.workers
	}
	switch {
	case opts.format != "":
		cfg.Export.Format = opts.format
	case opts.output != "":
		if ext := strings.TrimPrefix(filepath.Ext(opts.output), "."); ext != "" {
			if _, err := export.ForFormat(ext); err == nil {
				cfg.Export.Format = ext
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	text, err := readInput(opts.input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	urls := lead.ParseURLList(text)
	if len(urls) == 0 {
		return errors.New("no URLs found in input")
	}

	a, err := newApp(cmd.Context(), cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer closeApp(cmd.Context(), a, logger)

	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " Scraping websites for lead data..."
	if !opts.quiet {
		s.Start()
	}
	res, runErr := a.Run(cmd.Context(), urls)
	if !opts.quiet {
		s.Stop()
	}
	if runErr != nil {
		logger.Warn("batch finished with backend errors", zap.String("batch_id", res.BatchID), zap.Error(runErr))
	}

	format := a.Format()
	output := opts.output
	if output == "" {
		output = "leads-" + res.BatchID + format.Extension
	}
	if err := writeOutput(output, format, res.Records); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Scraped %d URLs (%d failed) into %s\n", len(res.Records), res.Failed(), output)
	if res.ExportURI != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Export stored at %s\n", res.ExportURI)
	}
	return nil
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func writeOutput(path string, format export.Format, records []lead.Record) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()
	if err := format.Write(f, records); err != nil {
		return fmt.Errorf("write %s output: %w", format.Name, err)
	}
	return nil
}
