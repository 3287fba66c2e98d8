package main

import (
	"github.com/spf13/cobra"

	"github.com/broadsheet-archive/broadsheet/internal/api"
	"github.com/broadsheet-archive/broadsheet/version"
)

var (
	cfgFile      string
	dataDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "broadsheet",
	Short: "Newspaper digitization pipeline with OCR and full-text search",
	Long: `Broadsheet turns scanned newspaper PDFs into searchable, structured
records: discrete stories, ads, and classifieds with their page locations,
extracted entities, and a full-text index.

The pipeline includes:
  - Per-page text extraction with OCR fallback for scanned pages
  - Layout-driven segmentation into stories, ads, and classifieds
  - Subtype and entity classification with category tagging
  - Cross-page story grouping and saved-search matching`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.broadsheet/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&dataDir, "data-dir", "", "data directory (default: ~/.broadsheet)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
