package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janbehro/eDavkiRepairer/internal/extract"
	"github.com/janbehro/eDavkiRepairer/internal/logger"
)

var extractCmd = &cobra.Command{
	Use:   "extract <log-dir> <output-dir>",
	Short: "Recover invoice requests from POS log files",
	Long: `Extract walks a directory tree of POS log files and pulls out every
embedded fiscal receipt request, writing each one as
<output-dir>/<premise>-<device>/<number>.json, the layout the repair
command reads from.`,
	Args: cobra.ExactArgs(2),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	log, err := logger.New("info", verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	written, err := extract.Run(args[0], args[1], log)
	if err != nil {
		return err
	}
	fmt.Printf("Extracted %d requests to %s\n", written, args[1])
	return nil
}
