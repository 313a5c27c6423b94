package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/restitch/restitch/internal/output"
	"github.com/restitch/restitch/internal/utils"
	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Clean up temporary segment directories",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var err error
			if len(args) == 0 {
				err = utils.CleanLocal()
			} else {
				err = utils.CleanFunction(filepath.Dir(args[0]))
			}
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up temporary files: %v", err))
				os.Exit(1)
			}
			output.PrintSuccess("Temporary files cleaned up")
		},
	}
}
