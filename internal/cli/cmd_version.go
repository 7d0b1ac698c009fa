package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0-dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the flowd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("flowd version %s\n", Version)
		},
	}
}
