package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/linkdrop/linkdrop/pkg/hardlink"
	"github.com/spf13/cobra"
)

// NewCheckCmd probes whether a directory supports the hard links the server
// depends on. Useful before pointing the temp directory at a new mount.
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [dir]",
		Short: "Check hard link support in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := os.TempDir()
			if len(args) > 0 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			manager := hardlink.NewManager()
			if err := manager.VerifySupport(abs); err != nil {
				return fmt.Errorf("hard links are not usable in %s: %w", abs, err)
			}
			cmd.Printf("hard links work in %s\n", abs)
			return nil
		},
	}
}
