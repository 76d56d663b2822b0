package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhongsheng-chen/SDF-Converter/internal/config"
)

var initForce bool

// initCmd writes a starter config file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Writes the default configuration to the config path (sdfconvert.yaml
in the working directory unless --config or SDFCONVERT_CONFIG points
elsewhere). Edit it to set the output directory, the catalog database,
and the drop directory for watch mode.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath()
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
