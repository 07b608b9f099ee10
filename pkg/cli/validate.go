package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modserve/modserve/pkg/config"
	"github.com/modserve/modserve/pkg/modules"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config-file>",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the server. The module
set is fully assembled, so unknown module names and bad module
configuration blocks are reported too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(args[0])
		if err != nil {
			return err
		}
		reg, err := modules.Assemble(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d handlers, %d loggers, %d sniffers)\n",
			args[0], len(reg.Handlers()), len(reg.Loggers()), len(reg.Sniffers()))
		return nil
	},
}

func initValidateCmd() {
	rootCmd.AddCommand(validateCmd)
}
