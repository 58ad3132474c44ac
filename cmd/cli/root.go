package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const banner = `
   _                      _   _    __     __        _  __
  / \   ___ ___  _   _ ___| |_(_) __\ \   / /__ _ __(_)/ _|_   _
 / _ \ / __/ _ \| | | / __| __| |/ __\ \ / / _ \ '__| | |_| | | |
/ ___ \ (_| (_) | |_| \__ \ |_| | (__ \ V /  __/ |  | |  _| |_| |
\_/   \_/___\___/ \__,_|___/\__|_|\___| \_/ \___|_|  |_|_|  \__, |
                                                            |___/
           Audio Fingerprinting & Verification CLI
`

func newRootCommand() *cobra.Command {
	var (
		configFlag string
		dbFlag     string
		driverFlag string
		levelFlag  string
		quietFlag  bool
	)

	ctx := newCommandContext(&configFlag, &dbFlag, &driverFlag, &levelFlag)

	rootCmd := &cobra.Command{
		Use:           "acousticverify",
		Short:         "Register reference recordings and verify clips against them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !quietFlag && cmd.Name() != "digest" {
				fmt.Fprint(cmd.ErrOrStderr(), banner)
			}
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path (env: ACOUSTIC_CONFIG)")
	flags.StringVar(&dbFlag, "db", "", "Override storage.path (SQLite file or Badger directory)")
	flags.StringVar(&driverFlag, "driver", "", "Override storage.driver: sqlite, badger or memory")
	flags.StringVar(&levelFlag, "log-level", "", "Override logging.level")
	flags.BoolVarP(&quietFlag, "quiet", "q", false, "Do not print the banner")

	rootCmd.AddCommand(newRegisterCommand(ctx))
	rootCmd.AddCommand(newVerifyCommand(ctx))
	rootCmd.AddCommand(newRevokeCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newDigestCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
