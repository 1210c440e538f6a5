package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/armadaproject/elasticsched/internal/scheduler"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plans a query and runs it on the configured executors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			return scheduler.Run(config, viper.GetInt(QueryFlag), viper.GetInt32(VerbosityFlag), cmd.OutOrStdout())
		},
	}
	addVerbosityFlag(cmd)
	return cmd
}
