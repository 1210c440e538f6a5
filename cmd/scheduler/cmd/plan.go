package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/armadaproject/elasticsched/internal/scheduler"
)

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plans a query and prints the plan and its lower bounds without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			return scheduler.Plan(config, viper.GetInt(QueryFlag), viper.GetInt32(VerbosityFlag), cmd.OutOrStdout())
		},
	}
	addVerbosityFlag(cmd)
	return cmd
}
