package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/armadaproject/elasticsched/internal/scheduler"
)

func aggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Averages the recorded task profiles of a query and fits its stage models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			return scheduler.Aggregate(config, viper.GetInt(QueryFlag), cmd.OutOrStdout())
		},
	}
}
