package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/armadaproject/elasticsched/internal/scheduler"
)

func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Runs every stage of a query at each sample degree so executors record task profiles",
		RunE: func(_ *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			return scheduler.Profile(config, viper.GetInt(QueryFlag))
		},
	}
}
