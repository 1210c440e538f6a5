package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	commonconfig "github.com/armadaproject/elasticsched/internal/common/config"
	"github.com/armadaproject/elasticsched/internal/common/logging"
	"github.com/armadaproject/elasticsched/internal/scheduler/configuration"
)

const (
	CustomConfigLocation string = "config"
	QueryFlag            string = "query"
	VerbosityFlag        string = "verbosity"
	DefaultConfigPath    string = "./config/scheduler"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "scheduler",
		SilenceUsage: true,
		Short:        "Elastic stage scheduler: profiles queries, fits their models and runs them on executors",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	cmd.PersistentFlags().Int(QueryFlag, 95, "Id of the query to work on")

	cmd.AddCommand(
		runCmd(),
		planCmd(),
		profileCmd(),
		aggregateCmd(),
	)

	return cmd
}

func loadConfig() (configuration.Configuration, error) {
	var config configuration.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	if err := commonconfig.LoadConfig(&config, DefaultConfigPath, userSpecifiedConfigs, configuration.DecodeHooks()...); err != nil {
		return config, err
	}
	if err := config.Validate(); err != nil {
		commonconfig.LogValidationErrors(err)
		return config, err
	}
	return config, logging.ConfigureApplicationLogging(config.Logging)
}

func addVerbosityFlag(cmd *cobra.Command) {
	cmd.Flags().Int32P(VerbosityFlag, "v", 0, "Detail of the printed plan: 1 adds the per stage decisions, 2 adds the placement")
}
