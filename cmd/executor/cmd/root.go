package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	commonconfig "github.com/armadaproject/elasticsched/internal/common/config"
	"github.com/armadaproject/elasticsched/internal/common/logging"
	"github.com/armadaproject/elasticsched/internal/executor"
	"github.com/armadaproject/elasticsched/internal/executor/configuration"
	schedulerconfig "github.com/armadaproject/elasticsched/internal/scheduler/configuration"
)

const (
	CustomConfigLocation string = "config"
	DefaultConfigPath    string = "./config/executor"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "executor",
		SilenceUsage: true,
		Short:        "Runs the tasks the scheduler launches on this machine",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
	}
	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	cmd.AddCommand(runCmd())
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serves the scheduler's control connection",
		RunE: func(_ *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			return executor.Run(config)
		},
	}
}

func loadConfig() (configuration.ExecutorConfiguration, error) {
	var config configuration.ExecutorConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	if err := commonconfig.LoadConfig(&config, DefaultConfigPath, userSpecifiedConfigs, schedulerconfig.DecodeHooks()...); err != nil {
		return config, err
	}
	if err := config.Validate(); err != nil {
		commonconfig.LogValidationErrors(err)
		return config, err
	}
	return config, logging.ConfigureApplicationLogging(config.Logging)
}
