package config

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "ELASTICSCHED"

// LoadConfig reads config.yaml from defaultPath and merges each of userSpecifiedConfigs on top, in order.
// Environment variables prefixed with ELASTICSCHED_ override both, e.g. ELASTICSCHED_SCHEDULING_MODE=cost.
func LoadConfig(config interface{}, defaultPath string, userSpecifiedConfigs []string, hooks ...mapstructure.DecodeHookFunc) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading default config from %s", defaultPath)
	}
	log.Infof("Read base config from %s", v.ConfigFileUsed())

	for _, path := range userSpecifiedConfigs {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return errors.Wrapf(err, "merging config from %s", path)
		}
		log.Infof("Merged config from %s", path)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.Unmarshal(config, DecoderOption(hooks...)); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
