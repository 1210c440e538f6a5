package config

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultHooks decode durations and comma separated lists the way viper does out of the box.
var DefaultHooks = []mapstructure.DecodeHookFunc{
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
}

// EnumDecodeHook returns a hook decoding strings into T using parse. Used for the string enums in configuration
// files, e.g. "mode: jct".
func EnumDecodeHook[T any](parse func(string) (T, error)) mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf((*T)(nil)).Elem()
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != target {
			return data, nil
		}
		return parse(data.(string))
	}
}

// DecoderOption combines the default hooks with hooks into a single viper decoder option.
func DecoderOption(hooks ...mapstructure.DecodeHookFunc) viper.DecoderConfigOption {
	all := make([]mapstructure.DecodeHookFunc, 0, len(DefaultHooks)+len(hooks))
	all = append(all, DefaultHooks...)
	all = append(all, hooks...)
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(all...))
}
