package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type colour int

const (
	red colour = iota
	blue
)

func parseColour(s string) (colour, error) {
	switch strings.ToLower(s) {
	case "red":
		return red, nil
	case "blue":
		return blue, nil
	}
	return red, errors.Errorf("unknown colour %q", s)
}

type testConfig struct {
	Name    string `validate:"required"`
	Colour  colour
	Period  time.Duration
	Degrees []int
	Redis   RedisConfig
}

func writeFile(t *testing.T, dir, name, contents string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
name: base
colour: red
period: 100us
degrees: [2, 4, 6, 12]
redis:
  addr: localhost:6379
`)
	override := writeFile(t, dir, "override.yaml", `
colour: blue
`)
	var config testConfig
	err := LoadConfig(&config, dir, []string{override}, EnumDecodeHook(parseColour))
	require.NoError(t, err)
	assert.Equal(t, "base", config.Name)
	assert.Equal(t, blue, config.Colour)
	assert.Equal(t, 100*time.Microsecond, config.Period)
	assert.Equal(t, []int{2, 4, 6, 12}, config.Degrees)
	assert.Equal(t, "localhost:6379", config.Redis.AsOptions().Addr)
	assert.NoError(t, Validate(config))
}

func TestLoadConfig_BadEnum(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "name: base\ncolour: green\n")
	var config testConfig
	err := LoadConfig(&config, dir, nil, EnumDecodeHook(parseColour))
	assert.Error(t, err)
}

func TestLoadConfig_MissingDefault(t *testing.T) {
	var config testConfig
	err := LoadConfig(&config, t.TempDir(), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	err := Validate(testConfig{Redis: RedisConfig{Addr: "localhost:6379"}})
	assert.Error(t, err)
	LogValidationErrors(err)
}
