package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadThresholdOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.ThresholdGreen = 80
	cfg.ThresholdOrange = 65
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Defaults()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.json"
	require.NoError(t, os.WriteFile(path, []byte(`{"port":9000,"max_symbols":10,"threshold_green":65,"threshold_orange":80}`), 0o644))

	t.Setenv("PORT", "9100")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 10, cfg.MaxSymbols)
}

func TestSplitCSVTrimsAndDropsEmpty(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, splitCSV(" A ,B,,"))
}
