package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data:
  path: graph.kt
  synthetic: false
model:
  hidden_dim: 16
  num_bases: 3
training:
  epochs: 4
  message_passing: all
evaluation:
  splits: [test]
output:
  embedding_precision: float16
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "graph.kt", cfg.Data.Path)
	assert.Equal(t, 16, cfg.Model.HiddenDim)
	assert.Equal(t, 3, cfg.Model.NumBases)
	assert.Equal(t, 32, cfg.Model.EmbeddingDim, "untouched keys keep defaults")
	assert.Equal(t, 4, cfg.Training.Epochs)
	assert.Equal(t, "all", cfg.Training.MessagePassing)
	assert.Equal(t, []string{"test"}, cfg.Evaluation.Splits)
	assert.Equal(t, "float16", cfg.Output.EmbeddingPrecision)
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "training:\n  epocs: 3\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epocs")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"hidden dim", func(c *Config) { c.Model.HiddenDim = 0 }, "model.hidden_dim"},
		{"dropout", func(c *Config) { c.Model.Dropout = 1 }, "model.dropout"},
		{"learning rate", func(c *Config) { c.Training.LearningRate = 0 }, "training.learning_rate"},
		{"message passing", func(c *Config) { c.Training.MessagePassing = "some" }, "training.message_passing"},
		{"negative", func(c *Config) { c.Sampler.Negative = "hard" }, "sampler.negative"},
		{"split", func(c *Config) { c.Evaluation.Splits = []string{"holdout"} }, "evaluation.splits[0]"},
		{"no splits", func(c *Config) { c.Evaluation.Splits = nil }, "evaluation.splits"},
		{"precision", func(c *Config) { c.Output.EmbeddingPrecision = "int8" }, "output.embedding_precision"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}
