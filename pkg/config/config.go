// Package config loads the experiment configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the root of the YAML file.
type Config struct {
	Data       DataConfig       `yaml:"data"`
	Model      ModelConfig      `yaml:"model"`
	Sampler    SamplerConfig    `yaml:"sampler"`
	Training   TrainingConfig   `yaml:"training"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Output     OutputConfig     `yaml:"output"`
}

// DataConfig locates the graph bundle.
type DataConfig struct {
	// Path of the bundle file. Either Path or Synthetic must be set by the
	// time the graph is loaded.
	Path string `yaml:"path"`
	// Synthetic trains on a generated drug/protein graph when Path is empty.
	Synthetic bool `yaml:"synthetic"`
}

// ModelConfig sizes the encoder and decoder.
type ModelConfig struct {
	HiddenDim    int     `yaml:"hidden_dim" validate:"min=1"`
	EmbeddingDim int     `yaml:"embedding_dim" validate:"min=1"`
	NumBases     int     `yaml:"num_bases" validate:"min=0"`
	Dropout      float64 `yaml:"dropout" validate:"gte=0,lt=1"`
}

// SamplerConfig controls random-walk batches and negative sampling.
type SamplerConfig struct {
	// BatchSize is the number of random walk roots per batch.
	BatchSize  int `yaml:"batch_size" validate:"min=1"`
	WalkLength int `yaml:"walk_length" validate:"min=0"`
	// NumSteps is the number of training batches per epoch.
	NumSteps int `yaml:"num_steps" validate:"min=1"`
	// ValSteps is the number of validation batches per evaluation.
	ValSteps int    `yaml:"val_steps" validate:"min=1"`
	Negative string `yaml:"negative" validate:"oneof=uniform corrupt"`
}

// TrainingConfig holds optimiser and schedule settings.
type TrainingConfig struct {
	Epochs       int     `yaml:"epochs" validate:"min=1"`
	LearningRate float64 `yaml:"learning_rate" validate:"gt=0"`
	WeightDecay  float64 `yaml:"weight_decay" validate:"gte=0"`
	// Reg is the L2 penalty on embeddings and relation vectors.
	Reg float64 `yaml:"reg" validate:"gte=0"`
	// GradClip bounds the global gradient norm; 0 disables clipping.
	GradClip float64 `yaml:"grad_clip" validate:"gte=0"`
	// Patience stops training after this many evaluations without a better
	// validation AUROC; 0 disables early stopping.
	Patience  int    `yaml:"patience" validate:"min=0"`
	EvalEvery int    `yaml:"eval_every" validate:"min=1"`
	Seed      uint64 `yaml:"seed"`
	// MessagePassing selects which batch edges carry messages during
	// training: "train" (train-mask edges only) or "all".
	MessagePassing string `yaml:"message_passing" validate:"oneof=train all"`
}

// EvaluationConfig selects what the final report covers.
type EvaluationConfig struct {
	// PerRelation adds one metric row per relation type.
	PerRelation bool     `yaml:"per_relation"`
	Splits      []string `yaml:"splits" validate:"min=1,dive,oneof=train val test"`
}

// OutputConfig names the files written after a run. Empty paths skip the output.
type OutputConfig struct {
	Checkpoint         string `yaml:"checkpoint"`
	Embeddings         string `yaml:"embeddings"`
	EmbeddingPrecision string `yaml:"embedding_precision" validate:"oneof=float32 float16"`
	MetricsFile        string `yaml:"metrics_file"`
}

// Default returns a configuration that trains the synthetic graph in a few
// seconds.
func Default() Config {
	return Config{
		Data: DataConfig{Synthetic: true},
		Model: ModelConfig{
			HiddenDim:    64,
			EmbeddingDim: 32,
			NumBases:     0,
			Dropout:      0,
		},
		Sampler: SamplerConfig{
			BatchSize:  200,
			WalkLength: 2,
			NumSteps:   5,
			ValSteps:   2,
			Negative:   "uniform",
		},
		Training: TrainingConfig{
			Epochs:         30,
			LearningRate:   0.01,
			GradClip:       1.0,
			EvalEvery:      1,
			Seed:           42,
			MessagePassing: "train",
		},
		Evaluation: EvaluationConfig{
			PerRelation: true,
			Splits:      []string{"val", "test"},
		},
		Output: OutputConfig{
			EmbeddingPrecision: "float32",
		},
	}
}

// LoadConfig reads the YAML configuration file on top of Default using
// strict parsing, then validates it. An empty path yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, cfg.Validate()
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("YAML syntax error in config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their YAML key.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every section against its constraints.
func (c Config) Validate() error {
	return formatValidationError(validate.Struct(c))
}

// formatValidationError turns the first validator error into a readable one.
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	e := validationErrs[0]
	// Namespace is "Config.section.key"; drop the root type name.
	_, field, _ := strings.Cut(e.Namespace(), ".")
	switch e.Tag() {
	case "min", "gte":
		return fmt.Errorf("%w: %s: must be at least %s", ErrInvalid, field, e.Param())
	case "gt":
		return fmt.Errorf("%w: %s: must be greater than %s", ErrInvalid, field, e.Param())
	case "lt":
		return fmt.Errorf("%w: %s: must be less than %s", ErrInvalid, field, e.Param())
	case "oneof":
		return fmt.Errorf("%w: %s: must be one of [%s], got %v", ErrInvalid, field, e.Param(), e.Value())
	default:
		return fmt.Errorf("%w: %s: validation failed (%s)", ErrInvalid, field, e.Tag())
	}
}
