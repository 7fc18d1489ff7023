package datasets

import (
	"encoding/json"
	"os"

	"github.com/Noofbiz/cityseg/artifact"
	"github.com/Noofbiz/cityseg/categories"
	"github.com/pkg/errors"
)

// ErrConfig marks an invalid configuration.
var ErrConfig = errors.New("invalid dataset configuration")

// Config holds the dataset parameters.
type Config struct {
	// NumClasses is the channel count of the targets. Must equal the number
	// of reduced categories (8).
	NumClasses int `json:"num_classes"`

	// Scale selects the preprocessed artifact, e.g. 0.25 for factor 4.
	Scale float64 `json:"scale"`

	// DataDir holds the artifacts written by cmd/scale.
	DataDir string `json:"data_dir"`

	// Smoothing moves one-hot targets into the simplex interior.
	Smoothing float64 `json:"smoothing"`

	// BatchSize used by Dataloader.
	BatchSize int `json:"batch_size"`

	// Seed for train split shuffling. If zero, a time-based seed is used.
	Seed int64 `json:"seed"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		NumClasses: categories.NumCategories,
		Scale:      0.25,
		DataDir:    artifact.DefaultDir,
		Smoothing:  0.01,
		BatchSize:  8,
	}
}

// LoadConfig reads a JSON config file. Fields missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(ErrConfig, "failed to parse %s: %v", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.NumClasses != categories.NumCategories {
		return errors.Wrapf(ErrConfig, "num_classes is %d, the category table has %d", c.NumClasses, categories.NumCategories)
	}
	if c.Scale <= 0 || c.Scale > 1 {
		return errors.Wrapf(ErrConfig, "scale %g outside (0, 1]", c.Scale)
	}
	if h, w := artifact.SpatialDims(c.Scale); h == 0 || w == 0 {
		return errors.Wrapf(ErrConfig, "scale %g shrinks frames to %dx%d", c.Scale, w, h)
	}
	if c.Smoothing <= 0 || c.Smoothing >= 1 {
		return errors.Wrapf(ErrConfig, "smoothing %g outside (0, 1)", c.Smoothing)
	}
	if float32(c.Smoothing/float64(c.NumClasses-1)) == 0 {
		return errors.Wrapf(ErrConfig, "smoothing %g is too small to move float32 targets off the simplex corners", c.Smoothing)
	}
	if c.BatchSize <= 0 {
		return errors.Wrapf(ErrConfig, "batch_size must be > 0, got %d", c.BatchSize)
	}
	if c.DataDir == "" {
		return errors.Wrap(ErrConfig, "data_dir is empty")
	}
	return nil
}
