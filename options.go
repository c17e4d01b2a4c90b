package lsmdb

import (
	"fmt"
	"math"
	"math/bits"
	"os"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// Backend selects the substrate holding the tables.
type Backend string

const (
	// BackendMDBX stores tables in libmdbx (nested transactions supported)
	BackendMDBX Backend = "mdbx"
	// BackendBolt stores tables in bbolt
	BackendBolt Backend = "bolt"
)

// Options configures an environment. The zero value is not usable; start
// from DefaultOptions.
type Options struct {
	Backend Backend `yaml:"backend"`

	// SizeLimit caps the datafile in bytes (mdbx); 0 keeps the default
	SizeLimit int64 `yaml:"size_limit"`

	LevelBase   uint64 `yaml:"level_base"`
	LevelGrowth uint64 `yaml:"level_growth"`
	MergeBatch  uint64 `yaml:"merge_batch"`

	// DisableAutoCompact stops Commit from running Autocompact
	DisableAutoCompact bool `yaml:"disable_autocompact"`

	// NoSync skips the fsync at commit, for bulk loads and tests
	NoSync bool `yaml:"no_sync"`

	Logger *zap.Logger `yaml:"-"`
}

// DefaultOptions returns the baseline configuration.
func DefaultOptions() *Options {
	return &Options{
		Backend:     BackendMDBX,
		LevelBase:   DefaultLevelBase,
		LevelGrowth: DefaultLevelGrowth,
		MergeBatch:  DefaultMergeBatch,
		Logger:      zap.NewNop(),
	}
}

// LoadOptions reads YAML options from path on top of DefaultOptions.
// A missing file yields the defaults.
func LoadOptions(path string) (*Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *Options) validate() error {
	switch o.Backend {
	case BackendMDBX, BackendBolt:
	default:
		return errorf(ErrInvalidArgument, "unknown backend %q", o.Backend)
	}
	if o.LevelBase == 0 || o.LevelGrowth == 0 || o.MergeBatch == 0 {
		return errorf(ErrInvalidArgument, "level_base, level_growth and merge_batch must be positive")
	}
	if o.SizeLimit < 0 {
		return errorf(ErrInvalidArgument, "size_limit %d is negative", o.SizeLimit)
	}
	return nil
}

// levelTarget is the entry count at which level i becomes due for merging.
// It saturates at math.MaxUint64.
func (o *Options) levelTarget(level int) uint64 {
	target := o.LevelBase
	for i := 0; i < level; i++ {
		hi, lo := bits.Mul64(target, o.LevelGrowth)
		if hi != 0 {
			return math.MaxUint64
		}
		target = lo
	}
	return target
}
