package framecache

import (
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// CoordinateMode selects how frames are placed in the shared render space.
type CoordinateMode string

const (
	// ModeRelative places each frame at its offset cell only; frame-to-frame
	// motion is not visualized.
	ModeRelative CoordinateMode = "relative"
	// ModeContinuous lays frames out along their true relative motion path,
	// each additionally shifted by its offset cell.
	ModeContinuous CoordinateMode = "continuous"
)

// Config describes the cache's resource budget and placement behavior.
type Config struct {
	// MaxWorlds is the live-entry budget; it also sizes the preload window.
	MaxWorlds int `json:"max_worlds"`
	// EvictionWindow is the frame-index distance beyond which an
	// otherwise-safe world becomes eligible for eviction.
	EvictionWindow int `json:"eviction_window"`
	// EnablePreload turns the look-ahead cache warm on.
	EnablePreload bool `json:"enable_preload"`
	// CoordinateMode defaults to ModeRelative when empty.
	CoordinateMode CoordinateMode `json:"coordinate_mode,omitempty"`
}

// DefaultConfig returns the configuration the annotator ships with.
func DefaultConfig() Config {
	return Config{
		MaxWorlds:      5,
		EvictionWindow: 2,
		EnablePreload:  true,
		CoordinateMode: ModeRelative,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.MaxWorlds <= 0 {
		return goutils.NewConfigValidationError(path, errors.New("max_worlds must be positive"))
	}
	if cfg.EvictionWindow < 0 {
		return goutils.NewConfigValidationError(path, errors.New("eviction_window cannot be negative"))
	}
	switch cfg.CoordinateMode {
	case "", ModeRelative, ModeContinuous:
	default:
		return goutils.NewConfigValidationError(path,
			errors.Errorf("coordinate_mode %q not recognized", cfg.CoordinateMode))
	}
	return nil
}
