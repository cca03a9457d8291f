package encode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPreset is returned for bitrate presets outside the fixed set.
var ErrInvalidPreset = errors.New("invalid bitrate preset")

// Preset is one of the fixed MP3 quality options.
type Preset string

const (
	PresetLow      Preset = "low"      // 128 kbps
	PresetMedium   Preset = "medium"   // 192 kbps
	PresetHigh     Preset = "high"     // 256 kbps
	PresetVeryHigh Preset = "veryhigh" // 320 kbps
)

var presetBitrates = map[Preset]int{
	PresetLow:      128,
	PresetMedium:   192,
	PresetHigh:     256,
	PresetVeryHigh: 320,
}

// Presets returns the supported presets in ascending bitrate order.
func Presets() []Preset {
	return []Preset{PresetLow, PresetMedium, PresetHigh, PresetVeryHigh}
}

// Bitrate returns the preset's bitrate in kbps.
func (p Preset) Bitrate() (int, error) {
	kbps, ok := presetBitrates[p]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPreset, string(p))
	}
	return kbps, nil
}

// Label returns the preset's display form, e.g. "Medium (192 kbps)".
func (p Preset) Label() string {
	kbps, err := p.Bitrate()
	if err != nil {
		return string(p)
	}
	names := map[Preset]string{
		PresetLow:      "Low",
		PresetMedium:   "Medium",
		PresetHigh:     "High",
		PresetVeryHigh: "Very High",
	}
	return fmt.Sprintf("%s (%d kbps)", names[p], kbps)
}

// ParsePreset maps user-facing spellings ("Very High", "very_high") onto a
// Preset, failing with ErrInvalidPreset for anything else.
func ParsePreset(s string) (Preset, error) {
	norm := strings.ToLower(s)
	norm = strings.ReplaceAll(norm, " ", "")
	norm = strings.ReplaceAll(norm, "_", "")
	norm = strings.ReplaceAll(norm, "-", "")
	p := Preset(norm)
	if _, ok := presetBitrates[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidPreset, s)
	}
	return p, nil
}
