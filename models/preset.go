package models

import (
	"os"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Preset describes a space created when the server starts. Zero fields take
// the server defaults.
type Preset struct {
	Name               string        `yaml:"name"`
	Bounds             *Rect         `yaml:"bounds"`
	MaxEntitiesPerNode int           `yaml:"max_entities_per_node"`
	MaxDepth           int           `yaml:"max_depth"`
	PoolCapacity       int           `yaml:"pool_capacity"`
	FrameDuration      time.Duration `yaml:"frame_duration"`
}

type presetFile struct {
	Spaces []Preset `yaml:"spaces"`
}

// LoadPresets reads the presets declared in a YAML file.
func LoadPresets(filename string) ([]Preset, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.New("reading presets file failed").
			WithTag("file_name", filename).
			Wrap(err)
	}
	return ParsePresets(b)
}

func ParsePresets(b []byte) ([]Preset, error) {
	var f presetFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.New("decoding presets failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}

	names := make(map[string]struct{}, len(f.Spaces))
	for _, p := range f.Spaces {
		if p.Name == "" {
			return nil, errors.New("preset without name").
				WithType(ErrTypeBadRequest)
		}

		if _, ok := names[p.Name]; ok {
			return nil, errors.New("duplicated preset").
				WithType(ErrTypeBadRequest).
				WithTag("name", p.Name)
		}
		names[p.Name] = struct{}{}
	}
	return f.Spaces, nil
}

// Options returns the options of a space created from the preset.
func (p Preset) Options(defaults SpaceOptions) SpaceOptions {
	opts := defaults
	opts.Name = p.Name

	if p.Bounds != nil {
		opts.Bounds = p.Bounds.Region()
	}
	if p.MaxEntitiesPerNode != 0 {
		opts.MaxEntitiesPerNode = p.MaxEntitiesPerNode
	}
	if p.MaxDepth != 0 {
		opts.MaxDepth = p.MaxDepth
	}
	if p.PoolCapacity != 0 {
		opts.PoolCapacity = p.PoolCapacity
	}
	if p.FrameDuration != 0 {
		opts.FrameDuration = p.FrameDuration
	}
	return opts
}
