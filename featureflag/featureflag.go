package featureflag

import (
	"slices"
	"strings"
)

// FeatureFlag is the set of flags a server runs with. Flags switch host
// behaviors off; the spatial index itself is never affected.
type FeatureFlag map[Flag]struct{}

// New returns the feature flags named by flags. Names are trimmed and
// upper-cased so that values read from the environment match the Flag
// constants; empty names are skipped.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag, len(flags))
	for _, f := range flags {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		featureFlag[Flag(f)] = struct{}{}
	}
	return featureFlag
}

// IsSet reports whether flag is set.
func (f FeatureFlag) IsSet(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// IfSet calls do when flag is set.
func (f FeatureFlag) IfSet(flag Flag, do func()) {
	if f.IsSet(flag) {
		do()
	}
}

// IfNotSet calls do when flag is not set.
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if !f.IsSet(flag) {
		do()
	}
}

// List returns the set flags, sorted.
func (f FeatureFlag) List() []Flag {
	flags := make([]Flag, 0, len(f))
	for flag := range f {
		flags = append(flags, flag)
	}
	slices.Sort(flags)
	return flags
}
