package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadtree/quadtree"
	"github.com/stretchr/testify/require"
)

const testPresets = `
spaces:
  - name: arena
    bounds:
      min: {x: -500, y: -500}
      max: {x: 500, y: 500}
    max_entities_per_node: 16
    max_depth: 10
    pool_capacity: 4096
    frame_duration: 20ms
  - name: lobby
`

func TestParsePresets(t *testing.T) {
	t.Run("presets are parsed", func(t *testing.T) {
		presets, err := ParsePresets([]byte(testPresets))
		require.NoError(t, err)
		require.Len(t, presets, 2)

		arena := presets[0]
		require.Equal(t, "arena", arena.Name)
		require.Equal(t, &Rect{Min: Point{X: -500, Y: -500}, Max: Point{X: 500, Y: 500}}, arena.Bounds)
		require.Equal(t, 16, arena.MaxEntitiesPerNode)
		require.Equal(t, 10, arena.MaxDepth)
		require.Equal(t, 4096, arena.PoolCapacity)
		require.Equal(t, time.Millisecond*20, arena.FrameDuration)

		require.Equal(t, Preset{Name: "lobby"}, presets[1])
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := ParsePresets([]byte("spaces: {"))
		require.Equal(t, ErrTypeBadRequest, errors.Type(err))
	})

	t.Run("preset without name", func(t *testing.T) {
		_, err := ParsePresets([]byte("spaces:\n  - max_depth: 3\n"))
		require.Equal(t, ErrTypeBadRequest, errors.Type(err))
	})

	t.Run("duplicated preset", func(t *testing.T) {
		_, err := ParsePresets([]byte("spaces:\n  - name: a\n  - name: a\n"))
		require.Equal(t, ErrTypeBadRequest, errors.Type(err))
	})
}

func TestLoadPresets(t *testing.T) {
	t.Run("presets are loaded from a file", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "presets.yaml")
		require.NoError(t, os.WriteFile(filename, []byte(testPresets), 0o600))

		presets, err := LoadPresets(filename)
		require.NoError(t, err)
		require.Len(t, presets, 2)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPresets(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})
}

func TestPresetOptions(t *testing.T) {
	defaults := SpaceOptions{
		Bounds:             quadtree.Region{Max: quadtree.Vector2{X: 100, Y: 100}},
		MaxEntitiesPerNode: 8,
		MaxDepth:           8,
		FrameDuration:      time.Millisecond * 15,
	}

	t.Run("zero fields take the defaults", func(t *testing.T) {
		opts := Preset{Name: "lobby"}.Options(defaults)

		expected := defaults
		expected.Name = "lobby"
		require.Equal(t, expected, opts)
	})

	t.Run("preset fields override the defaults", func(t *testing.T) {
		opts := Preset{
			Name:               "arena",
			Bounds:             &Rect{Max: Point{X: 10, Y: 10}},
			MaxEntitiesPerNode: 2,
			MaxDepth:           3,
			PoolCapacity:       64,
			FrameDuration:      time.Second,
		}.Options(defaults)

		require.Equal(t, SpaceOptions{
			Name:               "arena",
			Bounds:             quadtree.Region{Max: quadtree.Vector2{X: 10, Y: 10}},
			MaxEntitiesPerNode: 2,
			MaxDepth:           3,
			PoolCapacity:       64,
			FrameDuration:      time.Second,
		}, opts)
	})
}
