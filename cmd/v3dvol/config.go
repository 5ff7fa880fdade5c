package main

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/v3d/codec"
	"github.com/janelia-flyem/v3d/loader"
	"github.com/janelia-flyem/v3d/tiled"
	"github.com/janelia-flyem/v3d/v3d"
)

type tomlConfig struct {
	Logging v3d.LogConfig
	Open    openConfig
	Encode  encodeConfig
	Tile    tileConfig
}

type openConfig struct {
	Level          int
	Concurrency    int
	SchemeFallback bool `toml:"scheme_fallback"`
}

type encodeConfig struct {
	Compression string
	Downscale   string
	Type        string
}

type tileConfig struct {
	Size    string // e.g., "256,256,128"
	Overlap string
	Levels  int
	Format  string
}

func defaultConfig() tomlConfig {
	return tomlConfig{
		Open:   openConfig{Concurrency: 1},
		Encode: encodeConfig{Compression: "zstd", Downscale: "none"},
		Tile:   tileConfig{Size: "256,256,128", Overlap: "16,16,8", Levels: 1, Format: "v3dvol"},
	}
}

// loadConfig reads a TOML file over the defaults.
func loadConfig(filename string) (tomlConfig, error) {
	tc := defaultConfig()
	if filename == "" {
		return tc, nil
	}
	if _, err := toml.DecodeFile(filename, &tc); err != nil {
		return tc, fmt.Errorf("could not decode TOML config: %v", err)
	}
	if err := tc.convertPathsToAbsolute(filename); err != nil {
		return tc, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	return tc, nil
}

// Some settings in the TOML can be given as relative paths.  They are converted in
// place, assuming they were relative to the TOML file's own directory.
func (c *tomlConfig) convertPathsToAbsolute(configPath string) error {
	if c.Logging.Logfile == "" {
		return nil
	}
	var err error
	c.Logging.Logfile, err = v3d.ConvertToAbsolute(c.Logging.Logfile, filepath.Dir(configPath))
	if err != nil {
		return fmt.Errorf("error converting logfile setting to absolute path: %v", err)
	}
	return nil
}

func (c *tomlConfig) loaderOptions() loader.Options {
	return loader.Options{
		Level:          c.Open.Level,
		Concurrency:    c.Open.Concurrency,
		SchemeFallback: c.Open.SchemeFallback,
	}
}

func (c *tomlConfig) encodeOptions() (opts codec.Options, err error) {
	if opts.Compression, err = codec.ParseCompression(c.Encode.Compression); err != nil {
		return
	}
	if opts.Downscale, err = codec.ParseDownscale(c.Encode.Downscale); err != nil {
		return
	}
	if c.Encode.Type != "" {
		opts.SampleType, err = v3d.ParseDataType(c.Encode.Type)
	}
	return
}

func (c *tomlConfig) writeOptions() (tiled.WriteOptions, error) {
	var opts tiled.WriteOptions
	var err error
	if opts.TileSize, err = v3d.StringToPoint3d(c.Tile.Size, ","); err != nil {
		return opts, fmt.Errorf("bad tile size %q: %v", c.Tile.Size, err)
	}
	if opts.Overlap, err = v3d.StringToPoint3d(c.Tile.Overlap, ","); err != nil {
		return opts, fmt.Errorf("bad tile overlap %q: %v", c.Tile.Overlap, err)
	}
	if opts.Format, err = tiled.ParseFormat(c.Tile.Format); err != nil {
		return opts, err
	}
	if opts.Encode, err = c.encodeOptions(); err != nil {
		return opts, err
	}
	opts.Levels = c.Tile.Levels
	return opts, nil
}
