// Command v3dvol inspects, extracts, converts and tiles volumetric microscopy images.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/janelia-flyem/v3d/codec"
	"github.com/janelia-flyem/v3d/codec/v3draw"
	"github.com/janelia-flyem/v3d/loader"
	"github.com/janelia-flyem/v3d/storage"
	"github.com/janelia-flyem/v3d/tiled"
	"github.com/janelia-flyem/v3d/v3d"
)

const helpMessage = `
v3dvol reads, converts and tiles volumetric microscopy images

Usage: v3dvol [options] <command>

      --config      =string   TOML configuration file.
      --level       =number   Pyramid resolution level, 0 being native.
      --concurrency =number   Tiles decoded at once during an extraction.
      --fallback    (flag)    Try known schemes for directories without .iim.format.
      --compression =string   Container compression: none, rle, snappy, lz4, zstd.
      --downscale   =string   16 to 8-bit reduction: none, precision, fast.
      --type        =string   Stored sample type: uint8 or uint16.
      --tile-size   =x,y,z    Tile size for the tile command.
      --overlap     =x,y,z    Tile overlap for the tile command.
      --levels      =number   Resolution levels written by the tile command.
      --tile-format =string   Tile files: v3dvol, v3draw or planes.
      --verbose     (flag)    Run in verbose mode.
  -h, --help        (flag)    Show help message

Commands:

	info    <path>
	index   <path>
	extract <path> <x0> <x1> <y0> <y1> <z0> <z1> <output file>
	convert <input file> <output file>
	tile    <input path> <output directory>

Paths may be local files or directories, or gs:// and s3:// URLs.  Output files
ending in .v3draw are written as V3D Raw, all others as v3d containers.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		v3d.Shutdown()
		os.Exit(1)
	}
	v3d.Shutdown()
}

func run(argv []string) error {
	flagSet := pflag.NewFlagSet("v3dvol", pflag.ContinueOnError)
	flagSet.Usage = func() { fmt.Print(helpMessage) }
	configFile := flagSet.String("config", "", "")
	verbose := flagSet.Bool("verbose", false, "")
	showHelp := flagSet.BoolP("help", "h", false, "")
	level := flagSet.Int("level", 0, "")
	concurrency := flagSet.Int("concurrency", 1, "")
	fallback := flagSet.Bool("fallback", false, "")
	compression := flagSet.String("compression", "", "")
	downscale := flagSet.String("downscale", "", "")
	sampleType := flagSet.String("type", "", "")
	tileSize := flagSet.String("tile-size", "", "")
	overlap := flagSet.String("overlap", "", "")
	levels := flagSet.Int("levels", 1, "")
	tileFormat := flagSet.String("tile-format", "", "")

	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	cmd := Command(flagSet.Args())
	if *showHelp || cmd.Name() == "" || strings.ToLower(cmd.Name()) == "help" {
		flagSet.Usage()
		return nil
	}
	if *verbose {
		v3d.Verbose = true
	}

	tc, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	tc.Logging.SetLogger()

	// Flags given on the command line override the configuration file.
	if flagSet.Changed("level") {
		tc.Open.Level = *level
	}
	if flagSet.Changed("concurrency") {
		tc.Open.Concurrency = *concurrency
	}
	if flagSet.Changed("fallback") {
		tc.Open.SchemeFallback = *fallback
	}
	if flagSet.Changed("compression") {
		tc.Encode.Compression = *compression
	}
	if flagSet.Changed("downscale") {
		tc.Encode.Downscale = *downscale
	}
	if flagSet.Changed("type") {
		tc.Encode.Type = *sampleType
	}
	if flagSet.Changed("tile-size") {
		tc.Tile.Size = *tileSize
	}
	if flagSet.Changed("overlap") {
		tc.Tile.Overlap = *overlap
	}
	if flagSet.Changed("levels") {
		tc.Tile.Levels = *levels
	}
	if flagSet.Changed("tile-format") {
		tc.Tile.Format = *tileFormat
	}
	return DoCommand(cmd, &tc)
}

// DoCommand serves as a switchboard for commands.
func DoCommand(cmd Command, tc *tomlConfig) error {
	switch cmd.Name() {
	case "info":
		return doInfo(cmd, tc)
	case "index":
		return doIndex(cmd, tc)
	case "extract":
		return doExtract(cmd, tc)
	case "convert":
		return doConvert(cmd, tc)
	case "tile":
		return doTile(cmd, tc)
	default:
		return fmt.Errorf("unknown command %q, try 'v3dvol help'", cmd.Name())
	}
}

func doInfo(cmd Command, tc *tomlConfig) error {
	var path string
	if err := cmd.ExactArgs(&path); err != nil {
		return err
	}
	h, err := loader.Open(path, tc.loaderOptions())
	if err != nil {
		return err
	}
	defer h.Close()

	x, y, z, c := h.Dims()
	fmt.Printf("%s: %d x %d x %d, %d channel(s) of %s\n", path, x, y, z, c, h.DataType())
	switch handle := h.(type) {
	case *loader.File:
		fmt.Printf("  format: %s\n", handle.Kind)
		if hdr := handle.Header(); hdr != nil {
			fmt.Printf("  header: %s\n", hdr)
		}
	case *loader.Pyramid:
		meta := handle.Metadata()
		fmt.Printf("  scheme: %s, %d level(s)\n", meta.Scheme, meta.NumLevels())
		for n, level := range meta.Levels {
			grid := level.GridSize()
			fmt.Printf("  level %d %q: %s, %d tiles (%d x %d x %d), overlap %s\n",
				n, level.Name, level.Size, len(level.Tiles), grid[0], grid[1], grid[2], level.Overlap)
		}
	}
	return nil
}

func doIndex(cmd Command, tc *tomlConfig) error {
	var path string
	if err := cmd.ExactArgs(&path); err != nil {
		return err
	}
	h, err := loader.Open(path, tc.loaderOptions())
	if err != nil {
		return err
	}
	defer h.Close()
	p, ok := h.(*loader.Pyramid)
	if !ok {
		return fmt.Errorf("%q is a single file, not a tiled pyramid", path)
	}
	level, err := p.Metadata().Level(p.LevelIndex())
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", level)
	for _, tile := range level.Tiles {
		fmt.Printf("  %v %-8s physical %s  owned %s  %s\n", tile.Position, tile.Format, tile.Physical, tile.Owned, tile.Name())
	}
	return nil
}

func doExtract(cmd Command, tc *tomlConfig) error {
	var path, sx0, sx1, sy0, sy1, sz0, sz1, out string
	if err := cmd.ExactArgs(&path, &sx0, &sx1, &sy0, &sy1, &sz0, &sz1, &out); err != nil {
		return err
	}
	coords, err := Int32Args(sx0, sx1, sy0, sy1, sz0, sz1)
	if err != nil {
		return err
	}
	h, err := loader.Open(path, tc.loaderOptions())
	if err != nil {
		return err
	}
	defer h.Close()
	timedLog := v3d.NewTimeLog()
	vol, err := h.Extract(coords[0], coords[1], coords[2], coords[3], coords[4], coords[5])
	if err != nil {
		return err
	}
	timedLog.Infof("Extracted %s from %q", vol, path)
	return writeVolume(out, vol, tc)
}

func doConvert(cmd Command, tc *tomlConfig) error {
	var in, out string
	if err := cmd.ExactArgs(&in, &out); err != nil {
		return err
	}
	vol, err := readVolume(in, tc)
	if err != nil {
		return err
	}
	return writeVolume(out, vol, tc)
}

func doTile(cmd Command, tc *tomlConfig) error {
	var in, outDir string
	if err := cmd.ExactArgs(&in, &outDir); err != nil {
		return err
	}
	opts, err := tc.writeOptions()
	if err != nil {
		return err
	}
	vol, err := readVolume(in, tc)
	if err != nil {
		return err
	}
	if !storage.IsURL(outDir) {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return err
		}
	}
	store, err := storage.Open(outDir)
	if err != nil {
		return err
	}
	defer store.Close()
	return tiled.WritePyramid(store, vol, opts)
}

// readVolume returns the whole of a file or of a pyramid's selected level.
func readVolume(path string, tc *tomlConfig) (*v3d.Volume, error) {
	h, err := loader.Open(path, tc.loaderOptions())
	if err != nil {
		return nil, err
	}
	defer h.Close()
	x, y, z, _ := h.Dims()
	return h.Extract(0, x-1, 0, y-1, 0, z-1)
}

func writeVolume(path string, vol *v3d.Volume, tc *tomlConfig) error {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".v3draw") || strings.HasSuffix(lower, ".raw") {
		return v3draw.EncodeFile(path, vol)
	}
	opts, err := tc.encodeOptions()
	if err != nil {
		return err
	}
	if err := codec.EncodeFile(path, vol, opts); err != nil {
		return err
	}
	fmt.Printf("Wrote %s to %q (%s)\n", vol, path, opts)
	return nil
}
