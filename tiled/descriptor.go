package tiled

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/blang/semver"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/v3d/v3d"
)

// DescriptorFile is the name of the JSON descriptor of one resolution level.
const DescriptorFile = "mdata.json"

// DescriptorVersion is written into new descriptors.  Readers accept the same major.
var DescriptorVersion = semver.MustParse("1.0.0")

// Descriptor is the JSON description of one resolution level.
type Descriptor struct {
	Version   string       `json:"version"`
	Size      v3d.Point3d  `json:"size"`
	Channels  int32        `json:"channels"`
	DataType  v3d.DataType `json:"data_type"`
	VoxelSize [3]float64   `json:"voxel_size"`
	Overlap   v3d.Point3d  `json:"overlap"`
	Tiles     []TileEntry  `json:"tiles"`
}

// TileEntry describes one tile.  Exactly one of Path and Planes is set.
type TileEntry struct {
	Origin v3d.Point3d `json:"origin"`
	Size   v3d.Point3d `json:"size"`
	Path   string      `json:"path,omitempty"`
	Planes []string    `json:"planes,omitempty"`
	Format *Format     `json:"format,omitempty"`
}

const descriptorSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "v3d tiled resolution level",
	"type": "object",
	"required": ["version", "size", "channels", "data_type", "tiles"],
	"definitions": {
		"point": {
			"type": "array",
			"items": {"type": "integer", "minimum": 0},
			"minItems": 3,
			"maxItems": 3
		},
		"size": {
			"type": "array",
			"items": {"type": "integer", "minimum": 1},
			"minItems": 3,
			"maxItems": 3
		}
	},
	"properties": {
		"version": {"type": "string", "minLength": 1},
		"size": {"$ref": "#/definitions/size"},
		"channels": {"type": "integer", "minimum": 1, "maximum": 64},
		"data_type": {"enum": ["uint8", "uint16"]},
		"voxel_size": {
			"type": "array",
			"items": {"type": "number", "minimum": 0},
			"minItems": 3,
			"maxItems": 3
		},
		"overlap": {"$ref": "#/definitions/point"},
		"tiles": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["origin", "size"],
				"properties": {
					"origin": {"$ref": "#/definitions/point"},
					"size": {"$ref": "#/definitions/size"},
					"path": {"type": "string", "minLength": 1},
					"planes": {
						"type": "array",
						"minItems": 1,
						"items": {"type": "string", "minLength": 1}
					},
					"format": {"enum": ["v3dvol", "v3draw", "planes"]}
				},
				"oneOf": [
					{"required": ["path"]},
					{"required": ["planes"]}
				]
			}
		}
	}
}`

var compiledSchema = jsonschema.MustCompileString("mdata.schema.json", descriptorSchema)

// ParseDescriptor validates and decodes a level descriptor.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("descriptor is not JSON: %v", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("descriptor fails validation: %v", err)
	}
	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, err
	}
	ver, err := semver.Parse(desc.Version)
	if err != nil {
		return nil, fmt.Errorf("bad descriptor version %q: %v", desc.Version, err)
	}
	if ver.Major != DescriptorVersion.Major {
		return nil, fmt.Errorf("descriptor version %s is not compatible with %s", ver, DescriptorVersion)
	}
	return &desc, nil
}

// Marshal returns the indented JSON for the descriptor.
func (desc *Descriptor) Marshal() ([]byte, error) {
	if desc.Version == "" {
		desc.Version = DescriptorVersion.String()
	}
	return json.MarshalIndent(desc, "", "  ")
}

// LevelName returns the RES(HxWxD) directory name for a level of the given size, where
// H is the y size, W the x size and D the z size.
func LevelName(size v3d.Point3d) string {
	return fmt.Sprintf("RES(%dx%dx%d)", size[1], size[0], size[2])
}

var levelNameRE = regexp.MustCompile(`^RES\((\d+)x(\d+)x(\d+)\)$`)

// parseLevelName returns the size encoded in a RES(HxWxD) name.
func parseLevelName(name string) (v3d.Point3d, bool) {
	m := levelNameRE.FindStringSubmatch(name)
	if m == nil {
		return v3d.Point3d{}, false
	}
	var hwd [3]int32
	for i := range hwd {
		n, err := strconv.ParseInt(m[i+1], 10, 32)
		if err != nil {
			return v3d.Point3d{}, false
		}
		hwd[i] = int32(n)
	}
	return v3d.Point3d{hwd[1], hwd[0], hwd[2]}, true
}
