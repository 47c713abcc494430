package params

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of an overlay document.
type Format int

const (
	FormatJSON Format = iota
	FormatTOML
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// FormatFromExt maps a file extension (with or without the dot) to a Format.
func FormatFromExt(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "json":
		return FormatJSON, nil
	case "toml":
		return FormatTOML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("unsupported overlay format %q", ext)
	}
}

// Decode reads an overlay document. The top level must be a table/object.
//
// Numbers keep the native type of each decoder (float64 for JSON, int64 for
// TOML integers, int for YAML); routines coerce them on access.
func Decode(r io.Reader, format Format) (Params, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch format {
	case FormatJSON:
		err = gojson.Unmarshal(data, &raw)
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("unsupported overlay format %v", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s overlay: %w", format, err)
	}
	if raw == nil {
		return Params{}, nil
	}
	return Params(raw), nil
}

// Load reads an overlay document from path, choosing the format by extension.
func Load(path string) (Params, error) {
	format, err := FormatFromExt(filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f, format)
}
