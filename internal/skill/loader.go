package skill

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/hb-chen/skillgate/pkg/logger"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// catalog is the on-disk layout of a skills file.
type catalog struct {
	Skills []Descriptor `yaml:"skills" toml:"skills"`
}

// Builtin returns the descriptors shipped with the binary.
func Builtin() ([]Descriptor, error) {
	var c catalog
	if err := yaml.Unmarshal(builtinCatalog, &c); err != nil {
		return nil, fmt.Errorf("failed to parse built-in catalog: %w", err)
	}
	return c.Skills, nil
}

// LoadFile reads descriptors from a YAML or TOML skills file.
func LoadFile(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read skills file: %w", err)
	}

	var c catalog
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	case ".toml":
		err = toml.Unmarshal(data, &c)
	default:
		return nil, fmt.Errorf("unsupported skills file format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse skills file %s: %w", path, err)
	}
	if len(c.Skills) == 0 {
		return nil, fmt.Errorf("skills file %s defines no skills", path)
	}

	return c.Skills, nil
}

// Load builds the registry from path: a skills file, a directory of
// SKILL.md skills, or the built-in catalog when path is empty.
func Load(path string) (*Registry, error) {
	var (
		descriptors []Descriptor
		err         error
	)
	switch info, statErr := os.Stat(path); {
	case path == "":
		descriptors, err = Builtin()
	case statErr == nil && info.IsDir():
		descriptors, err = LoadDir(path)
	default:
		descriptors, err = LoadFile(path)
	}
	if err != nil {
		return nil, err
	}

	registry, err := NewRegistry(descriptors...)
	if err != nil {
		return nil, err
	}

	source := path
	if source == "" {
		source = "built-in catalog"
	}
	logger.Infof("Loaded %d skills from %s: %s", registry.Count(), source, strings.Join(registry.Names(), ", "))

	return registry, nil
}
