package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ManifestFileName is the name of the project manifest file.
const ManifestFileName = "kbforge.yaml"

// ManifestFileNameAlt is the alternate name of the project manifest file.
const ManifestFileNameAlt = "kbforge.yml"

// FindManifest returns the manifest path inside dir, or empty string if
// the directory has no manifest.
func FindManifest(dir string) string {
	yamlPath := filepath.Join(dir, ManifestFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	ymlPath := filepath.Join(dir, ManifestFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}

	return ""
}

// Load reads and deserializes the project manifest at path. It performs
// no structural validation beyond deserialization; that is the schema
// validator's job.
func Load(path string) (*Project, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var p Project
	if err := k.Unmarshal("", &p); err != nil {
		return nil, fmt.Errorf("failed to deserialize manifest %s: %w", path, err)
	}

	if p.Name == "" {
		p.Name = filepath.Base(filepath.Dir(path))
	}

	return &p, nil
}

// LoadDir locates and loads the manifest in the given project directory.
func LoadDir(dir string) (*Project, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project directory not found: %s", dir)
	}

	path := FindManifest(dir)
	if path == "" {
		return nil, fmt.Errorf("no %s found in %s", ManifestFileName, dir)
	}

	return Load(path)
}
