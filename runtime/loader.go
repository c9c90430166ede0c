package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileLoader loads blueprint definitions from YAML or JSON files.
type FileLoader struct{}

func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

func (l *FileLoader) Extensions() []string {
	return []string{"*.yaml", "*.yml", "*.json"}
}

func (l *FileLoader) Load(filePath string) (Blueprint, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Blueprint{}, fmt.Errorf("error reading blueprint file: %w", err)
	}
	return ParseBlueprint(data, filepath.Ext(filePath))
}

// LoadDir loads every blueprint in dir keyed by blueprint id.
func (l *FileLoader) LoadDir(dir string) (map[string]Blueprint, error) {
	blueprints := make(map[string]Blueprint)
	for _, pattern := range l.Extensions() {
		files, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("error reading directory: %w", err)
		}
		slices.Sort(files)
		for _, file := range files {
			bp, err := l.Load(file)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			if _, dup := blueprints[bp.ID]; dup {
				return nil, fmt.Errorf("%s: duplicate blueprint id %q", file, bp.ID)
			}
			blueprints[bp.ID] = bp
		}
	}
	return blueprints, nil
}

// ParseBlueprint decodes a blueprint document. ext selects JSON for ".json";
// anything else is parsed as YAML.
func ParseBlueprint(data []byte, ext string) (Blueprint, error) {
	var bp Blueprint
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &bp); err != nil {
			return Blueprint{}, fmt.Errorf("error unmarshalling JSON: %w", err)
		}
		return bp, nil
	}

	if err := yaml.Unmarshal(data, &bp); err != nil {
		return Blueprint{}, fmt.Errorf("error unmarshalling YAML: %w", err)
	}
	return bp, nil
}
