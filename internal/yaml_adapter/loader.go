package yaml_adapter

import (
	"context"
	"fmt"
	"os"

	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// Loader is the YAML implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new YAML definition loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and translates the YAML definition at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Definition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	return l.Parse(ctx, path, src)
}

// Parse translates src. filename is only used in error messages and
// expression source ranges.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) (*config.Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "file", filename)

	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file %s: %w", filename, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%s: definition is empty", filename)
	}

	d := &decoder{ctx: ctx, file: filename}
	def, err := d.definition(doc.Content[0])
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	logger.Debug("YAML loading complete.", "parameters", len(def.Parameters), "templates", len(def.Templates), "jobs", len(def.Jobs))
	return def, nil
}
