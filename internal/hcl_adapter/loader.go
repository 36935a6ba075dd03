package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses the .hcl file at path, or every .hcl file below it when path is
// a directory, and translates the blocks into one definition.
func (l *Loader) Load(ctx context.Context, path string) (*config.Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	files, err := l.findAllHCLFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found at %s", path)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	def := &config.Definition{Templates: make(map[string]*config.Template)}
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		if err := l.merge(ctx, def, hclFile.Body, file); err != nil {
			return nil, err
		}
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	logger.Debug("HCL loading complete.", "parameters", len(def.Parameters), "templates", len(def.Templates), "jobs", len(def.Jobs))
	return def, nil
}

// Parse translates a single file held in memory.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) (*config.Definition, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	def := &config.Definition{Templates: make(map[string]*config.Template)}
	if err := l.merge(ctx, def, hclFile.Body, filename); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return def, nil
}

// merge decodes one file body and adds its blocks to def.
func (l *Loader) merge(ctx context.Context, def *config.Definition, body hcl.Body, file string) error {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
	}

	if root.Name != "" {
		if def.Name != "" && def.Name != root.Name {
			return fmt.Errorf("%s: pipeline name %q conflicts with %q", file, root.Name, def.Name)
		}
		def.Name = root.Name
	}
	for _, p := range root.Parameters {
		param, err := l.translateParameter(ctx, p, "pipeline")
		if err != nil {
			return err
		}
		def.Parameters = append(def.Parameters, param)
	}
	for _, v := range root.Variables {
		vars, err := l.translateAttributes(v)
		if err != nil {
			return err
		}
		def.Variables = append(def.Variables, vars...)
	}
	for _, t := range root.Templates {
		if _, dup := def.Templates[t.Name]; dup {
			return fmt.Errorf("%s: template %q is declared twice", file, t.Name)
		}
		tpl, err := l.translateTemplate(ctx, t)
		if err != nil {
			return err
		}
		def.Templates[t.Name] = tpl
	}
	for _, j := range root.Jobs {
		job, err := l.translateJob(ctx, j)
		if err != nil {
			return err
		}
		def.Jobs = append(def.Jobs, job)
	}
	return nil
}

// findAllHCLFiles returns path itself, or every .hcl file below it in
// lexical order when it is a directory.
func (l *Loader) findAllHCLFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".hcl" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
