// Package template loads job templates and merges their defaults with
// command-line settings.
//
// A template is a YAML file:
//
//	template: |
//	  #!/bin/bash
//	  #SBATCH --partition=<partition>
//	  #SBATCH --time=<time>
//	  #SBATCH --gres=gpu:<NO_gpus>
//	  <env>
//	default_fillers:
//	  partition: accelerated
//	  time: "2-00:00:00"
//	  env: source ~/venv/bin/activate
//	NO_gpus: 4
//	gpus_per_task: 1
package template

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aimat-lab/AutoSlurm/internal/config"
	"gopkg.in/yaml.v3"
)

// Template is a decoded template file.
type Template struct {
	Name string `yaml:"-"`
	Path string `yaml:"-"`

	Description    string            `yaml:"description,omitempty"`
	Requires       string            `yaml:"requires,omitempty"`
	Script         string            `yaml:"template"`
	DefaultFillers map[string]string `yaml:"default_fillers"`

	NoGpus         *int  `yaml:"NO_gpus,omitempty"`
	GpusPerTask    *int  `yaml:"gpus_per_task,omitempty"`
	MaxTasks       *int  `yaml:"max_tasks,omitempty"`
	ScaleResources *bool `yaml:"scale_resources,omitempty"`
}

// Parse decodes template YAML. Unknown keys are rejected.
func Parse(name string, data []byte) (*Template, error) {
	var t Template
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewTemplateError(name, "", errors.New("file is empty"))
		}
		return nil, NewTemplateError(name, "", err)
	}
	t.Name = name
	if t.DefaultFillers == nil {
		t.DefaultFillers = map[string]string{}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadFile reads and validates a template file. The template name is the
// file name without its extension.
func LoadFile(path string) (*Template, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewTemplateError(name, path, err)
	}
	t, err := Parse(name, data)
	if err != nil {
		var te *TemplateError
		if errors.As(err, &te) {
			te.Path = path
		}
		return nil, err
	}
	t.Path = path
	return t, nil
}

// Validate checks the capacity keys:
//   - NO_gpus and max_tasks are mutually exclusive, and one of them is set
//   - NO_gpus needs gpus_per_task
//   - max_tasks forbids gpus_per_task
//   - all of them are positive
func (t *Template) Validate() error {
	fail := func(format string, a ...interface{}) error {
		return NewTemplateError(t.Name, t.Path, fmt.Errorf(format, a...))
	}

	if strings.TrimSpace(t.Script) == "" {
		return fail("missing 'template' text")
	}
	for _, f := range []struct {
		key string
		v   *int
	}{{KeyNoGpus, t.NoGpus}, {KeyGpusPerTask, t.GpusPerTask}, {KeyMaxTasks, t.MaxTasks}} {
		if f.v != nil && *f.v < 1 {
			return fail("%s must be a positive integer, got %d", f.key, *f.v)
		}
	}
	if t.NoGpus != nil && t.MaxTasks != nil {
		return fail("NO_gpus and max_tasks cannot be set at the same time")
	}
	if t.NoGpus != nil && t.GpusPerTask == nil {
		return fail("NO_gpus needs gpus_per_task")
	}
	if t.MaxTasks != nil && t.GpusPerTask != nil {
		return fail("gpus_per_task and max_tasks cannot be set at the same time")
	}
	if t.NoGpus == nil && t.MaxTasks == nil {
		return fail("one of NO_gpus or max_tasks is required")
	}
	if !config.Satisfies(t.Requires) {
		return fail("requires aslurm %s, this is %s", t.Requires, config.VERSION)
	}
	return nil
}

// CapacitySummary describes the capacity keys for listings.
func (t *Template) CapacitySummary() string {
	if t.NoGpus != nil {
		per := 0
		if t.GpusPerTask != nil {
			per = *t.GpusPerTask
		}
		return fmt.Sprintf("%d GPU(s), %d per task", *t.NoGpus, per)
	}
	if t.MaxTasks != nil {
		return fmt.Sprintf("max %d task(s)", *t.MaxTasks)
	}
	return "-"
}
