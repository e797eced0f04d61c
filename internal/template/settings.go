package template

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aimat-lab/AutoSlurm/internal/pack"
)

// Enumerated setting keys. Every other key is a free-form filler.
const (
	KeyEnv            = "env"
	KeyTime           = "time"
	KeyPartition      = "partition"
	KeyNoGpus         = "NO_gpus"
	KeyGpusPerTask    = "gpus_per_task"
	KeyMaxTasks       = "max_tasks"
	KeyScaleResources = "scale_resources"
)

// OptInt is an integer setting given on the command line. Set without a
// Value clears the template's value ("none").
type OptInt struct {
	Set   bool
	Value *int
}

// ParseOptInt parses a non-negative integer, or "none"/"null" for no value.
func ParseOptInt(s string) (*int, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "none", "null":
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: %q is not a non-negative integer or none", ErrInvalidValue, s)
	}
	return &n, nil
}

// Overrides are settings given as explicit command-line flags.
type Overrides struct {
	NoGpus         OptInt
	GpusPerTask    OptInt
	MaxTasks       OptInt
	Env            string
	Time           string
	Partition      string
	ScaleResources *bool
}

// Settings is the merged configuration of one submission.
type Settings struct {
	Template *Template

	Env       string
	Time      string
	Partition string

	NoGpus      *int
	GpusPerTask *int
	MaxTasks    *int

	ScaleResources bool

	// Fillers holds every other <key> value.
	Fillers map[string]string
}

// Merge resolves settings with priority explicit flag > -o overwrite >
// template default. scaleDefault applies when neither the template nor the
// command line set scale_resources.
func Merge(t *Template, overwrites map[string]string, explicit Overrides, scaleDefault bool) (*Settings, error) {
	s := &Settings{
		Template:       t,
		NoGpus:         copyInt(t.NoGpus),
		GpusPerTask:    copyInt(t.GpusPerTask),
		MaxTasks:       copyInt(t.MaxTasks),
		ScaleResources: scaleDefault,
		Fillers:        map[string]string{},
	}
	if t.ScaleResources != nil {
		s.ScaleResources = *t.ScaleResources
	}
	for k, v := range t.DefaultFillers {
		s.setString(k, v)
	}

	keys := make([]string, 0, len(overwrites))
	for k := range overwrites {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.apply(k, overwrites[k]); err != nil {
			return nil, err
		}
	}

	s.applyExplicit(explicit)
	return s, nil
}

// setString stores a string-valued key in its typed field or in Fillers.
func (s *Settings) setString(key, value string) {
	switch key {
	case KeyEnv:
		s.Env = value
	case KeyTime:
		s.Time = value
	case KeyPartition:
		s.Partition = value
	default:
		s.Fillers[key] = value
	}
}

// apply handles one -o key=value overwrite.
func (s *Settings) apply(key, value string) error {
	var target **int
	switch key {
	case KeyNoGpus:
		target = &s.NoGpus
	case KeyGpusPerTask:
		target = &s.GpusPerTask
	case KeyMaxTasks:
		target = &s.MaxTasks
	case KeyScaleResources:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, value)
		}
		s.ScaleResources = b
		return nil
	default:
		s.setString(key, value)
		return nil
	}

	n, err := ParseOptInt(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*target = n
	return nil
}

// applyExplicit applies command-line flags. Asking for one capacity mode
// clears the keys of the other one, so `-m 8` works on a GPU template.
func (s *Settings) applyExplicit(o Overrides) {
	unitsGiven := (o.NoGpus.Set && o.NoGpus.Value != nil) || (o.GpusPerTask.Set && o.GpusPerTask.Value != nil)
	tasksGiven := o.MaxTasks.Set && o.MaxTasks.Value != nil

	if tasksGiven && !unitsGiven {
		if !o.NoGpus.Set {
			s.NoGpus = nil
		}
		if !o.GpusPerTask.Set {
			s.GpusPerTask = nil
		}
	}
	if unitsGiven && !o.MaxTasks.Set {
		s.MaxTasks = nil
	}

	if o.NoGpus.Set {
		s.NoGpus = copyInt(o.NoGpus.Value)
	}
	if o.GpusPerTask.Set {
		s.GpusPerTask = copyInt(o.GpusPerTask.Value)
	}
	if o.MaxTasks.Set {
		s.MaxTasks = copyInt(o.MaxTasks.Value)
	}
	if o.Env != "" {
		s.Env = o.Env
	}
	if o.Time != "" {
		s.Time = o.Time
	}
	if o.Partition != "" {
		s.Partition = o.Partition
	}
	if o.ScaleResources != nil {
		s.ScaleResources = *o.ScaleResources
	}
}

// Capacity returns the packing capacity described by the settings.
func (s *Settings) Capacity() pack.Capacity {
	return pack.Capacity{
		TotalUnits:   derefInt(s.NoGpus),
		UnitsPerTask: derefInt(s.GpusPerTask),
		MaxTasks:     derefInt(s.MaxTasks),
	}
}

// Policy returns the packing policy.
func (s *Settings) Policy() pack.Policy {
	return pack.Policy{ScaleResources: s.ScaleResources}
}

// Params returns the per-batch template parameters.
func (s *Settings) Params() pack.Params {
	return pack.Params{TimeLimit: s.Time, Partition: s.Partition}
}

// FillerMap returns every filler value, typed keys included, for rendering.
func (s *Settings) FillerMap() map[string]string {
	out := make(map[string]string, len(s.Fillers)+6)
	for k, v := range s.Fillers {
		out[k] = v
	}
	for k, v := range map[string]string{KeyEnv: s.Env, KeyTime: s.Time, KeyPartition: s.Partition} {
		if v != "" {
			out[k] = v
		}
	}
	for k, v := range map[string]*int{KeyNoGpus: s.NoGpus, KeyGpusPerTask: s.GpusPerTask, KeyMaxTasks: s.MaxTasks} {
		if v != nil {
			out[k] = strconv.Itoa(*v)
		}
	}
	return out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
