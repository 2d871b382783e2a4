package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// MaxSeed is the largest seed the sampler accepts
const MaxSeed uint64 = math.MaxUint64 - 1

// MaxFilenamePrefix is the number of prompt characters used as a filename prefix
const MaxFilenamePrefix = 100

//go:embed batch.schema.json
var batchSchemaJSON string

var batchSchema = jsonschema.MustCompileString("batch.schema.json", batchSchemaJSON)

// Batch is a list of jobs run against one workflow. Inputs are addressed by
// node title, never by node id.
type Batch struct {
	// Workflow is the API-format workflow (JSON or a ComfyUI PNG), relative to the batch file
	Workflow string         `yaml:"workflow,omitempty"`
	Bindings Bindings       `yaml:"bindings,omitempty"`
	Defaults []NodeOverride `yaml:"defaults,omitempty"`
	Jobs     []Job          `yaml:"jobs"`

	// Dir is the directory relative paths are resolved against
	Dir string `yaml:"-"`
}

// Binding names the node input a job field is written to
type Binding struct {
	Node  string `yaml:"node"`
	Input string `yaml:"input"`
}

type Bindings struct {
	Prompt         *Binding `yaml:"prompt,omitempty"`
	Seed           *Binding `yaml:"seed,omitempty"`
	FilenamePrefix *Binding `yaml:"filename_prefix,omitempty"`
}

// NodeOverride sets inputs of the node with the given title
type NodeOverride struct {
	Node   string                 `yaml:"node"`
	Inputs map[string]interface{} `yaml:"inputs"`
}

// Upload sends a local image to the server and writes the stored name into a node input
type Upload struct {
	Node      string `yaml:"node"`
	Input     string `yaml:"input"`
	Path      string `yaml:"path"`
	Subfolder string `yaml:"subfolder,omitempty"`
	Overwrite bool   `yaml:"overwrite,omitempty"`
}

type Job struct {
	Name           string         `yaml:"name,omitempty"`
	Prompt         string         `yaml:"prompt,omitempty"`
	Seed           *uint64        `yaml:"seed,omitempty"`
	FilenamePrefix string         `yaml:"filename_prefix,omitempty"`
	Overrides      []NodeOverride `yaml:"overrides,omitempty"`
	Uploads        []Upload       `yaml:"uploads,omitempty"`
}

// LoadBatch reads and validates a batch document
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	b, err := ParseBatch(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	b.Dir = filepath.Dir(path)
	return b, nil
}

// ParseBatch validates data against the batch schema and decodes it
func ParseBatch(data []byte) (*Batch, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse batch YAML: %w", err)
	}

	// the validator wants JSON values, not YAML ones
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert batch to JSON: %w", err)
	}
	var jsonDoc interface{}
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	if err := dec.Decode(&jsonDoc); err != nil {
		return nil, err
	}
	if err := batchSchema.Validate(jsonDoc); err != nil {
		return nil, fmt.Errorf("invalid batch: %w", err)
	}

	b := &Batch{}
	if err := yaml.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("failed to parse batch YAML: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks the rules the schema cannot express: a job field is only
// meaningful when the batch binds it to a node input.
func (b *Batch) Validate() error {
	var errs []error
	if len(b.Jobs) == 0 {
		errs = append(errs, errors.New("batch has no jobs"))
	}
	for i, j := range b.Jobs {
		if j.Prompt != "" && b.Bindings.Prompt == nil {
			errs = append(errs, fmt.Errorf("job %s sets a prompt but there is no prompt binding", j.DisplayName(i)))
		}
		if j.Seed != nil && b.Bindings.Seed == nil {
			errs = append(errs, fmt.Errorf("job %s sets a seed but there is no seed binding", j.DisplayName(i)))
		}
		if j.Seed != nil && (*j.Seed < 1 || *j.Seed > MaxSeed) {
			errs = append(errs, fmt.Errorf("job %s: seed out of range", j.DisplayName(i)))
		}
		if j.FilenamePrefix != "" && b.Bindings.FilenamePrefix == nil {
			errs = append(errs, fmt.Errorf("job %s sets a filename prefix but there is no filename_prefix binding", j.DisplayName(i)))
		}
	}
	return errors.Join(errs...)
}

// Resolve returns path relative to the batch file's directory
func (b *Batch) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || b.Dir == "" {
		return path
	}
	return filepath.Join(b.Dir, path)
}

// WorkflowPath returns the resolved workflow path, or "" when the batch names none
func (b *Batch) WorkflowPath() string {
	return b.Resolve(b.Workflow)
}

// DisplayName identifies the job in logs: its name, or its 1-based position
func (j *Job) DisplayName(index int) string {
	if j.Name != "" {
		return j.Name
	}
	return fmt.Sprintf("#%d", index+1)
}

// ResolveSeed returns the job's seed, or a random one in [1, MaxSeed]
func (j *Job) ResolveSeed() uint64 {
	if j.Seed != nil {
		return *j.Seed
	}
	return RandomSeed()
}

// RandomSeed draws a seed uniformly from [1, MaxSeed]
func RandomSeed() uint64 {
	return rand.Uint64N(MaxSeed) + 1
}

// ResolveFilenamePrefix returns the job's filename prefix, defaulting to the
// first MaxFilenamePrefix characters of the prompt
func (j *Job) ResolveFilenamePrefix() string {
	if j.FilenamePrefix != "" {
		return j.FilenamePrefix
	}
	return Truncate(j.Prompt, MaxFilenamePrefix)
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
