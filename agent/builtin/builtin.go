// Package builtin ships the agents that are available without an upload.
// The catalog is an embedded YAML manifest validated against an embedded
// JSON schema; agent sources are embedded next to it.
package builtin

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/gambit/core"
)

//go:embed catalog.yaml catalog.schema.json agents/*.js
var files embed.FS

// Entry is one built-in agent.
type Entry struct {
	Key     string           `yaml:"key"`
	File    string           `yaml:"file"`
	Kind    core.RuntimeKind `yaml:"kind"`
	Payload []byte           `yaml:"-"`
}

// Filename returns the base name of the agent source.
func (e Entry) Filename() string { return path.Base(e.File) }

type manifest struct {
	Agents []Entry `yaml:"agents"`
}

var (
	once    sync.Once
	entries []Entry
	loadErr error
)

// Catalog returns the built-in agents in manifest order.
func Catalog() ([]Entry, error) {
	once.Do(func() {
		entries, loadErr = parse(files)
	})
	if loadErr != nil {
		return nil, loadErr
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Lookup returns the entry with the given key.
func Lookup(key string) (Entry, bool) {
	all, err := Catalog()
	if err != nil {
		return Entry{}, false
	}
	for _, e := range all {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

func parse(fsys embed.FS) ([]Entry, error) {
	raw, err := fsys.ReadFile("catalog.yaml")
	if err != nil {
		return nil, err
	}
	schemaSrc, err := fsys.ReadFile("catalog.schema.json")
	if err != nil {
		return nil, err
	}
	if err := validateManifest(raw, string(schemaSrc)); err != nil {
		return nil, err
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for i := range m.Agents {
		payload, err := fsys.ReadFile(m.Agents[i].File)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %s: %w", m.Agents[i].Key, err)
		}
		m.Agents[i].Payload = payload
	}
	return m.Agents, nil
}

// validateManifest checks the YAML document against the JSON schema. The
// document goes through JSON so the validator sees JSON value types.
func validateManifest(raw []byte, schemaSrc string) error {
	schema, err := jsonschema.CompileString("catalog.schema.json", schemaSrc)
	if err != nil {
		return fmt.Errorf("compile catalog schema: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	var v any
	if err := json.Unmarshal(js, &v); err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	return nil
}
