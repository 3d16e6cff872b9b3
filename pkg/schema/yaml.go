// pkg/schema/yaml.go
package schema

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// StaticDefinition is a Definition backed by plain data, typically decoded from YAML.
type StaticDefinition struct {
	Name      string            `yaml:"name"`
	Source    string            `yaml:"datasource"`
	Conn      string            `yaml:"connection"`
	Options   map[string]string `yaml:"options"`
	FieldList []Field           `yaml:"fields"`
}

func (d *StaticDefinition) Datasource() string                   { return d.Source }
func (d *StaticDefinition) Fields() []Field                      { return d.FieldList }
func (d *StaticDefinition) Connection() string                   { return d.Conn }
func (d *StaticDefinition) DatasourceOptions() map[string]string { return d.Options }
func (d *StaticDefinition) EntityName() string                   { return d.Name }
func (d *StaticDefinition) DefinitionKey() string                { return "static:" + d.Name }

type definitionFile struct {
	Entities []*StaticDefinition `yaml:"entities"`
}

// LoadDefinitions decodes entity definitions of the form:
//
//	entities:
//	  - name: Post
//	    datasource: posts
//	    fields:
//	      - {name: id, type: integer, primary: true, serial: true}
//	      - {name: title, type: string, required: true}
func LoadDefinitions(r io.Reader) ([]*StaticDefinition, error) {
	var file definitionFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("schema: decoding definitions: %w", err)
	}
	seen := make(map[string]bool, len(file.Entities))
	for i, def := range file.Entities {
		if def.Name == "" {
			return nil, fmt.Errorf("schema: definition #%d has no name", i+1)
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("schema: definition '%s' declared twice", def.Name)
		}
		seen[def.Name] = true
	}
	return file.Entities, nil
}
