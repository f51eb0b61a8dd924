package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// optionDoc is the structured-document form of one option. It is consumed
// once at schema-build time and never reflected into parsing at runtime.
type optionDoc struct {
	Description any      `yaml:"description"` // string or list joined with spaces
	Default     any      `yaml:"default"`
	Required    any      `yaml:"required"` // bool or yes/true string
	Type        string   `yaml:"type"`     // bool | list | dict | int | str
	Choices     []string `yaml:"choices"`
	Group       string   `yaml:"group"`
}

// Load builds a Schema from a YAML options document:
//
//	options:
//	  verbose:
//	    description: [Enable, verbose, output.]
//	    type: bool
//	  mode:
//	    type: str
//	    required: yes
//	    choices: [fast, safe]
//
// Document order is preserved as declaration order.
func Load(doc []byte, desc string) (*Schema, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("parse options document: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("options document is empty")
	}

	mapping := root.Content[0]
	var optionsNode *yaml.Node
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == "options" {
			optionsNode = mapping.Content[i+1]
			break
		}
	}
	if optionsNode == nil {
		return nil, fmt.Errorf("options document has no options mapping")
	}
	if optionsNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("options must be a mapping")
	}

	s := New(desc)
	for i := 0; i+1 < len(optionsNode.Content); i += 2 {
		name := optionsNode.Content[i].Value

		var doc optionDoc
		if err := optionsNode.Content[i+1].Decode(&doc); err != nil {
			return nil, fmt.Errorf("option %q: %w", name, err)
		}

		opt, err := doc.toOption(name)
		if err != nil {
			return nil, err
		}
		if err := s.Add(opt); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (d optionDoc) toOption(name string) (Option, error) {
	opt := Option{
		Name:    name,
		Default: d.Default,
		Choices: d.Choices,
		Group:   d.Group,
	}

	switch desc := d.Description.(type) {
	case nil:
	case string:
		opt.Help = desc
	case []any:
		parts := make([]string, 0, len(desc))
		for _, p := range desc {
			parts = append(parts, fmt.Sprint(p))
		}
		opt.Help = strings.Join(parts, " ")
	default:
		return Option{}, fmt.Errorf("option %q: description must be a string or list", name)
	}

	switch req := d.Required.(type) {
	case nil:
	case bool:
		opt.Required = req
	case string:
		lower := strings.ToLower(req)
		opt.Required = lower == "yes" || lower == "true"
	default:
		return Option{}, fmt.Errorf("option %q: required must be a boolean or yes/true string", name)
	}

	switch strings.ToLower(d.Type) {
	case "", "str":
		opt.Type = String
	case "bool":
		opt.Type = Bool
	case "int":
		opt.Type = Int
	case "list":
		opt.Type = List
	case "dict":
		opt.Type = Map
	default:
		return Option{}, fmt.Errorf("option %q: unsupported type %q", name, d.Type)
	}

	// YAML integers arrive as int; normalize integer defaults declared for
	// int options so Args.Int sees a consistent type.
	if opt.Type == Int && opt.Default != nil {
		n, ok := opt.Default.(int)
		if !ok {
			return Option{}, fmt.Errorf("option %q: default %v is not an integer", name, opt.Default)
		}
		opt.Default = n
	}

	return opt, nil
}
