// Package schema declares and parses component argument schemas.
//
// A schema is built once when a component is constructed and is immutable
// afterwards. Parsing turns exec-string tokens into typed values, captures
// unrecognized tokens instead of dropping them, and enforces defaults,
// required options, enumerated choices, and mutual-exclusion groups.
package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Type is the semantic type of an option value.
type Type int

const (
	Bool Type = iota
	String
	Int
	List
	Map
)

func (t Type) String() string {
	switch t {
	case Bool:
		return "bool"
	case String:
		return "str"
	case Int:
		return "int"
	case List:
		return "list"
	case Map:
		return "dict"
	default:
		return "unknown"
	}
}

// Option declares one named option.
type Option struct {
	// Name without the leading dashes, e.g. "timeout" for --timeout.
	Name string

	Type     Type
	Help     string
	Default  any
	Required bool

	// Choices restricts string values to an enumerated set.
	Choices []string

	// Group names a mutual-exclusion group: at most one option per group
	// may appear in a single exec string.
	Group string
}

// HelpError aborts normal processing when --exec-help is present. Text holds
// the rendered help output.
type HelpError struct {
	Text string
}

func (e *HelpError) Error() string {
	return "execution help requested"
}

// Schema is an ordered, immutable-after-construction option set.
type Schema struct {
	desc       string
	opts       []Option
	byName     map[string]int
	positional *Option
}

// New returns an empty schema with the given description.
func New(desc string) *Schema {
	return &Schema{
		desc:   desc,
		byName: make(map[string]int),
	}
}

// Add appends an option. Duplicate names are a programming error.
func (s *Schema) Add(opt Option) error {
	if opt.Name == "" {
		return fmt.Errorf("option name is empty")
	}
	if _, exists := s.byName[opt.Name]; exists {
		return fmt.Errorf("option %q declared twice", opt.Name)
	}
	if opt.Type == Bool && opt.Required {
		return fmt.Errorf("boolean option %q cannot be required", opt.Name)
	}
	s.byName[opt.Name] = len(s.opts)
	s.opts = append(s.opts, opt)
	return nil
}

// MustAdd is Add for static schema construction.
func (s *Schema) MustAdd(opt Option) {
	if err := s.Add(opt); err != nil {
		panic(err)
	}
}

// SetPositional declares a trailing positional list collecting every token
// that is not an option or an option value.
func (s *Schema) SetPositional(name, help string) {
	s.positional = &Option{Name: name, Type: List, Help: help}
}

// Options returns the declared options in declaration order.
func (s *Schema) Options() []Option {
	out := make([]Option, len(s.opts))
	copy(out, s.opts)
	return out
}

// Sanitize re-splits every fragment on whitespace and returns the flattened
// token stream, preserving fragment order.
func Sanitize(fragments []string) []string {
	var tokens []string
	for _, fragment := range fragments {
		tokens = append(tokens, strings.Fields(fragment)...)
	}
	return tokens
}

// Args holds the parsed values of one exec string.
type Args struct {
	values map[string]any
	seen   map[string]bool

	// Unknown captures tokens the schema does not declare. They are kept,
	// not silently dropped.
	Unknown []string
}

// Has reports whether name was explicitly supplied (not defaulted).
func (a *Args) Has(name string) bool {
	return a.seen[name]
}

// Value returns the raw value for name.
func (a *Args) Value(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Set overlays a pre-formatted value, as supplied through arg_vars.
func (a *Args) Set(name string, value any) {
	a.values[name] = value
	a.seen[name] = true
}

// Bool returns the boolean value for name.
func (a *Args) Bool(name string) bool {
	v, _ := a.values[name].(bool)
	return v
}

// String returns the string value for name.
func (a *Args) String(name string) string {
	v, _ := a.values[name].(string)
	return v
}

// Int returns the integer value for name.
func (a *Args) Int(name string) int {
	v, _ := a.values[name].(int)
	return v
}

// List returns the list value for name.
func (a *Args) List(name string) []string {
	v, _ := a.values[name].([]string)
	return v
}

// Map returns the mapping value for name.
func (a *Args) Map(name string) map[string]string {
	v, _ := a.values[name].(map[string]string)
	return v
}

// Parse consumes tokens against the schema.
func (s *Schema) Parse(tokens []string) (*Args, error) {
	args := &Args{
		values: make(map[string]any),
		seen:   make(map[string]bool),
	}
	var positional []string

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if !strings.HasPrefix(token, "--") || token == "--" {
			if s.positional != nil {
				positional = append(positional, token)
			} else {
				args.Unknown = append(args.Unknown, token)
			}
			continue
		}

		name := strings.TrimPrefix(token, "--")
		idx, known := s.byName[name]
		if !known {
			args.Unknown = append(args.Unknown, token)
			continue
		}
		opt := s.opts[idx]

		if opt.Type == Bool {
			args.values[name] = true
			args.seen[name] = true
			continue
		}

		if i+1 >= len(tokens) {
			return nil, fmt.Errorf("option --%s requires a value", name)
		}
		i++
		value, err := convert(opt, tokens[i], args.values[name])
		if err != nil {
			return nil, err
		}
		args.values[name] = value
		args.seen[name] = true
	}

	if s.positional != nil {
		args.values[s.positional.Name] = positional
		args.seen[s.positional.Name] = len(positional) > 0
	}

	if err := s.validate(args); err != nil {
		return nil, err
	}
	return args, nil
}

func convert(opt Option, raw string, prior any) (any, error) {
	switch opt.Type {
	case String:
		if len(opt.Choices) > 0 {
			ok := false
			for _, c := range opt.Choices {
				if raw == c {
					ok = true
					break
				}
			}
			if !ok {
				return nil, fmt.Errorf("option --%s: invalid choice %q (choose from %s)",
					opt.Name, raw, strings.Join(opt.Choices, ", "))
			}
		}
		return raw, nil
	case Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("option --%s: %q is not an integer", opt.Name, raw)
		}
		return n, nil
	case List:
		list, _ := prior.([]string)
		return append(list, raw), nil
	case Map:
		m, _ := prior.(map[string]string)
		if m == nil {
			m = make(map[string]string)
		}
		for _, pair := range strings.Split(raw, ",") {
			k, v, found := strings.Cut(pair, "=")
			if !found || k == "" {
				return nil, fmt.Errorf("option --%s: %q is not a key=value pair", opt.Name, pair)
			}
			m[k] = v
		}
		return m, nil
	default:
		return nil, fmt.Errorf("option --%s has an unsupported type", opt.Name)
	}
}

func (s *Schema) validate(args *Args) error {
	groups := make(map[string][]string)

	for _, opt := range s.opts {
		if args.seen[opt.Name] && opt.Group != "" {
			groups[opt.Group] = append(groups[opt.Group], "--"+opt.Name)
		}
		if !args.seen[opt.Name] {
			if opt.Required {
				return fmt.Errorf("required option --%s is missing", opt.Name)
			}
			if opt.Default != nil {
				args.values[opt.Name] = opt.Default
			}
		}
	}

	for group, set := range groups {
		if len(set) > 1 {
			sort.Strings(set)
			return fmt.Errorf("options %s are mutually exclusive (group %q)",
				strings.Join(set, " and "), group)
		}
	}
	return nil
}

// Help renders the option reference for the schema.
func (s *Schema) Help() string {
	var b strings.Builder
	if s.desc != "" {
		b.WriteString(s.desc)
		b.WriteString("\n\n")
	}
	b.WriteString("Options:\n")
	for _, opt := range s.opts {
		fmt.Fprintf(&b, "  --%s", opt.Name)
		if opt.Type != Bool {
			fmt.Fprintf(&b, " <%s>", opt.Type)
		}
		if opt.Help != "" {
			fmt.Fprintf(&b, "  %s", opt.Help)
		}
		if opt.Default != nil {
			fmt.Fprintf(&b, " (default: %v)", opt.Default)
		}
		if opt.Required {
			b.WriteString(" (required)")
		}
		if len(opt.Choices) > 0 {
			fmt.Fprintf(&b, " (choices: %s)", strings.Join(opt.Choices, ", "))
		}
		b.WriteString("\n")
	}
	if s.positional != nil {
		fmt.Fprintf(&b, "  %s...  %s\n", s.positional.Name, s.positional.Help)
	}
	return b.String()
}
