package schema

import (
	"reflect"
	"strings"
	"testing"
)

func buildSchema(t *testing.T) *Schema {
	t.Helper()

	s := New("test component")
	s.MustAdd(Option{Name: "verbose", Type: Bool, Help: "Enable verbose output."})
	s.MustAdd(Option{Name: "timeout", Type: Int, Default: 600})
	s.MustAdd(Option{Name: "mode", Type: String, Choices: []string{"fast", "safe"}})
	s.MustAdd(Option{Name: "env", Type: Map})
	s.MustAdd(Option{Name: "exclude", Type: List})
	s.MustAdd(Option{Name: "pull", Type: Bool, Group: "action"})
	s.MustAdd(Option{Name: "push", Type: Bool, Group: "action"})
	s.SetPositional("targets", "targets to act on")
	return s
}

func TestParseTypesAndDefaults(t *testing.T) {
	t.Parallel()

	s := buildSchema(t)
	args, err := s.Parse(Sanitize([]string{"--verbose --mode fast", "--env a=1,b=2", "--exclude x --exclude y", "one two"}))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !args.Bool("verbose") {
		t.Fatalf("expected verbose=true")
	}
	if got := args.Int("timeout"); got != 600 {
		t.Fatalf("expected default timeout 600, got %d", got)
	}
	if got := args.String("mode"); got != "fast" {
		t.Fatalf("unexpected mode %q", got)
	}
	if got := args.Map("env"); !reflect.DeepEqual(got, map[string]string{"a": "1", "b": "2"}) {
		t.Fatalf("unexpected env %#v", got)
	}
	if got := args.List("exclude"); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("unexpected exclude %#v", got)
	}
	if got := args.List("targets"); !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Fatalf("unexpected targets %#v", got)
	}
	if args.Has("timeout") {
		t.Fatalf("defaulted option must not read as explicitly supplied")
	}
}

func TestParseInvalidChoice(t *testing.T) {
	t.Parallel()

	s := buildSchema(t)
	_, err := s.Parse([]string{"--mode", "reckless"})
	if err == nil || !strings.Contains(err.Error(), "invalid choice") {
		t.Fatalf("expected invalid choice error, got %v", err)
	}
}

func TestParseNonIntegerValue(t *testing.T) {
	t.Parallel()

	s := buildSchema(t)
	if _, err := s.Parse([]string{"--timeout", "soon"}); err == nil {
		t.Fatalf("expected integer conversion error")
	}
}

func TestParseMissingValue(t *testing.T) {
	t.Parallel()

	s := buildSchema(t)
	if _, err := s.Parse([]string{"--mode"}); err == nil {
		t.Fatalf("expected missing value error")
	}
}

func TestParseRequiredOption(t *testing.T) {
	t.Parallel()

	s := New("")
	s.MustAdd(Option{Name: "name", Type: String, Required: true})

	if _, err := s.Parse(nil); err == nil {
		t.Fatalf("expected required option error")
	}
	if _, err := s.Parse([]string{"--name", "ok"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
}

func TestParseMutualExclusionGroup(t *testing.T) {
	t.Parallel()

	s := buildSchema(t)
	_, err := s.Parse([]string{"--pull", "--push"})
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected mutual exclusion error, got %v", err)
	}

	args, err := s.Parse([]string{"--pull"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !args.Bool("pull") || args.Bool("push") {
		t.Fatalf("unexpected group values")
	}
}

func TestParseUnknownTokensAreCaptured(t *testing.T) {
	t.Parallel()

	s := New("")
	s.MustAdd(Option{Name: "known", Type: Bool})

	args, err := s.Parse([]string{"--known", "--mystery", "stray"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(args.Unknown, []string{"--mystery", "stray"}) {
		t.Fatalf("unexpected unknown tokens %#v", args.Unknown)
	}
}

func TestSanitizeResplitsFragments(t *testing.T) {
	t.Parallel()

	got := Sanitize([]string{"--tag  img:old", "img:new", "  "})
	want := []string{"--tag", "img:old", "img:new"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Sanitize mismatch: %#v", got)
	}
}

func TestSetOverlaysValue(t *testing.T) {
	t.Parallel()

	s := buildSchema(t)
	args, err := s.Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	args.Set("mode", "safe")
	if args.String("mode") != "safe" || !args.Has("mode") {
		t.Fatalf("overlay did not take effect")
	}
}

func TestHelpListsOptions(t *testing.T) {
	t.Parallel()

	s := buildSchema(t)
	help := s.Help()
	for _, want := range []string{"test component", "--verbose", "--timeout <int>", "(default: 600)", "choices: fast, safe", "targets..."} {
		if !strings.Contains(help, want) {
			t.Fatalf("help missing %q:\n%s", want, help)
		}
	}
}

func TestLoadOptionsDocument(t *testing.T) {
	t.Parallel()

	doc := []byte(`
options:
  verbose:
    description: [Enable, verbose, output.]
    type: bool
  retries:
    description: Retry count.
    type: int
    default: 3
  mode:
    type: str
    required: yes
    choices: [fast, safe]
`)
	s, err := Load(doc, "loaded")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	opts := s.Options()
	if len(opts) != 3 {
		t.Fatalf("expected 3 options, got %d", len(opts))
	}
	// Document order preserved.
	if opts[0].Name != "verbose" || opts[1].Name != "retries" || opts[2].Name != "mode" {
		t.Fatalf("unexpected option order: %v", opts)
	}
	if opts[0].Type != Bool || opts[0].Help != "Enable verbose output." {
		t.Fatalf("unexpected verbose option: %+v", opts[0])
	}
	if opts[1].Type != Int || opts[1].Default != 3 {
		t.Fatalf("unexpected retries option: %+v", opts[1])
	}
	if !opts[2].Required || len(opts[2].Choices) != 2 {
		t.Fatalf("unexpected mode option: %+v", opts[2])
	}

	args, err := s.Parse([]string{"--mode", "safe"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if args.Int("retries") != 3 {
		t.Fatalf("expected loaded default to apply")
	}
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no options":    "other: {}",
		"bad type":      "options: {x: {type: float}}",
		"bad required":  "options: {x: {required: [1]}}",
		"not a mapping": "options: [a, b]",
	}
	for name, doc := range cases {
		if _, err := Load([]byte(doc), ""); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
