package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/jacoelho/xformdoc/internal/exit"
	"github.com/jacoelho/xformdoc/internal/session"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	ErrNoArguments            = errors.New("no arguments provided")
	ErrNoFormFile             = errors.New("no form definition specified")
	ErrTooManyForms           = errors.New("only one form definition can be given")
	ErrInvalidExternalFormat  = errors.New("external instance must be in format id=FILE")
	ErrEmptyExternalID        = errors.New("external instance id cannot be empty")
	ErrInvalidColor           = errors.New("color must be auto, always or never")
	ErrInvalidFormat          = errors.New("format must be text or json")
	ErrNegativeContextIndex   = errors.New("context index cannot be negative")
	ErrContextWithoutEvaluate = errors.New("context flags require at least one -eval")
)

// Config represents the complete configuration for the xformdoc tool.
type Config struct {
	// Inputs
	FormFile    string
	SessionFile string
	RecordFile  string
	Externals   map[string]string // Instance id to file
	Unsubmitted bool
	NoSecondary bool

	// Repeats
	Ordinals bool
	Repeats  []string // Repeats without explicit templates

	// Scripted work, from the session file and -eval flags
	Steps       []session.Step
	Queries     []session.Query
	Validations []session.Validation

	// Output
	IncludeIrrelevant bool
	Diff              bool
	Format            string
	Color             string
	Debug             bool
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.FormFile == "" {
		return ErrNoFormFile
	}

	if _, err := os.Stat(c.FormFile); err != nil {
		return fmt.Errorf("form file %s not found: %w", c.FormFile, err)
	}

	if c.RecordFile != "" {
		if _, err := os.Stat(c.RecordFile); err != nil {
			return fmt.Errorf("record file %s not found: %w", c.RecordFile, err)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(c.Externals)) {
		if _, err := os.Stat(c.Externals[id]); err != nil {
			return fmt.Errorf("external instance %s file %s not found: %w", id, c.Externals[id], err)
		}
	}

	if !slices.Contains([]string{ColorAuto, ColorAlways, ColorNever}, c.Color) {
		return fmt.Errorf("%w, got: %s", ErrInvalidColor, c.Color)
	}

	if !slices.Contains([]string{FormatText, FormatJSON}, c.Format) {
		return fmt.Errorf("%w, got: %s", ErrInvalidFormat, c.Format)
	}

	return nil
}

// externalsFlag implements flag.Value for parsing multiple -external flags.
type externalsFlag map[string]string

// String returns a string representation of the externals flag for flag.Value interface.
func (e externalsFlag) String() string {
	var pairs []string
	for _, k := range slices.Sorted(maps.Keys(e)) {
		pairs = append(pairs, k+"="+e[k])
	}
	return strings.Join(pairs, ",")
}

// Set parses and stores an external instance in id=FILE format for flag.Value interface.
func (e externalsFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%w, got: %s", ErrInvalidExternalFormat, value)
	}

	id := strings.TrimSpace(parts[0])
	if id == "" {
		return ErrEmptyExternalID
	}

	e[id] = parts[1]
	return nil
}

// listFlag implements flag.Value for repeatable string flags.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(value string) error {
	*l = append(*l, value)
	return nil
}

// Parse parses command-line arguments and returns a validated Config.
// If parsing fails or help is requested, returns nil config and exit result.
func Parse(args []string) (*Config, *exit.Result) {
	if len(args) == 0 {
		return nil, exit.Errorf("Error: %v\n\n%s", ErrNoArguments, Usage())
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)

	// Suppress the default usage output since we handle it ourselves
	fs.Usage = func() {}
	// Suppress error output since we handle it ourselves
	fs.SetOutput(io.Discard)

	var (
		sessionFile  = fs.String("session", "", "Path to a YAML session file")
		recordFile   = fs.String("record", "", "Path to an edit record merged into the primary instance")
		externals    = make(externalsFlag)
		unsubmitted  = fs.Bool("unsubmitted", false, "Keep the record's instanceID")
		noSecondary  = fs.Bool("no-secondary", false, "Drop secondary instances")
		ordinals     = fs.Bool("ordinals", false, "Stamp ordinals on cloned repeats")
		repeats      listFlag
		evals        listFlag
		resultType   = fs.String("type", "string", "Result type for -eval: string, boolean, number or nodes")
		contextPath  = fs.String("context", "", "Context path for -eval")
		contextIndex = fs.Int("index", 0, "Context index for -eval")
		irrelevant   = fs.Bool("irrelevant", false, "Include irrelevant nodes in the serialized instance")
		diff         = fs.Bool("diff", false, "Print a diff of the instance against its defaults")
		format       = fs.String("format", FormatText, "Output format: text or json")
		color        = fs.String("color", ColorAuto, "Colored output: auto, always or never")
		debug        = fs.Bool("debug", false, "Enable debug logging")
	)

	fs.Var(externals, "external", "External instance in format id=FILE (can be used multiple times)")
	fs.Var(&repeats, "repeat", "Repeat path without an explicit template (can be used multiple times)")
	fs.Var(&evals, "eval", "Expression to evaluate (can be used multiple times)")

	if err := fs.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			return nil, exit.Success(Usage())
		}
		return nil, exit.Errorf("Error: failed to parse arguments: %v\n\n%s", err, Usage())
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	forms := fs.Args()
	if len(forms) > 1 {
		return nil, exit.Errorf("Error: %v\n\n%s", ErrTooManyForms, Usage())
	}

	if *contextIndex < 0 {
		return nil, exit.Errorf("Error: %v\n\n%s", ErrNegativeContextIndex, Usage())
	}

	if (set["context"] || set["index"] || set["type"]) && len(evals) == 0 {
		return nil, exit.Errorf("Error: %v\n\n%s", ErrContextWithoutEvaluate, Usage())
	}

	config := &Config{
		SessionFile:       *sessionFile,
		Externals:         make(map[string]string),
		IncludeIrrelevant: *irrelevant,
		Diff:              *diff,
		Format:            *format,
		Color:             *color,
		Debug:             *debug,
	}

	// Session values first, then command-line flags
	if *sessionFile != "" {
		s, err := session.Load(*sessionFile)
		if err != nil {
			return nil, exit.Errorf("Error: failed to load session file: %v\n\n%s", err, Usage())
		}
		config.applySession(s)
	}

	if len(forms) == 1 {
		config.FormFile = forms[0]
	}
	if set["record"] {
		config.RecordFile = *recordFile
	}
	if set["unsubmitted"] {
		config.Unsubmitted = *unsubmitted
	}
	if set["ordinals"] {
		config.Ordinals = *ordinals
	}
	config.NoSecondary = *noSecondary
	maps.Copy(config.Externals, externals)
	config.Repeats = append(config.Repeats, repeats...)

	for _, expr := range evals {
		config.Queries = append(config.Queries, session.Query{
			Expr:    expr,
			Type:    *resultType,
			Context: *contextPath,
			Index:   *contextIndex,
		})
	}

	if err := config.Validate(); err != nil {
		return nil, exit.Errorf("Error: %v\n\n%s", err, Usage())
	}

	return config, nil
}

func (c *Config) applySession(s *session.Session) {
	c.FormFile = s.Form
	c.RecordFile = s.Record
	c.Unsubmitted = s.Unsubmitted
	c.Ordinals = s.Ordinals
	maps.Copy(c.Externals, s.External)
	c.Repeats = slices.Clone(s.Repeats)
	c.Steps = s.Steps
	c.Queries = s.Queries
	c.Validations = s.Validations
}

// Usage returns a usage string for the CLI tool.
func Usage() string {
	return `xformdoc - XForm instance inspection tool

Usage: xformdoc [options] [form.xml]

Options:
  --session FILE          YAML session file with inputs, steps, queries and validations
  --record FILE           Edit record merged into the primary instance
  --external ID=FILE      External instance content (can be used multiple times)
  --unsubmitted           Keep the record's instanceID instead of deprecating it
  --no-secondary          Drop secondary instances
  --ordinals              Stamp ordinals on cloned repeats
  --repeat PATH           Repeat path without an explicit template (can be used multiple times)
  --eval EXPR             Expression to evaluate (can be used multiple times)
  --type TYPE             Result type for --eval: string, boolean, number or nodes (default: string)
  --context PATH          Context path for --eval
  --index N               Context index for --eval (default: 0)
  --irrelevant            Include irrelevant nodes in the serialized instance
  --diff                  Print a diff of the instance against its defaults
  --format FORMAT         Output format: text or json (default: text)
  --color MODE            Colored output: auto, always or never (default: auto)
  --debug                 Enable debug logging
  -h, --help              Show this help message

Examples:
  xformdoc form.xml                                  # Print the default instance
  xformdoc --record record.xml --diff form.xml       # Show what the record changed
  xformdoc --eval 'count(/data/item)' form.xml       # Evaluate an expression
  xformdoc --external cities=cities.xml form.xml     # Supply an external instance
  xformdoc --session session.yaml                    # Run a scripted session`
}
