// Package app runs one inspection: it loads a form with its record and
// external instances, applies the scripted steps, evaluates queries and
// validations and writes a report.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"os"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/jacoelho/xformdoc/internal/config"
	"github.com/jacoelho/xformdoc/internal/exit"
	"github.com/jacoelho/xformdoc/internal/model"
	"github.com/jacoelho/xformdoc/internal/notify"
	"github.com/jacoelho/xformdoc/internal/number"
	"github.com/jacoelho/xformdoc/internal/output"
	"github.com/jacoelho/xformdoc/internal/session"
	"github.com/jacoelho/xformdoc/internal/xpath"
)

// Runner executes a configured inspection.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	formatter *output.Formatter
}

// New creates a runner writing to stdout.
func New(cfg *config.Config, logger *slog.Logger) (*Runner, *exit.Result) {
	format, err := output.ParseFormat(cfg.Format)
	if err != nil {
		return nil, exit.Errorf("Error: %v\n", err)
	}

	var enabled *bool
	switch cfg.Color {
	case config.ColorAlways:
		enabled = ptr(true)
	case config.ColorNever:
		enabled = ptr(false)
	}

	return NewWithFormatter(cfg, logger, output.New(format, enabled)), nil
}

// NewWithFormatter creates a runner with a custom formatter.
func NewWithFormatter(cfg *config.Config, logger *slog.Logger, formatter *output.Formatter) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger, formatter: formatter}
}

func ptr[T any](v T) *T {
	return &v
}

// Run builds and prints the report and returns the process exit code.
func (r *Runner) Run(ctx context.Context) int {
	report, err := r.Report(ctx)
	if err != nil {
		result := exit.Errorf("Error: %v\n", err)
		result.Print()
		return result.ExitCode
	}

	if err := r.formatter.Format(report); err != nil {
		result := exit.Errorf("Error: failed to write report: %v\n", err)
		result.Print()
		return result.ExitCode
	}

	if len(report.LoadErrors) > 0 {
		result := exit.LoadErrors(report.LoadErrors)
		result.Print()
		return result.ExitCode
	}
	return exit.CodeOK
}

type inputs struct {
	definition string
	record     string
	externals  []model.ExternalInstance
}

func (r *Runner) readInputs(ctx context.Context) (*inputs, error) {
	in := &inputs{}
	ids := slices.Sorted(maps.Keys(r.cfg.Externals))
	in.externals = make([]model.ExternalInstance, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	read := func(filename string, dst *string) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filename)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", filename, err)
			}
			*dst = string(data)
			return nil
		})
	}

	read(r.cfg.FormFile, &in.definition)
	if r.cfg.RecordFile != "" {
		read(r.cfg.RecordFile, &in.record)
	}
	for i, id := range ids {
		in.externals[i].ID = id
		read(r.cfg.Externals[id], &in.externals[i].Content)
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

func (r *Runner) options(in *inputs, withRecord bool) model.Options {
	opts := model.Options{
		DropSecondaryInstances: r.cfg.NoSecondary,
		External:               in.externals,
		UnsubmittedRecord:      r.cfg.Unsubmitted,
		RepeatOrdinals:         r.cfg.Ordinals,
		Logger:                 r.logger,
	}
	if withRecord {
		opts.Record = in.record
	}
	return opts
}

// Report loads the form, runs the steps, queries and validations and
// returns what they produced. Load errors are part of the report, not an
// error.
func (r *Runner) Report(ctx context.Context) (*output.Report, error) {
	in, err := r.readInputs(ctx)
	if err != nil {
		return nil, err
	}

	report := &output.Report{Form: r.cfg.FormFile}

	if r.cfg.Diff {
		defaults := model.New(in.definition, r.options(in, false))
		defaults.Init()
		if err := defaults.ExtractFakeTemplates(r.cfg.Repeats); err != nil {
			return nil, err
		}
		report.Default = defaults.Serialize(model.SerializeOptions{IncludeIrrelevant: r.cfg.IncludeIrrelevant})
	}

	m := model.New(in.definition, r.options(in, true))

	// Events are published on the mutating goroutine.
	unsubscribe := m.Subscribe(func(event notify.Event) {
		report.Events = append(report.Events, output.Event{
			Kind:           event.Kind.String(),
			Path:           event.Path,
			Nodes:          event.Nodes,
			RepeatPath:     event.RepeatPath,
			RepeatPosition: event.RepeatPosition,
		})
	})
	defer unsubscribe()

	report.LoadErrors = m.Init()
	if err := m.ExtractFakeTemplates(r.cfg.Repeats); err != nil {
		return nil, err
	}

	for i, step := range r.cfg.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.apply(m, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	for _, query := range r.cfg.Queries {
		report.Queries = append(report.Queries, r.query(m, query))
	}

	if len(r.cfg.Validations) > 0 {
		validations, err := r.validate(ctx, m)
		if err != nil {
			return nil, err
		}
		report.Validations = validations
	}

	report.InstanceID = m.InstanceID()
	report.DeprecatedID = m.DeprecatedID()
	report.Instance = m.Serialize(model.SerializeOptions{IncludeIrrelevant: r.cfg.IncludeIrrelevant})
	return report, nil
}

func (r *Runner) apply(m *model.Model, step session.Step) error {
	action, path, err := step.Target()
	if err != nil {
		return err
	}
	r.logger.Debug("applying step", "action", action, "path", path)

	switch action {
	case session.ActionClone:
		return m.CloneRepeat(path, step.IndexOr(-1), r.cfg.Ordinals)
	case session.ActionSet:
		_, err := m.Node(path, step.IndexOr(model.All), model.Filter{}).SetValue(step.Value, step.Type)
		return err
	case session.ActionRemove:
		return m.Node(path, step.IndexOr(model.All), model.Filter{}).Remove()
	case session.ActionCount:
		return m.SetRepeatCount(path, step.Value)
	case session.ActionRelevant:
		return m.Node(path, step.IndexOr(model.All), model.Filter{}).SetRelevant(step.Value != "false")
	default:
		return fmt.Errorf("%w: unknown action %s", session.ErrSession, action)
	}
}

func (r *Runner) query(m *model.Model, query session.Query) output.QueryResult {
	result := output.QueryResult{Expr: query.Expr, Type: query.Type}

	resultType, err := model.ParseResultType(query.Type)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Type = resultType.String()

	value, err := m.Evaluate(query.Expr, resultType, query.Context, query.Index)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			result.Result = number.Format(v)
		} else {
			result.Result = v
		}
	case xpath.NodeSet:
		paths := make([]string, 0, len(v))
		for _, id := range v.IDs() {
			paths = append(paths, m.XPath(id, "", true))
		}
		result.Result = paths
	default:
		result.Result = v
	}
	return result
}

func (r *Runner) validate(ctx context.Context, m *model.Model) ([]output.ValidationResult, error) {
	requests := make([]model.ValidationRequest, len(r.cfg.Validations))
	for i, v := range r.cfg.Validations {
		index := 0
		if v.Index != nil {
			index = *v.Index
		}
		requests[i] = model.ValidationRequest{
			Path:       v.Path,
			Index:      index,
			Constraint: v.Constraint,
			Type:       v.Type,
		}
	}

	verdicts, err := m.ValidateAll(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	results := make([]output.ValidationResult, len(requests))
	for i, request := range requests {
		results[i] = output.ValidationResult{Path: request.Path, Index: request.Index, Valid: verdicts[i]}
	}
	return results, nil
}
