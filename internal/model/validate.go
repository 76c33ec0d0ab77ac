package model

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jacoelho/xformdoc/internal/types"
	"github.com/jacoelho/xformdoc/internal/xmltree"
)

// Validation is the outcome of one ValidateConstraintAndType call.
type Validation struct {
	Path  string
	Index int
	// Value is the snapshot that was validated.
	Value string
	Valid bool
	Err   error
}

// ValidateConstraintAndType checks the single matched node's value against
// xmlType and constraint. The value is read when the call is made; the
// checks run on their own goroutine and the channel delivers one result.
// Empty values are valid.
func (n *Nodeset) ValidateConstraintAndType(ctx context.Context, constraint, xmlType string) <-chan Validation {
	out := make(chan Validation, 1)
	result := Validation{Path: n.path, Index: n.index}

	n.m.mu.RLock()
	ids, err := n.get()
	if err == nil && len(ids) != 1 {
		err = fmt.Errorf("%w: %d nodes match %s", ErrNotSingleNode, len(ids), n.path)
	}
	id := xmltree.None
	if err == nil {
		id = ids[0]
		result.Value = n.m.tree.TextContent(id)
	}
	n.m.mu.RUnlock()

	if err != nil {
		result.Err = err
		out <- result
		close(out)
		return out
	}

	go func() {
		defer close(out)
		result.Valid, result.Err = n.m.validate(ctx, id, result.Value, constraint, xmlType)
		out <- result
	}()
	return out
}

func (m *Model) validate(ctx context.Context, id xmltree.NodeID, value, constraint, xmlType string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if value == "" {
		return true, nil
	}
	if !types.Valid(value, xmlType) {
		return false, nil
	}
	if strings.TrimSpace(constraint) == "" {
		return true, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result, err := m.evaluate(constraint, Boolean, id)
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// ValidationRequest names a node and the checks to run on it.
type ValidationRequest struct {
	Path       string
	Index      int
	Constraint string
	Type       string
}

// ValidateAll runs the requests concurrently and returns their verdicts in
// request order. The first failing evaluation cancels the rest.
func (m *Model) ValidateAll(ctx context.Context, requests []ValidationRequest) ([]bool, error) {
	results := make([]bool, len(requests))
	g, ctx := errgroup.WithContext(ctx)
	for i, request := range requests {
		g.Go(func() error {
			validation := <-m.Node(request.Path, request.Index, Filter{}).ValidateConstraintAndType(ctx, request.Constraint, request.Type)
			if validation.Err != nil {
				return validation.Err
			}
			results[i] = validation.Valid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
