// Package compiler drives pkg/exprparser and pkg/htmlrewriter end-to-end,
// per file and in parallel across files, with incremental recompilation and
// structured tracing. It is not a template/tag parser, type checker,
// autoescape analyzer, or code generator — a Unit's *ast.SoyFileNode is
// assumed already assembled by whatever outer parser owns that job.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gaarutyunov/tofu/internal/cache"
	"github.com/gaarutyunov/tofu/pkg/ast"
	"github.com/gaarutyunov/tofu/pkg/exprparser"
	"github.com/gaarutyunov/tofu/pkg/htmlrewriter"
	"github.com/gaarutyunov/tofu/pkg/report"
)

// ExprSource is one standalone expression to parse alongside a Unit's HTML
// body, e.g. a `{$expr}` print command the outer tag parser extracted.
type ExprSource struct {
	Name string
	Text string
	Base ast.Point
}

// Unit is one template file to compile.
type Unit struct {
	Name  string
	File  *ast.SoyFileNode
	IdGen *ast.IdGenerator

	Expressions          []ExprSource
	ExperimentalFeatures []string

	// Source is hashed for cache.Cache.NeedsRecompile; it need not be the
	// literal bytes File/Expressions were derived from, only a faithful
	// stand-in that changes whenever they would.
	Source string
}

// Result is the outcome of compiling one Unit.
type Result struct {
	ID          uuid.UUID
	Name        string
	NodeCount   int
	Expressions []ast.ExprNode
	Skipped     bool
	Err         error
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithConcurrency bounds how many Units a CompileAll batch processes at
// once. n<1 is treated as 1 (sequential).
func WithConcurrency(n int) Option {
	return func(c *Compiler) { c.concurrency = n }
}

// WithCache enables incremental recompilation backed by a SHA256 hash cache
// persisted at path. An unreadable or missing cache file starts empty.
func WithCache(path string) Option {
	return func(c *Compiler) {
		ck, err := cache.Load(path)
		if err != nil {
			ck = cache.New(path)
		}
		c.cache = ck
	}
}

// WithLogger overrides the *slog.Logger used for structured compile traces.
// The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// Compiler drives pkg/exprparser and pkg/htmlrewriter over a batch of Units.
type Compiler struct {
	concurrency int
	cache       *cache.Cache
	logger      *slog.Logger
}

// New returns a Compiler configured by opts.
func New(opts ...Option) *Compiler {
	c := &Compiler{concurrency: 1, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile runs the HTML rewriter over u.File (if set) and parses every
// expression in u.Expressions, aggregating every reported diagnostic into
// Result.Err.
func (c *Compiler) Compile(ctx context.Context, u Unit) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.New()
	log := c.logger.With("unit", u.Name, "correlation_id", id.String())

	if c.cache != nil && !c.cache.NeedsRecompile(u.Name, []byte(u.Source)) {
		log.Debug("unit unchanged, skipping recompile")
		return &Result{ID: id, Name: u.Name, Skipped: true}, nil
	}

	errs := report.New()

	if u.File != nil {
		rw := htmlrewriter.New(u.ExperimentalFeatures, errs)
		rw.Run(u.File, u.IdGen)
	}

	exprs := make([]ast.ExprNode, 0, len(u.Expressions))
	for _, es := range u.Expressions {
		exprs = append(exprs, exprparser.ParseExpression(es.Name, es.Text, es.Base, errs))
	}

	res := &Result{ID: id, Name: u.Name, Expressions: exprs}
	if u.File != nil {
		res.NodeCount = ast.Count(u.File)
	}

	if errs.HasErrors() {
		res.Err = errs.Err()
		log.Warn("unit compiled with diagnostics", "diagnostics", len(errs.Diagnostics()))
	} else {
		log.Info("unit compiled", "nodes", res.NodeCount)
	}
	return res, nil
}

// CompileAll fans Units out across a bounded errgroup: an order-preserving
// result slice sized up front, one goroutine per unit, concurrency capped
// by group.SetLimit. Every Unit carries its own ast.IdGenerator and gets
// its own report.Reporter, so compiling two files in parallel never races
// on shared state.
//
// A per-unit compile error does not abort the batch: it is folded into the
// returned aggregate error, and every other unit's Result is still
// populated. Only a context cancellation aborts early.
func (c *Compiler) CompileAll(ctx context.Context, units []Unit) ([]*Result, error) {
	limit := c.concurrency
	if limit < 1 {
		limit = 1
	}

	results := make([]*Result, len(units))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	for i, u := range units {
		i, u := i, u
		group.Go(func() error {
			res, err := c.Compile(groupCtx, u)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var diagErrs []error
	for _, r := range results {
		if r != nil && r.Err != nil {
			diagErrs = append(diagErrs, fmt.Errorf("%s (%s): %w", r.Name, r.ID, r.Err))
		}
	}

	if c.cache != nil {
		if err := c.cache.Save(); err != nil {
			c.logger.Error("failed to persist compile cache", "error", err)
		}
	}

	return results, errors.Join(diagErrs...)
}
