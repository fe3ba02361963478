package compiler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaarutyunov/tofu/pkg/ast"
)

func newUnit(t *testing.T, name, html string, exprs ...string) Unit {
	t.Helper()
	ids := ast.NewIdGenerator()
	begin := ast.Point{Filename: name, Line: 1, Column: 1}
	loc := ast.NewSourceLocation(begin, begin)
	file := ast.NewSoyFileNode(ids, loc, name, ast.ContentHTML)
	file.AddChildren(ast.NewRawTextNode(ids, loc, html))

	sources := make([]ExprSource, len(exprs))
	for i, e := range exprs {
		sources[i] = ExprSource{Name: name, Text: e, Base: begin}
	}
	return Unit{
		Name:                 name,
		File:                 file,
		IdGen:                ids,
		Expressions:          sources,
		ExperimentalFeatures: []string{"stricthtml"},
		Source:               html,
	}
}

func TestCompileSingleUnit(t *testing.T) {
	c := New()
	res, err := c.Compile(context.Background(), newUnit(t, "a.soy", `<a href="x">hi</a>`, "1 + 2"))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Skipped)
	assert.Nil(t, res.Err)
	assert.Greater(t, res.NodeCount, 0)
	require.Len(t, res.Expressions, 1)
}

func TestCompileReportsDiagnosticsWithoutFailingTheCall(t *testing.T) {
	c := New()
	res, err := c.Compile(context.Background(), newUnit(t, "bad.soy", `<a href=`, "9007199254740993"))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Error(t, res.Err)
}

func TestCompileAllPreservesOrder(t *testing.T) {
	c := New(WithConcurrency(4))
	units := []Unit{
		newUnit(t, "one.soy", `<a href="x">hi</a>`, "1"),
		newUnit(t, "two.soy", `<b href="y">lo</b>`, "2"),
		newUnit(t, "three.soy", `<span>z</span>`, "3"),
	}
	results, err := c.CompileAll(context.Background(), units)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, want := range []string{"one.soy", "two.soy", "three.soy"} {
		require.NotNil(t, results[i])
		assert.Equal(t, want, results[i].Name)
	}
}

func TestCompileAllAggregatesPerUnitDiagnostics(t *testing.T) {
	c := New()
	units := []Unit{
		newUnit(t, "ok.soy", `<a href="x">hi</a>`),
		newUnit(t, "bad.soy", `<a href=`),
	}
	results, err := c.CompileAll(context.Background(), units)
	require.Len(t, results, 2)
	require.Error(t, err)
	assert.Nil(t, results[0].Err)
	assert.NotNil(t, results[1].Err)
}

func TestWithCacheSkipsUnchangedUnit(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	c := New(WithCache(cachePath))

	u := newUnit(t, "cached.soy", `<a href="x">hi</a>`)
	first, err := c.Compile(context.Background(), u)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	u2 := newUnit(t, "cached.soy", `<a href="x">hi</a>`)
	second, err := c.Compile(context.Background(), u2)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
}

func TestWithCacheRecompilesChangedUnit(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	c := New(WithCache(cachePath))

	first, err := c.Compile(context.Background(), newUnit(t, "x.soy", `<a href="x">hi</a>`))
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := c.Compile(context.Background(), newUnit(t, "x.soy", `<a href="y">hi</a>`))
	require.NoError(t, err)
	assert.False(t, second.Skipped)
}

func TestCompileRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New()
	_, err := c.Compile(ctx, newUnit(t, "a.soy", `<a href="x">hi</a>`))
	assert.Error(t, err)
}
