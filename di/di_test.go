package di

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scopes struct {
	app, conn, ep *State
}

func enterAll(t *testing.T) scopes {
	t.Helper()

	app, err := Enter(ScopeApp, nil)
	require.NoError(t, err)

	return enterRequest(t, app)
}

func enterRequest(t *testing.T, app *State) scopes {
	t.Helper()

	conn, err := Enter(ScopeConnection, app)
	require.NoError(t, err)

	ep, err := Enter(ScopeEndpoint, conn)
	require.NoError(t, err)

	return scopes{app: app, conn: conn, ep: ep}
}

func counter(n *atomic.Int32, opts ...Option) Dep[int32] {
	return Provide(func(context.Context) (int32, error) {
		return n.Add(1), nil
	}, opts...)
}

func TestSolve(t *testing.T) {
	t.Run("orders dependencies first", func(t *testing.T) {
		a := Value(1)
		b := Derive1(a, func(_ context.Context, a int) (int, error) { return a + 1, nil })
		c := Derive2(a, b, func(_ context.Context, a, b int) (int, error) { return a + b, nil })

		g, err := Solve([]Dependency{c}, nil)
		require.NoError(t, err)
		require.Equal(t, 3, g.Len())

		nodes := g.Nodes()
		assert.Same(t, a.Node(), nodes[0])
		assert.Same(t, b.Node(), nodes[1])
		assert.Same(t, c.Node(), nodes[2])
		assert.Equal(t, []int{0, 1}, g.DepsOf(2))
	})

	t.Run("deduplicates by key", func(t *testing.T) {
		var n atomic.Int32
		a := counter(&n, WithKey("shared"))
		b := counter(&n, WithKey("shared"))

		g, err := Solve([]Dependency{a, b}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, g.Len())
		assert.True(t, g.Contains(b))
	})

	t.Run("rejects cycles", func(t *testing.T) {
		fn := func(context.Context, []any) (any, error) { return nil, nil }
		a := NewNode(fn, nil, WithName("a"))
		b := NewNode(fn, []Dependency{a}, WithName("b"))
		a.deps = []Dependency{b}

		_, err := Solve([]Dependency{a}, nil)
		assert.ErrorIs(t, err, ErrCycle)
	})

	t.Run("rejects narrower dependency scopes", func(t *testing.T) {
		conn := Provide(func(context.Context) (int, error) { return 1, nil }, WithName("conn"))
		app := Derive1(conn, func(_ context.Context, v int) (int, error) { return v, nil },
			WithScope(ScopeApp), WithName("app"))

		_, err := Solve([]Dependency{app}, nil)
		assert.ErrorIs(t, err, ErrScopeMismatch)
	})

	t.Run("allows wider dependency scopes", func(t *testing.T) {
		app := Value("cfg")
		ep := Derive1(app, func(_ context.Context, v string) (string, error) { return v, nil },
			WithScope(ScopeEndpoint))

		_, err := Solve([]Dependency{ep}, nil)
		assert.NoError(t, err)
	})

	t.Run("surfaces node configuration errors", func(t *testing.T) {
		bad := errors.New("bad binder")
		n := NewNode(nil, nil, WithError(bad))

		_, err := Solve([]Dependency{Value(1), n}, nil)
		assert.ErrorIs(t, err, bad)
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves typed values", func(t *testing.T) {
		a := Value(20)
		b := Value(22)
		sum := Derive2(a, b, func(_ context.Context, a, b int) (int, error) { return a + b, nil })

		g, err := Solve([]Dependency{sum}, nil)
		require.NoError(t, err)

		s := enterAll(t)
		vals, err := g.Execute(ctx, s.ep, nil)
		require.NoError(t, err)
		assert.Equal(t, 42, sum.From(vals))
	})

	t.Run("app scope evaluates once across requests", func(t *testing.T) {
		var n atomic.Int32
		app := counter(&n, WithScope(ScopeApp))

		g, err := Solve([]Dependency{app}, nil)
		require.NoError(t, err)

		s := enterAll(t)
		for range 3 {
			req := enterRequest(t, s.app)
			vals, err := g.Execute(ctx, req.ep, nil)
			require.NoError(t, err)
			assert.Equal(t, int32(1), app.From(vals))
		}

		assert.Equal(t, int32(1), n.Load())
	})

	t.Run("connection scope evaluates per request", func(t *testing.T) {
		var n atomic.Int32
		conn := counter(&n)

		g, err := Solve([]Dependency{conn}, nil)
		require.NoError(t, err)

		s := enterAll(t)
		for range 3 {
			req := enterRequest(t, s.app)
			_, err := g.Execute(ctx, req.ep, nil)
			require.NoError(t, err)
		}

		assert.Equal(t, int32(3), n.Load())
	})

	t.Run("shared key evaluates once per scope", func(t *testing.T) {
		var n atomic.Int32
		a := counter(&n, WithKey("k"))
		b := counter(&n, WithKey("k"))

		g1, err := Solve([]Dependency{a}, nil)
		require.NoError(t, err)
		g2, err := Solve([]Dependency{b}, nil)
		require.NoError(t, err)

		s := enterAll(t)
		_, err = g1.Execute(ctx, s.ep, nil)
		require.NoError(t, err)

		vals, err := g2.Execute(ctx, s.ep, nil)
		require.NoError(t, err)
		assert.Equal(t, int32(1), b.From(vals))
		assert.Equal(t, int32(1), n.Load())
	})

	t.Run("failures are not cached", func(t *testing.T) {
		var calls atomic.Int32
		flaky := Provide(func(context.Context) (int, error) {
			if calls.Add(1) == 1 {
				return 0, errors.New("first call fails")
			}

			return 1, nil
		}, WithScope(ScopeApp))

		g, err := Solve([]Dependency{flaky}, nil)
		require.NoError(t, err)

		s := enterAll(t)
		_, err = g.Execute(ctx, s.ep, nil)
		require.Error(t, err)

		vals, err := g.Execute(ctx, enterRequest(t, s.app).ep, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, flaky.From(vals))
	})

	t.Run("bound values", func(t *testing.T) {
		req := Bound[string]("request", ScopeConnection)
		upper := Derive1(req, func(_ context.Context, s string) (string, error) { return s + "!", nil })

		g, err := Solve([]Dependency{upper}, nil)
		require.NoError(t, err)

		s := enterAll(t)
		require.NoError(t, s.conn.Bind(req, "hi"))

		vals, err := g.Execute(ctx, s.ep, nil)
		require.NoError(t, err)
		assert.Equal(t, "hi!", upper.From(vals))

		_, err = g.Execute(ctx, enterAll(t).ep, nil)
		assert.ErrorIs(t, err, ErrNotBound)
	})

	t.Run("bind validates target", func(t *testing.T) {
		s := enterAll(t)
		assert.Error(t, s.conn.Bind(Value(1), 2))
		assert.ErrorIs(t, s.ep.Bind(Bound[int]("x", ScopeConnection), 1), ErrScopeOrder)
	})

	t.Run("missing scope", func(t *testing.T) {
		ep := Provide(func(context.Context) (int, error) { return 1, nil }, WithScope(ScopeEndpoint))

		g, err := Solve([]Dependency{ep}, nil)
		require.NoError(t, err)

		_, err = g.Execute(ctx, enterAll(t).conn, nil)
		assert.ErrorIs(t, err, ErrScopeNotEntered)
	})

	t.Run("exited scope", func(t *testing.T) {
		g, err := Solve([]Dependency{Value(1)}, nil)
		require.NoError(t, err)

		s := enterAll(t)
		require.NoError(t, s.ep.Close())

		_, err = g.Execute(ctx, s.ep, nil)
		assert.ErrorIs(t, err, ErrScopeExited)
	})
}

func TestOverrides(t *testing.T) {
	ctx := context.Background()

	source := Provide(func(context.Context) (string, error) { return "real", nil })
	user := Derive1(source, func(_ context.Context, s string) (string, error) { return "user:" + s, nil })

	g, err := Solve([]Dependency{user}, nil)
	require.NoError(t, err)

	fake := Provide(func(context.Context) (string, error) { return "fake", nil })
	ov := NewOverrides().With(source, fake)

	og, err := Solve([]Dependency{user}, ov)
	require.NoError(t, err)

	t.Run("replaces by key", func(t *testing.T) {
		vals, err := og.Execute(ctx, enterAll(t).ep, nil)
		require.NoError(t, err)
		assert.Equal(t, "user:fake", user.From(vals))
		assert.Equal(t, "fake", source.From(vals))
	})

	t.Run("original graph is untouched", func(t *testing.T) {
		vals, err := g.Execute(ctx, enterAll(t).ep, nil)
		require.NoError(t, err)
		assert.Equal(t, "user:real", user.From(vals))
	})

	t.Run("with copies", func(t *testing.T) {
		base := NewOverrides()
		next := base.With(source, fake)
		assert.Equal(t, 0, base.Len())
		assert.Equal(t, 1, next.Len())
	})

	t.Run("merge prefers other", func(t *testing.T) {
		other := Provide(func(context.Context) (string, error) { return "other", nil })
		merged := ov.Merge(NewOverrides().With(source, other))
		assert.Equal(t, 1, merged.Len())
		assert.Equal(t, 1, ov.Len())

		mg, err := Solve([]Dependency{user}, merged)
		require.NoError(t, err)

		vals, err := mg.Execute(ctx, enterAll(t).ep, nil)
		require.NoError(t, err)
		assert.Equal(t, "user:other", user.From(vals))
	})

	t.Run("merge nil", func(t *testing.T) {
		var none *Overrides
		assert.Equal(t, 1, none.Merge(ov).Len())
		assert.Equal(t, 1, ov.Merge(nil).Len())
	})
}

type closer struct {
	name string
	log  *[]string
}

func (c *closer) Close() error {
	*c.log = append(*c.log, c.name)
	return nil
}

func TestState(t *testing.T) {
	t.Run("enter validates nesting", func(t *testing.T) {
		app, err := Enter(ScopeApp, nil)
		require.NoError(t, err)

		_, err = Enter(ScopeEndpoint, app)
		assert.ErrorIs(t, err, ErrScopeOrder)

		_, err = Enter(ScopeConnection, nil)
		assert.ErrorIs(t, err, ErrScopeOrder)

		_, err = Enter(ScopeApp, app)
		assert.ErrorIs(t, err, ErrScopeOrder)

		require.NoError(t, app.Close())
		_, err = Enter(ScopeConnection, app)
		assert.ErrorIs(t, err, ErrScopeExited)
	})

	t.Run("becomes active on execute", func(t *testing.T) {
		g, err := Solve([]Dependency{Value(1)}, nil)
		require.NoError(t, err)

		s := enterAll(t)
		assert.False(t, s.ep.Active())

		_, err = g.Execute(context.Background(), s.ep, nil)
		require.NoError(t, err)
		assert.True(t, s.ep.Active())
		assert.True(t, s.app.Active())
	})

	t.Run("closes values in reverse order", func(t *testing.T) {
		var log []string

		first := Provide(func(context.Context) (*closer, error) {
			return &closer{name: "first", log: &log}, nil
		}, Closing())
		second := Derive1(first, func(_ context.Context, _ *closer) (*closer, error) {
			return &closer{name: "second", log: &log}, nil
		}, Closing())

		g, err := Solve([]Dependency{second}, nil)
		require.NoError(t, err)

		s := enterAll(t)
		_, err = g.Execute(context.Background(), s.ep, nil)
		require.NoError(t, err)

		s.conn.Defer(func() error {
			log = append(log, "deferred")
			return nil
		})

		require.NoError(t, s.ep.Close())
		assert.Empty(t, log)

		require.NoError(t, s.conn.Close())
		assert.Equal(t, []string{"deferred", "second", "first"}, log)

		require.NoError(t, s.conn.Close())
		assert.Len(t, log, 3)
	})

	t.Run("joins cleanup errors", func(t *testing.T) {
		s := enterAll(t)
		s.app.Defer(func() error { return errors.New("one") })
		s.app.Defer(func() error { return errors.New("two") })

		err := s.app.Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "one")
		assert.Contains(t, err.Error(), "two")
	})
}

func TestConcurrent(t *testing.T) {
	ctx := context.Background()

	t.Run("runs independent nodes in parallel", func(t *testing.T) {
		var barrier sync.WaitGroup
		barrier.Add(2)

		meet := func(ctx context.Context) (bool, error) {
			barrier.Done()

			waited := make(chan struct{})
			go func() {
				barrier.Wait()
				close(waited)
			}()

			select {
			case <-waited:
				return true, nil
			case <-time.After(2 * time.Second):
				return false, errors.New("peer never started")
			}
		}

		a := Provide(meet)
		b := Provide(meet)
		both := Derive2(a, b, func(_ context.Context, a, b bool) (bool, error) { return a && b, nil })

		g, err := Solve([]Dependency{both}, nil)
		require.NoError(t, err)

		vals, err := g.Execute(ctx, enterAll(t).ep, Concurrent{})
		require.NoError(t, err)
		assert.True(t, both.From(vals))
	})

	t.Run("honours dependency order", func(t *testing.T) {
		var order []string
		var mu sync.Mutex

		record := func(name string) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}

		leaf := Provide(func(context.Context) (int, error) {
			time.Sleep(10 * time.Millisecond)
			record("leaf")
			return 1, nil
		})
		mid := Derive1(leaf, func(_ context.Context, v int) (int, error) {
			record("mid")
			return v + 1, nil
		})
		top := Derive2(leaf, mid, func(_ context.Context, a, b int) (int, error) {
			record("top")
			return a + b, nil
		})

		g, err := Solve([]Dependency{top}, nil)
		require.NoError(t, err)

		vals, err := g.Execute(ctx, enterAll(t).ep, Concurrent{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, top.From(vals))
		assert.Equal(t, []string{"leaf", "mid", "top"}, order)
	})

	t.Run("stops on first error", func(t *testing.T) {
		boom := errors.New("boom")

		var ran atomic.Bool
		bad := Provide(func(context.Context) (int, error) { return 0, boom })
		after := Derive1(bad, func(_ context.Context, v int) (int, error) {
			ran.Store(true)
			return v, nil
		})

		g, err := Solve([]Dependency{after}, nil)
		require.NoError(t, err)

		_, err = g.Execute(ctx, enterAll(t).ep, Concurrent{})
		assert.ErrorIs(t, err, boom)
		assert.False(t, ran.Load())
	})
}

func TestScopeString(t *testing.T) {
	assert.Equal(t, "endpoint", ScopeEndpoint.String())
	assert.Equal(t, "connection", ScopeConnection.String())
	assert.Equal(t, "app", ScopeApp.String())
	assert.Equal(t, "Scope(9)", Scope(9).String())
}
