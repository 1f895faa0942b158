/*
Package di wires request handlers to the values they depend on.

Dependencies are declared as nodes. A node has a scope, a cache key and a
list of dependencies:

	db := di.Provide(openDB, di.WithScope(di.ScopeApp), di.Closing())
	repo := di.Derive1(db, func(ctx context.Context, db *sql.DB) (*Repo, error) {
		return &Repo{db: db}, nil
	})

Solve flattens a list of root dependencies into an immutable Graph once,
at startup. Each request then enters scopes and executes the graph:

	app, _ := di.Enter(di.ScopeApp, nil)
	conn, _ := di.Enter(di.ScopeConnection, app)
	ep, _ := di.Enter(di.ScopeEndpoint, conn)
	vals, err := graph.Execute(ctx, ep, di.Concurrent{})
	r := repo.From(vals)

A value is computed at most once per scope instance and cache key. A node
may only depend on nodes whose scope is at least as wide as its own.
Cleanups registered on a scope run in reverse order when it is closed.

Overrides replace nodes by cache key at solve time, which is how tests swap
real dependencies for fakes without mutating the declared graph.
*/
package di
