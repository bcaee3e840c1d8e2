package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dDoc/lib/errs"
	"github.com/ValentinKolb/dDoc/lib/store"
)

// Names of the database and collection operations
const (
	OpListDatabases    = "list-databases"
	OpListCollections  = "collections-available-in-db"
	OpCreateCollection = "create-collection"
	OpDropCollection   = "drop-collection"
	OpCreateDatabase   = "create-database"
	OpDropDatabase     = "drop-database"
)

// SentinelCollection is created and dropped again by create-database, since a
// database only materialises once it holds a collection.
const SentinelCollection = "__ddoc_sentinel"

type createCollectionParams struct {
	collParams
	Options Document `json:"options,omitempty"`
}

func adminOps() []Descriptor {
	return []Descriptor{
		{
			Name:        OpListDatabases,
			Description: "List all databases.",
			Schema:      object(nil, nil),
			Exec: bind(func(ctx context.Context, _ Common, conn store.IConn) (Result, error) {
				names, err := conn.ListDatabases(ctx)
				if err != nil {
					return Result{}, err
				}
				return Result{Value: names, Text: "Databases: " + strings.Join(names, ", ")}, nil
			}),
		},
		{
			Name:        OpListCollections,
			Description: "List the collections of a database.",
			Schema:      object([]string{"db"}, dbProps(false, nil)),
			Exec: bind(func(ctx context.Context, p dbParams, conn store.IConn) (Result, error) {
				names, err := conn.ListCollections(ctx, p.DB)
				if err != nil {
					return Result{}, err
				}
				return Result{Value: names, Text: fmt.Sprintf("Collections in %s: %s", p.DB, strings.Join(names, ", "))}, nil
			}),
		},
		{
			Name:        OpCreateCollection,
			Description: "Create a collection. options are passed to the create command as is.",
			Schema: object([]string{"db", "collection"}, dbProps(true, map[string]any{
				"options": doc("create options, e.g. {\"capped\": true, \"size\": 4096}"),
			})),
			Exec: bind(func(ctx context.Context, p createCollectionParams, conn store.IConn) (Result, error) {
				opts, err := p.Options.optionalBSON()
				if err != nil {
					return Result{}, invalidParam("options", err)
				}
				if err := conn.CreateCollection(ctx, p.target(), opts); err != nil {
					return Result{}, err
				}
				return Result{Value: p.target().String(), Text: fmt.Sprintf("Collection %q created successfully.", p.Collection)}, nil
			}),
		},
		{
			Name:        OpDropCollection,
			Description: "Drop a collection. Dropping a missing collection succeeds.",
			Schema:      object([]string{"db", "collection"}, dbProps(true, nil)),
			Exec: bind(func(ctx context.Context, p collParams, conn store.IConn) (Result, error) {
				if err := conn.DropCollection(ctx, p.target()); err != nil {
					return Result{}, err
				}
				return Result{Value: p.target().String(), Text: fmt.Sprintf("Collection %q dropped successfully.", p.Collection)}, nil
			}),
		},
		{
			Name: OpCreateDatabase,
			Description: "Create a database. Runs two steps: create the collection " + SentinelCollection +
				" to materialise the database, then drop it again.",
			Schema: object([]string{"db"}, dbProps(false, nil)),
			Exec: bind(func(ctx context.Context, p dbParams, conn store.IConn) (Result, error) {
				sentinel := store.Target{DB: p.DB, Collection: SentinelCollection}
				if err := conn.CreateCollection(ctx, sentinel, nil); err != nil {
					return Result{}, &errs.StoreOperationError{Operation: OpCreateDatabase + " (create sentinel)", Target: sentinel.String(), Cause: err}
				}
				if err := conn.DropCollection(ctx, sentinel); err != nil {
					return Result{}, &errs.StoreOperationError{Operation: OpCreateDatabase + " (drop sentinel)", Target: sentinel.String(), Cause: err}
				}
				return Result{Value: p.DB, Text: fmt.Sprintf("Database %q created successfully.", p.DB)}, nil
			}),
		},
		{
			Name:        OpDropDatabase,
			Description: "Drop a database with all its collections.",
			Schema:      object([]string{"db"}, dbProps(false, nil)),
			Exec: bind(func(ctx context.Context, p dbParams, conn store.IConn) (Result, error) {
				if err := conn.DropDatabase(ctx, p.DB); err != nil {
					return Result{}, err
				}
				return Result{Value: p.DB, Text: fmt.Sprintf("Database %q dropped successfully.", p.DB)}, nil
			}),
		},
	}
}
