package ops

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dDoc/lib/store"
)

// Names of the index operations
const (
	OpCreateIndex = "create-index"
	OpListIndexes = "list-indexes"
	OpDropIndex   = "drop-index"
)

type createIndexParams struct {
	collParams
	Keys               Document `json:"keys"`
	Name               string   `json:"name,omitempty"`
	Unique             bool     `json:"unique,omitempty"`
	Sparse             bool     `json:"sparse,omitempty"`
	ExpireAfterSeconds *int32   `json:"expireAfterSeconds,omitempty"`
}

type dropIndexParams struct {
	collParams
	Name string `json:"name"`
}

func indexOps() []Descriptor {
	return []Descriptor{
		{
			Name:        OpCreateIndex,
			Description: "Create an index on a collection.",
			Schema: object([]string{"db", "collection", "keys"}, dbProps(true, map[string]any{
				"keys":               Schema{"type": "object", "minProperties": 1, "description": "index keys, e.g. {\"email\": 1}"},
				"name":               str("index name, derived from the keys if omitted"),
				"unique":             boolean("reject duplicate keys"),
				"sparse":             boolean("only index documents that have the field"),
				"expireAfterSeconds": integer("TTL in seconds", 0),
			})),
			Exec: bind(func(ctx context.Context, p createIndexParams, conn store.IConn) (Result, error) {
				keys, err := decodeField("keys", p.Keys)
				if err != nil {
					return Result{}, err
				}
				name, err := conn.CreateIndex(ctx, p.target(), store.IndexSpec{
					Keys:               keys,
					Name:               p.Name,
					Unique:             p.Unique,
					Sparse:             p.Sparse,
					ExpireAfterSeconds: p.ExpireAfterSeconds,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Value: name, Text: fmt.Sprintf("Index %q created successfully.", name)}, nil
			}),
		},
		{
			Name:        OpListIndexes,
			Description: "List the indexes of a collection.",
			Schema:      object([]string{"db", "collection"}, dbProps(true, nil)),
			Exec: bind(func(ctx context.Context, p collParams, conn store.IConn) (Result, error) {
				indexes, err := conn.ListIndexes(ctx, p.target())
				if err != nil {
					return Result{}, err
				}
				return documentsResult(fmt.Sprintf("Indexes of %s: ", p.target()), indexes), nil
			}),
		},
		{
			Name:        OpDropIndex,
			Description: "Drop an index by name.",
			Schema: object([]string{"db", "collection", "name"}, dbProps(true, map[string]any{
				"name": str("index name"),
			})),
			Exec: bind(func(ctx context.Context, p dropIndexParams, conn store.IConn) (Result, error) {
				if err := conn.DropIndex(ctx, p.target(), p.Name); err != nil {
					return Result{}, err
				}
				return Result{Value: p.Name, Text: fmt.Sprintf("Index %q dropped successfully.", p.Name)}, nil
			}),
		},
	}
}
