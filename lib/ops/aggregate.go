package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dDoc/lib/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Names of the aggregation operations
const (
	OpAggregate        = "aggregate"
	OpGroupDocuments   = "group-documents"
	OpProjectDocuments = "project-documents"
	OpSortDocuments    = "sort-documents"
	OpLimitDocuments   = "limit-documents"
	OpSkipDocuments    = "skip-documents"
	OpLookupDocuments  = "lookup-documents"
)

type aggregateParams struct {
	collParams
	Pipeline []Document `json:"pipeline"`
}

// stageParams holds the parameters of the single-stage helpers. Each helper uses a subset.
type stageParams struct {
	collParams
	Match        Document        `json:"match,omitempty"`
	GroupBy      json.RawMessage `json:"groupBy,omitempty"`
	Accumulators Document        `json:"accumulators,omitempty"`
	Projection   Document        `json:"projection,omitempty"`
	Sort         Document        `json:"sort,omitempty"`
	Limit        int64           `json:"limit,omitempty"`
	Skip         int64           `json:"skip,omitempty"`
	From         string          `json:"from,omitempty"`
	LocalField   string          `json:"localField,omitempty"`
	ForeignField string          `json:"foreignField,omitempty"`
	As           string          `json:"as,omitempty"`
}

// stageBuilder builds the stages following the optional $match
type stageBuilder func(p stageParams) ([]bson.D, error)

func aggregateOps() []Descriptor {
	match := doc("filter applied before the stage")
	return []Descriptor{
		{
			Name:        OpAggregate,
			Description: "Run an aggregation pipeline.",
			Schema: object([]string{"db", "collection", "pipeline"}, dbProps(true, map[string]any{
				"pipeline": Schema{"type": "array", "items": Schema{"type": "object"}, "description": "pipeline stages, e.g. [{\"$match\": {...}}]"},
			})),
			Exec: bind(func(ctx context.Context, p aggregateParams, conn store.IConn) (Result, error) {
				pipeline, err := decodeAll(p.Pipeline)
				if err != nil {
					return Result{}, invalidParam("pipeline", err)
				}
				return runPipeline(ctx, conn, p.target(), pipeline)
			}),
		},
		{
			Name:        OpGroupDocuments,
			Description: "Group documents by a field (or an expression) and compute accumulators per group.",
			Schema: object([]string{"db", "collection", "groupBy", "accumulators"}, dbProps(true, map[string]any{
				"groupBy":      Schema{"type": []string{"string", "object", "null"}, "minLength": 1, "description": "field name, _id expression or null for a single group"},
				"accumulators": Schema{"type": "object", "minProperties": 1, "description": "output field to accumulator, e.g. {\"total\": {\"$sum\": \"$amount\"}}"},
				"match":        match,
			})),
			Exec: stageOp(groupStage),
		},
		{
			Name:        OpProjectDocuments,
			Description: "Reshape documents with a $project stage.",
			Schema: object([]string{"db", "collection", "projection"}, dbProps(true, map[string]any{
				"projection": doc("projection, e.g. {\"name\": 1, \"_id\": 0}"),
				"match":      match,
			})),
			Exec: stageOp(func(p stageParams) ([]bson.D, error) {
				projection, err := decodeField("projection", p.Projection)
				if err != nil {
					return nil, err
				}
				return []bson.D{{{Key: "$project", Value: projection}}}, nil
			}),
		},
		{
			Name:        OpSortDocuments,
			Description: "Sort documents, optionally limiting the result.",
			Schema: object([]string{"db", "collection", "sort"}, dbProps(true, map[string]any{
				"sort":  doc("sort specification, e.g. {\"age\": -1}"),
				"limit": integer("maximum number of documents", 1),
				"match": match,
			})),
			Exec: stageOp(func(p stageParams) ([]bson.D, error) {
				sort, err := decodeField("sort", p.Sort)
				if err != nil {
					return nil, err
				}
				return withLimit([]bson.D{{{Key: "$sort", Value: sort}}}, p.Limit), nil
			}),
		},
		{
			Name:        OpLimitDocuments,
			Description: "Return at most limit documents.",
			Schema: object([]string{"db", "collection", "limit"}, dbProps(true, map[string]any{
				"limit": integer("maximum number of documents", 1),
				"match": match,
			})),
			Exec: stageOp(func(p stageParams) ([]bson.D, error) {
				return withLimit(nil, p.Limit), nil
			}),
		},
		{
			Name:        OpSkipDocuments,
			Description: "Skip documents, optionally limiting the result.",
			Schema: object([]string{"db", "collection", "skip"}, dbProps(true, map[string]any{
				"skip":  integer("number of documents to skip", 0),
				"limit": integer("maximum number of documents", 1),
				"match": match,
			})),
			Exec: stageOp(func(p stageParams) ([]bson.D, error) {
				return withLimit([]bson.D{{{Key: "$skip", Value: p.Skip}}}, p.Limit), nil
			}),
		},
		{
			Name:        OpLookupDocuments,
			Description: "Join documents of another collection of the same database.",
			Schema: object([]string{"db", "collection", "from", "localField", "foreignField", "as"}, dbProps(true, map[string]any{
				"from":         str("collection to join"),
				"localField":   str("field of the input documents"),
				"foreignField": str("field of the joined documents"),
				"as":           str("output array field"),
				"match":        match,
			})),
			Exec: stageOp(func(p stageParams) ([]bson.D, error) {
				return []bson.D{{{Key: "$lookup", Value: bson.D{
					{Key: "from", Value: p.From},
					{Key: "localField", Value: p.LocalField},
					{Key: "foreignField", Value: p.ForeignField},
					{Key: "as", Value: p.As},
				}}}}, nil
			}),
		},
	}
}

// stageOp binds a helper that prepends the optional $match to the built stages
func stageOp(build stageBuilder) ExecFunc {
	return bind(func(ctx context.Context, p stageParams, conn store.IConn) (Result, error) {
		var pipeline []bson.D
		if p.Match.IsSet() {
			match, err := decodeField("match", p.Match)
			if err != nil {
				return Result{}, err
			}
			pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
		}
		stages, err := build(p)
		if err != nil {
			return Result{}, err
		}
		return runPipeline(ctx, conn, p.target(), append(pipeline, stages...))
	})
}

func groupStage(p stageParams) ([]bson.D, error) {
	id, err := groupKey(p.GroupBy)
	if err != nil {
		return nil, invalidParam("groupBy", err)
	}
	accumulators, err := decodeField("accumulators", p.Accumulators)
	if err != nil {
		return nil, err
	}
	group := append(bson.D{{Key: "_id", Value: id}}, accumulators...)
	return []bson.D{{{Key: "$group", Value: group}}}, nil
}

// groupKey turns groupBy into the _id of a $group stage: a field name becomes a
// field reference, an object is used as is and null groups everything together.
func groupKey(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var field string
	if err := json.Unmarshal(raw, &field); err == nil {
		return fieldRef(field), nil
	}
	expr, err := Document(raw).BSON()
	if err != nil {
		return nil, fmt.Errorf("expected a field name, an object or null: %w", err)
	}
	return expr, nil
}

func withLimit(stages []bson.D, limit int64) []bson.D {
	if limit > 0 {
		stages = append(stages, bson.D{{Key: "$limit", Value: limit}})
	}
	return stages
}

func runPipeline(ctx context.Context, conn store.IConn, t store.Target, pipeline []bson.D) (Result, error) {
	documents, err := conn.Aggregate(ctx, t, pipeline)
	if err != nil {
		return Result{}, err
	}
	return documentsResult(fmt.Sprintf("Aggregation returned %d document(s): ", len(documents)), documents), nil
}
