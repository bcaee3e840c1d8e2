package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dDoc/lib/errs"
	"github.com/ValentinKolb/dDoc/lib/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Names of the document operations
const (
	OpInsertDocument  = "insert-document"
	OpInsertDocuments = "insert-documents"
	OpUpdateDocument  = "update-document"
	OpUpdateDocuments = "update-documents"
	OpDeleteDocument  = "delete-document"
	OpDeleteDocuments = "delete-documents"
	OpFindDocument    = "find-document"
	OpFindDocuments   = "find-documents"
	OpCountDocuments  = "count-documents"
	OpDistinctValues  = "distinct-values"
	OpBulkWrite       = "bulk-write"
	OpFindAndUpdate   = "find-and-update"
	OpFindAndDelete   = "find-and-delete"
)

// --------------------------------------------------------------------------
// Parameters
// --------------------------------------------------------------------------

type insertDocumentParams struct {
	collParams
	Document Document `json:"document"`
}

type insertDocumentsParams struct {
	collParams
	Documents []Document `json:"documents"`
	Ordered   *bool      `json:"ordered,omitempty"`
}

type updateParams struct {
	collParams
	Filter Document `json:"filter"`
	Update Document `json:"update"`
	Upsert bool     `json:"upsert,omitempty"`
}

type queryParams struct {
	collParams
	Query Document `json:"query,omitempty"`
}

type findParams struct {
	collParams
	Query      Document `json:"query,omitempty"`
	Projection Document `json:"projection,omitempty"`
	Sort       Document `json:"sort,omitempty"`
	Skip       int64    `json:"skip,omitempty"`
	Limit      int64    `json:"limit,omitempty"`
}

type distinctParams struct {
	collParams
	Field string   `json:"field"`
	Query Document `json:"query,omitempty"`
}

type bulkWriteParams struct {
	collParams
	Operations []map[string]bulkOp `json:"operations"`
	Ordered    *bool               `json:"ordered,omitempty"`
}

type bulkOp struct {
	Document    Document `json:"document,omitempty"`
	Filter      Document `json:"filter,omitempty"`
	Update      Document `json:"update,omitempty"`
	Replacement Document `json:"replacement,omitempty"`
	Upsert      bool     `json:"upsert,omitempty"`
}

type findAndModifyParams struct {
	collParams
	Filter     Document `json:"filter"`
	Update     Document `json:"update,omitempty"`
	Upsert     bool     `json:"upsert,omitempty"`
	ReturnNew  bool     `json:"returnNew,omitempty"`
	Projection Document `json:"projection,omitempty"`
	Sort       Document `json:"sort,omitempty"`
}

// options decodes the optional projection and sort
func (p findParams) options() (store.FindOptions, error) {
	projection, err := p.Projection.optionalBSON()
	if err != nil {
		return store.FindOptions{}, invalidParam("projection", err)
	}
	sort, err := p.Sort.optionalBSON()
	if err != nil {
		return store.FindOptions{}, invalidParam("sort", err)
	}
	return store.FindOptions{Projection: projection, Sort: sort, Skip: p.Skip, Limit: p.Limit}, nil
}

func (p findAndModifyParams) options() (store.FindAndModifyOptions, error) {
	projection, err := p.Projection.optionalBSON()
	if err != nil {
		return store.FindAndModifyOptions{}, invalidParam("projection", err)
	}
	sort, err := p.Sort.optionalBSON()
	if err != nil {
		return store.FindAndModifyOptions{}, invalidParam("sort", err)
	}
	return store.FindAndModifyOptions{Projection: projection, Sort: sort, Upsert: p.Upsert, ReturnNew: p.ReturnNew}, nil
}

// decodeField decodes a named document parameter
func decodeField(field string, d Document) (bson.D, error) {
	out, err := d.BSON()
	if err != nil {
		return nil, invalidParam(field, err)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Descriptors
// --------------------------------------------------------------------------

func crudOps() []Descriptor {
	findProps := func(withLimit bool) map[string]any {
		props := map[string]any{
			"query":      doc("filter document, e.g. {\"age\": {\"$gt\": 30}}"),
			"projection": doc("fields to include or exclude"),
			"sort":       doc("sort specification, e.g. {\"age\": -1}"),
			"skip":       integer("number of documents to skip", 0),
		}
		if withLimit {
			props["limit"] = integer("maximum number of documents to return (0 means no limit)", 0)
		}
		return props
	}
	updateProps := map[string]any{
		"filter": doc("filter selecting the documents to update"),
		"update": doc("update document with operators such as $set, or a replacement"),
		"upsert": boolean("insert a document if nothing matches"),
	}

	return []Descriptor{
		{
			Name:        OpInsertDocument,
			Description: "Insert a single document.",
			Schema:      object([]string{"db", "collection", "document"}, dbProps(true, map[string]any{"document": doc("document to insert")})),
			Exec:        bind(insertDocument),
		},
		{
			Name:        OpInsertDocuments,
			Description: "Insert several documents in one request.",
			Schema: object([]string{"db", "collection", "documents"}, dbProps(true, map[string]any{
				"documents": docs("documents to insert"),
				"ordered":   boolean("stop at the first failure (default true)"),
			})),
			Exec: bind(insertDocuments),
		},
		{
			Name:        OpUpdateDocument,
			Description: "Update the first document matching filter.",
			Schema:      object([]string{"db", "collection", "filter", "update"}, dbProps(true, updateProps)),
			Exec:        bind(updater(false)),
		},
		{
			Name:        OpUpdateDocuments,
			Description: "Update every document matching filter.",
			Schema:      object([]string{"db", "collection", "filter", "update"}, dbProps(true, updateProps)),
			Exec:        bind(updater(true)),
		},
		{
			Name:        OpDeleteDocument,
			Description: "Delete the first document matching query.",
			Schema:      object([]string{"db", "collection", "query"}, dbProps(true, map[string]any{"query": doc("filter document")})),
			Exec:        bind(deleter(false)),
		},
		{
			Name:        OpDeleteDocuments,
			Description: "Delete every document matching query.",
			Schema:      object([]string{"db", "collection", "query"}, dbProps(true, map[string]any{"query": doc("filter document")})),
			Exec:        bind(deleter(true)),
		},
		{
			Name:        OpFindDocument,
			Description: "Find the first document matching query.",
			Schema:      object([]string{"db", "collection"}, dbProps(true, findProps(false))),
			Exec:        bind(findDocument),
		},
		{
			Name:        OpFindDocuments,
			Description: "Find all documents matching query.",
			Schema:      object([]string{"db", "collection"}, dbProps(true, findProps(true))),
			Exec:        bind(findDocuments),
		},
		{
			Name:        OpCountDocuments,
			Description: "Count the documents matching query (all documents if query is omitted).",
			Schema:      object([]string{"db", "collection"}, dbProps(true, map[string]any{"query": doc("filter document")})),
			Exec:        bind(countDocuments),
		},
		{
			Name:        OpDistinctValues,
			Description: "List the distinct values of a field.",
			Schema: object([]string{"db", "collection", "field"}, dbProps(true, map[string]any{
				"field": str("field name, dotted paths are allowed"),
				"query": doc("filter document"),
			})),
			Exec: bind(distinctValues),
		},
		{
			Name: OpBulkWrite,
			Description: "Run several writes as one bulk request. Each operation is an object with exactly one of " +
				"insertOne, updateOne, updateMany, replaceOne, deleteOne, deleteMany.",
			Schema: object([]string{"db", "collection", "operations"}, dbProps(true, map[string]any{
				"operations": bulkOperationsSchema(),
				"ordered":    boolean("stop at the first failure (default true)"),
			})),
			Exec: bind(bulkWrite),
		},
		{
			Name:        OpFindAndUpdate,
			Description: "Atomically update one document and return it.",
			Schema: object([]string{"db", "collection", "filter", "update"}, dbProps(true, map[string]any{
				"filter":     doc("filter selecting the document"),
				"update":     doc("update document"),
				"upsert":     boolean("insert a document if nothing matches"),
				"returnNew":  boolean("return the document after the update"),
				"projection": doc("fields to include or exclude"),
				"sort":       doc("picks the document if several match"),
			})),
			Exec: bind(findAndUpdate),
		},
		{
			Name:        OpFindAndDelete,
			Description: "Atomically delete one document and return it.",
			Schema: object([]string{"db", "collection", "filter"}, dbProps(true, map[string]any{
				"filter":     doc("filter selecting the document"),
				"projection": doc("fields to include or exclude"),
				"sort":       doc("picks the document if several match"),
			})),
			Exec: bind(findAndDelete),
		},
	}
}

func bulkOperationsSchema() Schema {
	write := func(required ...string) Schema {
		return Schema{
			"type":     "object",
			"required": required,
			"properties": Schema{
				"document":    Schema{"type": "object"},
				"filter":      Schema{"type": "object"},
				"update":      Schema{"type": "object"},
				"replacement": Schema{"type": "object"},
				"upsert":      Schema{"type": "boolean"},
			},
			"additionalProperties": false,
		}
	}
	return Schema{
		"type":        "array",
		"minItems":    1,
		"description": "write operations, e.g. [{\"insertOne\": {\"document\": {\"a\": 1}}}]",
		"items": Schema{
			"type":          "object",
			"minProperties": 1,
			"maxProperties": 1,
			"properties": Schema{
				string(store.WriteInsertOne):  write("document"),
				string(store.WriteUpdateOne):  write("filter", "update"),
				string(store.WriteUpdateMany): write("filter", "update"),
				string(store.WriteReplaceOne): write("filter", "replacement"),
				string(store.WriteDeleteOne):  write("filter"),
				string(store.WriteDeleteMany): write("filter"),
			},
			"additionalProperties": false,
		},
	}
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func insertDocument(ctx context.Context, p insertDocumentParams, conn store.IConn) (Result, error) {
	document, err := decodeField("document", p.Document)
	if err != nil {
		return Result{}, err
	}
	id, err := conn.InsertOne(ctx, p.target(), document)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Value: bson.D{{Key: "insertedId", Value: id}},
		Text:  "Inserted document with ID: " + idString(id),
	}, nil
}

func insertDocuments(ctx context.Context, p insertDocumentsParams, conn store.IConn) (Result, error) {
	documents, err := decodeAll(p.Documents)
	if err != nil {
		return Result{}, invalidParam("documents", err)
	}
	ordered := p.Ordered == nil || *p.Ordered
	res, err := conn.InsertMany(ctx, p.target(), documents, ordered)
	if err != nil {
		return Result{}, &errs.StoreOperationError{
			Operation: OpInsertDocuments,
			Target:    p.target().String(),
			Cause:     err,
			Partial:   bson.D{{Key: "insertedCount", Value: len(res.InsertedIDs)}, {Key: "insertedIds", Value: res.InsertedIDs}},
		}
	}
	return Result{
		Value: bson.D{{Key: "insertedCount", Value: len(res.InsertedIDs)}, {Key: "insertedIds", Value: res.InsertedIDs}},
		Text:  fmt.Sprintf("Inserted %d documents", len(res.InsertedIDs)),
	}, nil
}

func updater(many bool) func(context.Context, updateParams, store.IConn) (Result, error) {
	return func(ctx context.Context, p updateParams, conn store.IConn) (Result, error) {
		filter, err := decodeField("filter", p.Filter)
		if err != nil {
			return Result{}, err
		}
		update, err := decodeField("update", p.Update)
		if err != nil {
			return Result{}, err
		}
		var res store.UpdateResult
		if many {
			res, err = conn.UpdateMany(ctx, p.target(), filter, update, p.Upsert)
		} else {
			res, err = conn.UpdateOne(ctx, p.target(), filter, update, p.Upsert)
		}
		if err != nil {
			return Result{}, err
		}
		text := fmt.Sprintf("Updated %d document(s)", res.ModifiedCount)
		if res.UpsertedCount > 0 {
			text += ", upserted ID: " + idString(res.UpsertedID)
		}
		return Result{Value: res, Text: text}, nil
	}
}

func deleter(many bool) func(context.Context, queryParams, store.IConn) (Result, error) {
	return func(ctx context.Context, p queryParams, conn store.IConn) (Result, error) {
		query, err := decodeField("query", p.Query)
		if err != nil {
			return Result{}, err
		}
		var deleted int64
		if many {
			deleted, err = conn.DeleteMany(ctx, p.target(), query)
		} else {
			deleted, err = conn.DeleteOne(ctx, p.target(), query)
		}
		if err != nil {
			return Result{}, err
		}
		return Result{
			Value: bson.D{{Key: "deletedCount", Value: deleted}},
			Text:  fmt.Sprintf("Deleted %d document(s)", deleted),
		}, nil
	}
}

func findDocument(ctx context.Context, p findParams, conn store.IConn) (Result, error) {
	query, err := decodeField("query", p.Query)
	if err != nil {
		return Result{}, err
	}
	opts, err := p.options()
	if err != nil {
		return Result{}, err
	}
	document, found, err := conn.FindOne(ctx, p.target(), query, opts)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{Value: nil, Text: "No document found"}, nil
	}
	return Result{Value: document, Text: "Found document: " + renderText(document)}, nil
}

func findDocuments(ctx context.Context, p findParams, conn store.IConn) (Result, error) {
	query, err := decodeField("query", p.Query)
	if err != nil {
		return Result{}, err
	}
	opts, err := p.options()
	if err != nil {
		return Result{}, err
	}
	documents, err := conn.Find(ctx, p.target(), query, opts)
	if err != nil {
		return Result{}, err
	}
	return documentsResult("Found documents: ", documents), nil
}

func countDocuments(ctx context.Context, p queryParams, conn store.IConn) (Result, error) {
	query, err := decodeField("query", p.Query)
	if err != nil {
		return Result{}, err
	}
	n, err := conn.CountDocuments(ctx, p.target(), query)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: bson.D{{Key: "count", Value: n}}, Text: fmt.Sprintf("Total documents: %d", n)}, nil
}

func distinctValues(ctx context.Context, p distinctParams, conn store.IConn) (Result, error) {
	query, err := decodeField("query", p.Query)
	if err != nil {
		return Result{}, err
	}
	values, err := conn.Distinct(ctx, p.target(), p.Field, query)
	if err != nil {
		return Result{}, err
	}
	if values == nil {
		values = []any{}
	}
	rendered := make([]string, len(values))
	for i, v := range values {
		rendered[i] = idString(v)
	}
	return Result{
		Value: values,
		Text:  fmt.Sprintf("Distinct values for %s: %s", p.Field, strings.Join(rendered, ", ")),
	}, nil
}

func bulkWrite(ctx context.Context, p bulkWriteParams, conn store.IConn) (Result, error) {
	models := make([]store.WriteModel, 0, len(p.Operations))
	for i, op := range p.Operations {
		model, err := toWriteModel(op)
		if err != nil {
			return Result{}, invalidParam(fmt.Sprintf("operations/%d", i), err)
		}
		models = append(models, model)
	}
	ordered := p.Ordered == nil || *p.Ordered
	res, err := conn.BulkWrite(ctx, p.target(), models, ordered)
	if err != nil {
		return Result{}, &errs.StoreOperationError{Operation: OpBulkWrite, Target: p.target().String(), Cause: err, Partial: res}
	}
	return Result{
		Value: res,
		Text: fmt.Sprintf("Bulk write: %d inserted, %d matched, %d modified, %d deleted, %d upserted",
			res.InsertedCount, res.MatchedCount, res.ModifiedCount, res.DeletedCount, res.UpsertedCount),
	}, nil
}

func toWriteModel(op map[string]bulkOp) (store.WriteModel, error) {
	if len(op) != 1 {
		return store.WriteModel{}, fmt.Errorf("expected exactly one write kind, got %d", len(op))
	}
	var (
		model store.WriteModel
		err   error
	)
	for kind, spec := range op {
		model.Kind = store.WriteKind(kind)
		model.Upsert = spec.Upsert
		switch model.Kind {
		case store.WriteInsertOne:
			model.Document, err = spec.Document.BSON()
		case store.WriteUpdateOne, store.WriteUpdateMany:
			if model.Filter, err = spec.Filter.BSON(); err == nil {
				model.Update, err = spec.Update.BSON()
			}
		case store.WriteReplaceOne:
			if model.Filter, err = spec.Filter.BSON(); err == nil {
				model.Replacement, err = spec.Replacement.BSON()
			}
		case store.WriteDeleteOne, store.WriteDeleteMany:
			model.Filter, err = spec.Filter.BSON()
		default:
			err = fmt.Errorf("unknown write kind %q", kind)
		}
	}
	return model, err
}

func findAndUpdate(ctx context.Context, p findAndModifyParams, conn store.IConn) (Result, error) {
	filter, err := decodeField("filter", p.Filter)
	if err != nil {
		return Result{}, err
	}
	update, err := decodeField("update", p.Update)
	if err != nil {
		return Result{}, err
	}
	opts, err := p.options()
	if err != nil {
		return Result{}, err
	}
	document, found, err := conn.FindOneAndUpdate(ctx, p.target(), filter, update, opts)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{Value: nil, Text: "No document matched"}, nil
	}
	return Result{Value: document, Text: "Updated document: " + renderText(document)}, nil
}

func findAndDelete(ctx context.Context, p findAndModifyParams, conn store.IConn) (Result, error) {
	filter, err := decodeField("filter", p.Filter)
	if err != nil {
		return Result{}, err
	}
	opts, err := p.options()
	if err != nil {
		return Result{}, err
	}
	document, found, err := conn.FindOneAndDelete(ctx, p.target(), filter, opts)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{Value: nil, Text: "No document matched"}, nil
	}
	return Result{Value: document, Text: "Deleted document: " + renderText(document)}, nil
}

// --------------------------------------------------------------------------
// Rendering Helper
// --------------------------------------------------------------------------

// documentsResult never renders a nil slice (null) for an empty result
func documentsResult(prefix string, documents []bson.D) Result {
	if documents == nil {
		documents = []bson.D{}
	}
	return Result{Value: documents, Text: prefix + renderText(documents)}
}

// renderText renders a value as relaxed Extended JSON for the text summary
func renderText(v any) string {
	raw, err := RenderJSON(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// idString renders an id or scalar the way the shell prints it (ObjectIDs as hex)
func idString(v any) string {
	switch id := v.(type) {
	case bson.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return "null"
	case bson.D, bson.M, bson.A, []any:
		return renderText(id)
	default:
		return fmt.Sprint(id)
	}
}
