package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IConnector opens connections to a document store.
// Connect must open AND verify the connection (e.g. with a ping); a returned
// connection is expected to be usable immediately.
type IConnector interface {
	Connect(ctx context.Context, address string) (IConn, error)
}

// ConnectorFunc adapts a function to the IConnector interface.
type ConnectorFunc func(ctx context.Context, address string) (IConn, error)

func (f ConnectorFunc) Connect(ctx context.Context, address string) (IConn, error) {
	return f(ctx, address)
}

// IConn is an opaque handle to a live connection.
// Each method issues exactly one logical request to the store. Implementations
// must be safe for concurrent use, the handle is shared by all in-flight calls.
// Documents, filters, updates and pipelines are passed through as bson.D in the
// store's native vocabulary; their shape is the store's contract.
type IConn interface {
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
	// Close releases the connection. It must not return before all resources are released.
	Close(ctx context.Context) error

	// InsertOne inserts a document and returns its _id.
	InsertOne(ctx context.Context, t Target, doc bson.D) (insertedID any, err error)
	// InsertMany inserts documents. On partial failure the result holds the ids the store reported.
	InsertMany(ctx context.Context, t Target, docs []bson.D, ordered bool) (InsertManyResult, error)
	// UpdateOne applies update to the first document matching filter.
	UpdateOne(ctx context.Context, t Target, filter, update bson.D, upsert bool) (UpdateResult, error)
	// UpdateMany applies update to every document matching filter.
	UpdateMany(ctx context.Context, t Target, filter, update bson.D, upsert bool) (UpdateResult, error)
	// DeleteOne deletes the first document matching filter.
	DeleteOne(ctx context.Context, t Target, filter bson.D) (deleted int64, err error)
	// DeleteMany deletes every document matching filter.
	DeleteMany(ctx context.Context, t Target, filter bson.D) (deleted int64, err error)
	// FindOne returns the first document matching filter. found is false if there is none.
	FindOne(ctx context.Context, t Target, filter bson.D, opts FindOptions) (doc bson.D, found bool, err error)
	// Find returns all documents matching filter.
	Find(ctx context.Context, t Target, filter bson.D, opts FindOptions) ([]bson.D, error)
	// CountDocuments counts the documents matching filter.
	CountDocuments(ctx context.Context, t Target, filter bson.D) (int64, error)
	// Distinct returns the distinct values of field among documents matching filter.
	Distinct(ctx context.Context, t Target, field string, filter bson.D) ([]any, error)
	// Aggregate runs an aggregation pipeline and returns all result documents.
	Aggregate(ctx context.Context, t Target, pipeline []bson.D) ([]bson.D, error)
	// BulkWrite executes the write models as one bulk request.
	BulkWrite(ctx context.Context, t Target, models []WriteModel, ordered bool) (BulkWriteResult, error)
	// FindOneAndUpdate atomically updates one document and returns it (before or after the update).
	FindOneAndUpdate(ctx context.Context, t Target, filter, update bson.D, opts FindAndModifyOptions) (doc bson.D, found bool, err error)
	// FindOneAndDelete atomically deletes one document and returns it.
	FindOneAndDelete(ctx context.Context, t Target, filter bson.D, opts FindAndModifyOptions) (doc bson.D, found bool, err error)

	// CreateIndex creates an index and returns its name.
	CreateIndex(ctx context.Context, t Target, spec IndexSpec) (name string, err error)
	// ListIndexes returns the index specifications of a collection.
	ListIndexes(ctx context.Context, t Target) ([]bson.D, error)
	// DropIndex drops the named index.
	DropIndex(ctx context.Context, t Target, name string) error

	// CreateCollection explicitly creates a collection. opts are passed through as create options.
	CreateCollection(ctx context.Context, t Target, opts bson.D) error
	// DropCollection drops a collection. Dropping a missing collection is not an error.
	DropCollection(ctx context.Context, t Target) error
	// ListCollections returns the collection names of a database.
	ListCollections(ctx context.Context, db string) ([]string, error)
	// ListDatabases returns the names of all databases.
	ListDatabases(ctx context.Context) ([]string, error)
	// DropDatabase drops a database.
	DropDatabase(ctx context.Context, db string) error

	// CreateUser creates a user in db.
	CreateUser(ctx context.Context, db string, user User) error
	// UpdateUser changes the password and/or roles of a user. Empty fields are left unchanged.
	UpdateUser(ctx context.Context, db string, user User) error
	// DropUser removes a user from db.
	DropUser(ctx context.Context, db string, name string) error
	// GrantRoles adds roles to an existing user.
	GrantRoles(ctx context.Context, db string, name string, roles []Role) error
}

// --------------------------------------------------------------------------
// Request & Result Types
// --------------------------------------------------------------------------

// Target references a collection. It is resolved against the live handle on every call.
type Target struct {
	DB         string
	Collection string
}

// String returns db.collection (or just db if no collection is set)
func (t Target) String() string {
	if t.Collection == "" {
		return t.DB
	}
	return t.DB + "." + t.Collection
}

// FindOptions holds the optional read options of find operations.
// Zero values mean "not set".
type FindOptions struct {
	Projection bson.D
	Sort       bson.D
	Skip       int64
	Limit      int64
}

// FindAndModifyOptions holds the options of the atomic find-and-modify operations.
type FindAndModifyOptions struct {
	Projection bson.D
	Sort       bson.D
	Upsert     bool
	// ReturnNew returns the document after the update instead of before (FindOneAndUpdate only)
	ReturnNew bool
}

// UpdateResult is the outcome of an update.
type UpdateResult struct {
	MatchedCount  int64 `json:"matchedCount" bson:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount" bson:"modifiedCount"`
	UpsertedCount int64 `json:"upsertedCount" bson:"upsertedCount"`
	UpsertedID    any   `json:"upsertedId,omitempty" bson:"upsertedId,omitempty"`
}

// InsertManyResult is the outcome of an InsertMany.
type InsertManyResult struct {
	InsertedIDs []any `json:"insertedIds" bson:"insertedIds"`
}

// WriteKind names the kind of write in a bulk write.
type WriteKind string

const (
	WriteInsertOne  WriteKind = "insertOne"
	WriteUpdateOne  WriteKind = "updateOne"
	WriteUpdateMany WriteKind = "updateMany"
	WriteReplaceOne WriteKind = "replaceOne"
	WriteDeleteOne  WriteKind = "deleteOne"
	WriteDeleteMany WriteKind = "deleteMany"
)

// WriteModel is a single write in a bulk write. Which fields are used depends on Kind.
type WriteModel struct {
	Kind        WriteKind
	Document    bson.D // insertOne
	Filter      bson.D // all but insertOne
	Update      bson.D // updateOne, updateMany
	Replacement bson.D // replaceOne
	Upsert      bool   // updates and replaceOne
}

// BulkWriteResult is the outcome of a bulk write.
type BulkWriteResult struct {
	InsertedCount int64 `json:"insertedCount" bson:"insertedCount"`
	MatchedCount  int64 `json:"matchedCount" bson:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount" bson:"modifiedCount"`
	DeletedCount  int64 `json:"deletedCount" bson:"deletedCount"`
	UpsertedCount int64 `json:"upsertedCount" bson:"upsertedCount"`
}

// IndexSpec describes an index to create.
type IndexSpec struct {
	Keys               bson.D
	Name               string
	Unique             bool
	Sparse             bool
	ExpireAfterSeconds *int32
}

// Role is a role granted to a user. An empty DB means the user's database.
type Role struct {
	Role string `json:"role" bson:"role"`
	DB   string `json:"db,omitempty" bson:"db,omitempty"`
}

// User describes a database user.
type User struct {
	Name     string
	Password string
	Roles    []Role
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the underlying store.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCNotFound                            // 4: The referenced object does not exist.
	RetCAlreadyExists                       // 5: The object to create already exists.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotFound:
		return "NotFound"
	case RetCAlreadyExists:
		return "AlreadyExists"
	default:
		return "Unknown"
	}
}
