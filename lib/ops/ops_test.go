package ops

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/errs"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var registry = NewDefaultRegistry()

// run validates params and executes the named operation against conn
func run(t *testing.T, conn store.IConn, name, params string) (Result, error) {
	t.Helper()
	op, ok := registry.Lookup(name)
	require.True(t, ok, "operation %s is not registered", name)
	raw := json.RawMessage(params)
	if err := op.Validate(raw); err != nil {
		return Result{}, err
	}
	return op.Exec(context.Background(), &Call{Operation: name, Params: raw, Conn: conn})
}

func mustRun(t *testing.T, conn store.IConn, name, params string) Result {
	t.Helper()
	res, err := run(t, conn, name, params)
	require.NoError(t, err, "%s %s", name, params)
	return res
}

func newConn(t *testing.T) store.IConn {
	t.Helper()
	name := uuid.NewString()
	t.Cleanup(func() { memstore.Reset(name) })
	return memstore.Open(name)
}

// spyConn records the requests of the operations that build store input themselves
type spyConn struct {
	store.IConn
	mu        sync.Mutex
	pipelines [][]bson.D
	finds     []store.FindOptions
	modifies  []store.FindAndModifyOptions
	created   []store.Target
	dropped   []store.Target
	docs      []bson.D
	fail      error
}

func (s *spyConn) Aggregate(_ context.Context, _ store.Target, pipeline []bson.D) ([]bson.D, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines = append(s.pipelines, pipeline)
	return nil, s.fail
}

func (s *spyConn) Find(_ context.Context, _ store.Target, _ bson.D, opts store.FindOptions) ([]bson.D, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds = append(s.finds, opts)
	return s.docs, s.fail
}

func (s *spyConn) FindOneAndUpdate(_ context.Context, _ store.Target, _, _ bson.D, opts store.FindAndModifyOptions) (bson.D, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modifies = append(s.modifies, opts)
	if len(s.docs) == 0 {
		return nil, false, s.fail
	}
	return s.docs[0], true, s.fail
}

func (s *spyConn) CreateCollection(_ context.Context, t store.Target, _ bson.D) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, t)
	return s.fail
}

func (s *spyConn) DropCollection(_ context.Context, t store.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = append(s.dropped, t)
	return nil
}

func (s *spyConn) InsertOne(context.Context, store.Target, bson.D) (any, error) {
	return nil, s.fail
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

func TestRegistryHoldsCatalogue(t *testing.T) {
	names := registry.Names()
	for _, want := range []string{
		OpConnect, OpCloseConnection, OpConnectionStatus, OpPing,
		OpListDatabases, OpListCollections, OpCreateCollection, OpDropCollection, OpCreateDatabase, OpDropDatabase,
		OpInsertDocument, OpInsertDocuments, OpUpdateDocument, OpUpdateDocuments, OpDeleteDocument, OpDeleteDocuments,
		OpFindDocument, OpFindDocuments, OpCountDocuments, OpDistinctValues, OpBulkWrite, OpFindAndUpdate, OpFindAndDelete,
		OpAggregate, OpGroupDocuments, OpProjectDocuments, OpSortDocuments, OpLimitDocuments, OpSkipDocuments, OpLookupDocuments,
		OpCreateIndex, OpListIndexes, OpDropIndex,
		OpCreateUser, OpUpdateUser, OpRemoveUser, OpGrantRoles,
	} {
		assert.Contains(t, names, want)
	}
	assert.Len(t, names, 37)
	assert.IsIncreasing(t, names)

	for _, op := range registry.Operations() {
		lifecycle := op.Name == OpConnect || op.Name == OpCloseConnection || op.Name == OpConnectionStatus
		assert.Equal(t, lifecycle, op.Lifecycle, op.Name)
		assert.NotEmpty(t, op.Description, op.Name)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	d := Descriptor{Name: "x", Schema: object(nil, nil), Exec: bind(func(context.Context, Common, store.IConn) (Result, error) {
		return Result{}, nil
	})}
	_, err := NewRegistry(d, d)
	require.Error(t, err)

	_, err = NewRegistry(Descriptor{Name: "no-exec", Schema: object(nil, nil)})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		op     string
		params string
		ok     bool
	}{
		{"empty bag", OpListDatabases, ``, true},
		{"empty object", OpListDatabases, `{}`, true},
		{"url override", OpListDatabases, `{"url": "mongodb://other:27017"}`, true},
		{"unknown parameter", OpListDatabases, `{"verbose": true}`, false},
		{"missing required", OpInsertDocument, `{"db": "shop", "collection": "orders"}`, false},
		{"empty db name", OpListCollections, `{"db": ""}`, false},
		{"wrong type", OpFindDocuments, `{"db": "shop", "collection": "orders", "limit": "ten"}`, false},
		{"negative skip", OpSkipDocuments, `{"db": "shop", "collection": "orders", "skip": -1}`, false},
		{"not json", OpListDatabases, `{db:`, false},
		{"empty documents", OpInsertDocuments, `{"db": "shop", "collection": "orders", "documents": []}`, false},
		{"group by null", OpGroupDocuments, `{"db": "d", "collection": "c", "groupBy": null, "accumulators": {"n": {"$sum": 1}}}`, true},
		{"group by empty string", OpGroupDocuments, `{"db": "d", "collection": "c", "groupBy": "", "accumulators": {"n": {"$sum": 1}}}`, false},
		{"group by number", OpGroupDocuments, `{"db": "d", "collection": "c", "groupBy": 3, "accumulators": {"n": {"$sum": 1}}}`, false},
		{"role object", OpGrantRoles, `{"db": "d", "username": "u", "roles": [{"role": "read", "db": "x"}]}`, true},
		{"role without name", OpGrantRoles, `{"db": "d", "username": "u", "roles": [{"db": "x"}]}`, false},
		{"two write kinds", OpBulkWrite, `{"db": "d", "collection": "c", "operations": [{"insertOne": {"document": {}}, "deleteOne": {"filter": {}}}]}`, false},
		{"connect needs url", OpConnect, `{}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ok := registry.Lookup(tt.op)
			require.True(t, ok)
			err := op.Validate(json.RawMessage(tt.params))
			if tt.ok {
				require.NoError(t, err)
				return
			}
			var invalid *errs.InvalidParametersError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.op, invalid.Operation)
			assert.NotEmpty(t, invalid.Violations)
		})
	}
}

func TestPrepare(t *testing.T) {
	op, ok := registry.Lookup(OpListDatabases)
	require.True(t, ok)

	common, err := op.Prepare(json.RawMessage(`{"url": "mongodb://other:27017"}`))
	require.NoError(t, err)
	assert.Equal(t, "mongodb://other:27017", common.URL)

	common, err = op.Prepare(nil)
	require.NoError(t, err)
	assert.Empty(t, common.URL)

	// the schema rejects a bag that would not decode, the error is never dropped
	_, err = op.Prepare(json.RawMessage(`{"url": 5}`))
	var invalid *errs.InvalidParametersError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, OpListDatabases, invalid.Operation)
}

// --------------------------------------------------------------------------
// Document Operations
// --------------------------------------------------------------------------

func TestInsertThenCount(t *testing.T) {
	conn := newConn(t)
	res := mustRun(t, conn, OpInsertDocument, `{"db": "shop", "collection": "orders", "document": {"a": 1}}`)
	assert.Contains(t, res.Text, "Inserted document with ID: ")

	res = mustRun(t, conn, OpCountDocuments, `{"db": "shop", "collection": "orders"}`)
	assert.Equal(t, bson.D{{Key: "count", Value: int64(1)}}, res.Value)
	assert.Equal(t, "Total documents: 1", res.Text)
}

func TestUpdateDocumentsReportsModified(t *testing.T) {
	conn := newConn(t)
	mustRun(t, conn, OpInsertDocuments, `{"db": "shop", "collection": "orders", "documents": [{"k": "x"}, {"k": "x"}, {"k": "y"}]}`)

	res := mustRun(t, conn, OpUpdateDocuments, `{"db": "shop", "collection": "orders", "filter": {"k": "x"}, "update": {"$set": {"seen": true}}}`)
	result, ok := res.Value.(store.UpdateResult)
	require.True(t, ok)
	assert.EqualValues(t, 2, result.MatchedCount)
	assert.EqualValues(t, 2, result.ModifiedCount)
	assert.Equal(t, "Updated 2 document(s)", res.Text)

	res = mustRun(t, conn, OpUpdateDocument, `{"db": "shop", "collection": "orders", "filter": {"k": "z"}, "update": {"$set": {"n": 1}}, "upsert": true}`)
	result = res.Value.(store.UpdateResult)
	assert.EqualValues(t, 1, result.UpsertedCount)
	assert.Contains(t, res.Text, "upserted ID")
}

func TestDeleteWithoutMatch(t *testing.T) {
	conn := newConn(t)
	mustRun(t, conn, OpInsertDocument, `{"db": "shop", "collection": "orders", "document": {"a": 1}}`)

	res := mustRun(t, conn, OpDeleteDocument, `{"db": "shop", "collection": "orders", "query": {"a": 2}}`)
	assert.Equal(t, bson.D{{Key: "deletedCount", Value: int64(0)}}, res.Value)
	assert.Equal(t, "Deleted 0 document(s)", res.Text)

	res = mustRun(t, conn, OpDeleteDocuments, `{"db": "shop", "collection": "orders", "query": {}}`)
	assert.Equal(t, "Deleted 1 document(s)", res.Text)
}

func TestDistinctIsStable(t *testing.T) {
	conn := newConn(t)
	mustRun(t, conn, OpInsertDocuments, `{"db": "shop", "collection": "orders", "documents": [{"s": "A"}, {"s": "B"}, {"s": "A"}]}`)

	params := `{"db": "shop", "collection": "orders", "field": "s"}`
	first := mustRun(t, conn, OpDistinctValues, params)
	second := mustRun(t, conn, OpDistinctValues, params)
	assert.Equal(t, first.Value, second.Value)
	assert.ElementsMatch(t, []any{"A", "B"}, first.Value)
	assert.Contains(t, first.Text, "Distinct values for s: ")
}

func TestFindDocuments(t *testing.T) {
	conn := newConn(t)
	mustRun(t, conn, OpInsertDocuments, `{"db": "shop", "collection": "orders", "documents": [
		{"_id": 1, "n": 3}, {"_id": 2, "n": 1}, {"_id": 3, "n": 2}]}`)

	res := mustRun(t, conn, OpFindDocuments, `{"db": "shop", "collection": "orders", "skip": 1, "limit": 1}`)
	assert.Equal(t, []bson.D{{{Key: "_id", Value: int32(2)}, {Key: "n", Value: int32(1)}}}, res.Value)

	res = mustRun(t, conn, OpFindDocument, `{"db": "shop", "collection": "orders", "query": {"n": 3}}`)
	assert.Equal(t, `Found document: {"_id":1,"n":3}`, res.Text)

	res = mustRun(t, conn, OpFindDocument, `{"db": "shop", "collection": "orders", "query": {"n": 99}}`)
	assert.Nil(t, res.Value)
	raw, err := res.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `null`, string(raw))

	res = mustRun(t, conn, OpFindDocuments, `{"db": "shop", "collection": "empty"}`)
	raw, err = res.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestFindOptionsArePassedThrough(t *testing.T) {
	spy := &spyConn{docs: []bson.D{{{Key: "_id", Value: int32(3)}}}}
	res := mustRun(t, spy, OpFindDocuments, `{"db": "shop", "collection": "orders", "sort": {"n": 1}, "skip": 1, "limit": 1, "projection": {"_id": 1}}`)
	assert.Equal(t, spy.docs, res.Value)

	require.Len(t, spy.finds, 1)
	assert.Equal(t, store.FindOptions{
		Projection: bson.D{{Key: "_id", Value: int32(1)}},
		Sort:       bson.D{{Key: "n", Value: int32(1)}},
		Skip:       1,
		Limit:      1,
	}, spy.finds[0])
}

func TestExtendedJSON(t *testing.T) {
	conn := newConn(t)
	id := bson.NewObjectID()
	mustRun(t, conn, OpInsertDocument, `{"db": "shop", "collection": "orders", "document": {"_id": {"$oid": "`+id.Hex()+`"}, "at": {"$date": "2024-01-02T03:04:05Z"}}}`)

	res := mustRun(t, conn, OpFindDocument, `{"db": "shop", "collection": "orders", "query": {"_id": {"$oid": "`+id.Hex()+`"}}}`)
	document := res.Value.(bson.D)
	assert.Equal(t, id, document[0].Value)

	raw, err := res.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"$oid":"`+id.Hex()+`"`)
	assert.Contains(t, string(raw), `"$date"`)

	_, err = run(t, conn, OpInsertDocument, `{"db": "shop", "collection": "orders", "document": {"_id": {"$oid": "xyz"}}}`)
	var invalid *errs.InvalidParametersError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Violations[0], "/document")
}

func TestInsertDocumentsReportsPartial(t *testing.T) {
	conn := newConn(t)
	_, err := run(t, conn, OpInsertDocuments, `{"db": "shop", "collection": "orders", "documents": [{"_id": 1}, {"_id": 1}, {"_id": 2}]}`)

	var storeErr *errs.StoreOperationError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, OpInsertDocuments, storeErr.Operation)
	assert.Equal(t, "shop.orders", storeErr.Target)
	partial := storeErr.Partial.(bson.D)
	assert.Equal(t, 1, partial[0].Value)
}

func TestBulkWrite(t *testing.T) {
	conn := newConn(t)
	res := mustRun(t, conn, OpBulkWrite, `{"db": "shop", "collection": "orders", "operations": [
		{"insertOne": {"document": {"_id": 1, "n": 1}}},
		{"insertOne": {"document": {"_id": 2, "n": 1}}},
		{"updateMany": {"filter": {"n": 1}, "update": {"$set": {"n": 2}}}},
		{"deleteOne": {"filter": {"_id": 2}}}
	]}`)
	result := res.Value.(store.BulkWriteResult)
	assert.EqualValues(t, 2, result.InsertedCount)
	assert.EqualValues(t, 2, result.ModifiedCount)
	assert.EqualValues(t, 1, result.DeletedCount)
}

func TestFindAndModify(t *testing.T) {
	conn := newConn(t)
	mustRun(t, conn, OpInsertDocuments, `{"db": "shop", "collection": "jobs", "documents": [{"_id": 1, "p": 2}, {"_id": 2, "p": 5}]}`)

	res := mustRun(t, conn, OpFindAndUpdate, `{"db": "shop", "collection": "jobs", "filter": {"p": 5}, "update": {"$set": {"taken": true}}, "returnNew": true}`)
	assert.Equal(t, bson.D{{Key: "_id", Value: int32(2)}, {Key: "p", Value: int32(5)}, {Key: "taken", Value: true}}, res.Value)

	res = mustRun(t, conn, OpFindAndDelete, `{"db": "shop", "collection": "jobs", "filter": {"p": 2}}`)
	assert.Equal(t, bson.D{{Key: "_id", Value: int32(1)}, {Key: "p", Value: int32(2)}}, res.Value)

	res = mustRun(t, conn, OpFindAndDelete, `{"db": "shop", "collection": "jobs", "filter": {"_id": 42}}`)
	assert.Nil(t, res.Value)

	spy := &spyConn{docs: []bson.D{{{Key: "_id", Value: int32(2)}}}}
	mustRun(t, spy, OpFindAndUpdate, `{"db": "shop", "collection": "jobs", "filter": {}, "sort": {"p": -1}, "projection": {"_id": 1}, "update": {"$set": {"taken": true}}, "upsert": true, "returnNew": true}`)
	require.Len(t, spy.modifies, 1)
	assert.Equal(t, store.FindAndModifyOptions{
		Projection: bson.D{{Key: "_id", Value: int32(1)}},
		Sort:       bson.D{{Key: "p", Value: int32(-1)}},
		Upsert:     true,
		ReturnNew:  true,
	}, spy.modifies[0])
}

// --------------------------------------------------------------------------
// Database & Collection Operations
// --------------------------------------------------------------------------

func TestCollectionLifecycle(t *testing.T) {
	conn := newConn(t)
	res := mustRun(t, conn, OpCreateCollection, `{"db": "shop", "collection": "orders"}`)
	assert.Equal(t, `Collection "orders" created successfully.`, res.Text)

	res = mustRun(t, conn, OpListCollections, `{"db": "shop"}`)
	assert.Contains(t, res.Value, "orders")
	assert.Equal(t, "Collections in shop: orders", res.Text)

	mustRun(t, conn, OpDropCollection, `{"db": "shop", "collection": "orders"}`)
	res = mustRun(t, conn, OpListCollections, `{"db": "shop"}`)
	assert.NotContains(t, res.Value, "orders")
}

func TestCreateDatabaseUsesSentinel(t *testing.T) {
	spy := &spyConn{IConn: newConn(t)}
	res := mustRun(t, spy, OpCreateDatabase, `{"db": "fresh"}`)
	assert.Equal(t, `Database "fresh" created successfully.`, res.Text)

	sentinel := store.Target{DB: "fresh", Collection: SentinelCollection}
	assert.Equal(t, []store.Target{sentinel}, spy.created)
	assert.Equal(t, []store.Target{sentinel}, spy.dropped)

	spy = &spyConn{IConn: newConn(t), fail: errors.New("not authorized")}
	_, err := run(t, spy, OpCreateDatabase, `{"db": "fresh"}`)
	var storeErr *errs.StoreOperationError
	require.ErrorAs(t, err, &storeErr)
	assert.Contains(t, storeErr.Operation, "create sentinel")
	assert.Empty(t, spy.dropped)
}

func TestIndexes(t *testing.T) {
	conn := newConn(t)
	res := mustRun(t, conn, OpCreateIndex, `{"db": "shop", "collection": "users", "keys": {"email": 1}, "unique": true}`)
	assert.Equal(t, "email_1", res.Value)

	res = mustRun(t, conn, OpListIndexes, `{"db": "shop", "collection": "users"}`)
	assert.Len(t, res.Value, 2)

	mustRun(t, conn, OpDropIndex, `{"db": "shop", "collection": "users", "name": "email_1"}`)
	res = mustRun(t, conn, OpListIndexes, `{"db": "shop", "collection": "users"}`)
	assert.Len(t, res.Value, 1)
}

func TestUsers(t *testing.T) {
	conn := newConn(t)
	mustRun(t, conn, OpCreateUser, `{"db": "shop", "username": "ada", "password": "pw", "roles": ["read"]}`)
	mustRun(t, conn, OpGrantRoles, `{"db": "shop", "username": "ada", "roles": [{"role": "readWrite", "db": "reporting"}]}`)

	users := memstore.Users(conn, "shop")
	require.Len(t, users, 1)
	assert.Equal(t, []store.Role{{Role: "read"}, {Role: "readWrite", DB: "reporting"}}, users[0].Roles)

	_, err := run(t, conn, OpUpdateUser, `{"db": "shop", "username": "ada"}`)
	var invalid *errs.InvalidParametersError
	require.ErrorAs(t, err, &invalid)

	mustRun(t, conn, OpRemoveUser, `{"db": "shop", "username": "ada"}`)
	assert.Empty(t, memstore.Users(conn, "shop"))

	_, err = run(t, conn, OpRemoveUser, `{"db": "shop", "username": "ada"}`)
	var storeErr *errs.StoreOperationError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "shop", storeErr.Target)
}

// --------------------------------------------------------------------------
// Aggregation Helpers
// --------------------------------------------------------------------------

func TestStagePipelines(t *testing.T) {
	match := bson.D{{Key: "$match", Value: bson.D{{Key: "s", Value: "A"}}}}
	tests := []struct {
		name   string
		op     string
		params string
		want   []bson.D
	}{
		{
			name:   "group by field",
			op:     OpGroupDocuments,
			params: `{"groupBy": "s", "accumulators": {"total": {"$sum": "$n"}}, "match": {"s": "A"}}`,
			want: []bson.D{match, {{Key: "$group", Value: bson.D{
				{Key: "_id", Value: "$s"},
				{Key: "total", Value: bson.D{{Key: "$sum", Value: "$n"}}},
			}}}},
		},
		{
			name:   "group everything",
			op:     OpGroupDocuments,
			params: `{"groupBy": null, "accumulators": {"n": {"$sum": 1}}}`,
			want: []bson.D{{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: nil},
				{Key: "n", Value: bson.D{{Key: "$sum", Value: int32(1)}}},
			}}}},
		},
		{
			name:   "group by expression",
			op:     OpGroupDocuments,
			params: `{"groupBy": {"y": "$year"}, "accumulators": {"n": {"$sum": 1}}}`,
			want: []bson.D{{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: bson.D{{Key: "y", Value: "$year"}}},
				{Key: "n", Value: bson.D{{Key: "$sum", Value: int32(1)}}},
			}}}},
		},
		{
			name:   "project",
			op:     OpProjectDocuments,
			params: `{"projection": {"name": 1, "_id": 0}}`,
			want:   []bson.D{{{Key: "$project", Value: bson.D{{Key: "name", Value: int32(1)}, {Key: "_id", Value: int32(0)}}}}},
		},
		{
			name:   "sort with limit",
			op:     OpSortDocuments,
			params: `{"sort": {"n": -1}, "limit": 3, "match": {"s": "A"}}`,
			want: []bson.D{
				match,
				{{Key: "$sort", Value: bson.D{{Key: "n", Value: int32(-1)}}}},
				{{Key: "$limit", Value: int64(3)}},
			},
		},
		{
			name:   "limit",
			op:     OpLimitDocuments,
			params: `{"limit": 5}`,
			want:   []bson.D{{{Key: "$limit", Value: int64(5)}}},
		},
		{
			name:   "skip",
			op:     OpSkipDocuments,
			params: `{"skip": 10}`,
			want:   []bson.D{{{Key: "$skip", Value: int64(10)}}},
		},
		{
			name:   "lookup",
			op:     OpLookupDocuments,
			params: `{"from": "customers", "localField": "cid", "foreignField": "_id", "as": "customer"}`,
			want: []bson.D{{{Key: "$lookup", Value: bson.D{
				{Key: "from", Value: "customers"},
				{Key: "localField", Value: "cid"},
				{Key: "foreignField", Value: "_id"},
				{Key: "as", Value: "customer"},
			}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &spyConn{}
			params := `{"db": "shop", "collection": "orders", ` + tt.params[1:]

			res := mustRun(t, spy, tt.op, params)
			require.Len(t, spy.pipelines, 1)
			assert.Equal(t, tt.want, spy.pipelines[0])
			assert.Equal(t, []bson.D{}, res.Value)
		})
	}
}

func TestUnsupportedStoreErrorIsWrapped(t *testing.T) {
	conn := newConn(t)
	_, err := run(t, conn, OpGroupDocuments, `{"db": "shop", "collection": "orders", "groupBy": "s", "accumulators": {"total": {"$sum": "$n"}}}`)

	var storeErr *errs.StoreOperationError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, OpGroupDocuments, storeErr.Operation)
	assert.Equal(t, "shop.orders", storeErr.Target)
	var cause *store.Error
	require.ErrorAs(t, err, &cause)
	assert.Equal(t, store.RetCUnsupportedOperation, cause.Code)
}

// --------------------------------------------------------------------------
// Error Wrapping & Lifecycle
// --------------------------------------------------------------------------

func TestStoreErrorsAreWrapped(t *testing.T) {
	cause := errors.New("boom")
	spy := &spyConn{fail: cause}
	_, err := run(t, spy, OpInsertDocument, `{"db": "shop", "collection": "orders", "document": {}}`)

	var storeErr *errs.StoreOperationError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, OpInsertDocument, storeErr.Operation)
	assert.Equal(t, "shop.orders", storeErr.Target)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, errs.KindStoreOperation, errs.KindOf(err))
}

func TestGatedOperationWithoutHandle(t *testing.T) {
	op, _ := registry.Lookup(OpPing)
	_, err := op.Exec(context.Background(), &Call{Operation: OpPing})
	assert.Equal(t, errs.KindNotConnected, errs.KindOf(err))
}

func TestLifecycleOperations(t *testing.T) {
	name := uuid.NewString()
	t.Cleanup(func() { memstore.Reset(name) })
	s := session.New(memstore.NewConnector(), "")
	exec := func(op, params string) (Result, error) {
		o, ok := registry.Lookup(op)
		require.True(t, ok)
		require.NoError(t, o.Validate(json.RawMessage(params)))
		return o.Exec(context.Background(), &Call{Operation: op, Params: json.RawMessage(params), Session: s})
	}

	res, err := exec(OpConnect, `{"url": "memory://`+name+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "Connected to MongoDB!", res.Text)
	assert.Equal(t, session.StateConnected, res.Value.(session.Status).State)

	res, err = exec(OpConnectionStatus, `{}`)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "connected")

	res, err = exec(OpCloseConnection, `{}`)
	require.NoError(t, err)
	assert.Equal(t, "connection closed", res.Text)
	assert.Equal(t, session.StateClosed, s.Status().State)

	_, err = exec(OpConnect, `{"url": "redis://nope"}`)
	assert.Equal(t, errs.KindConnection, errs.KindOf(err))
}
