package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func requireCode(t *testing.T, err error, code store.RetCode) {
	t.Helper()
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr), "expected a store error, got %v", err)
	assert.Equal(t, code, storeErr.Code)
}

func TestConnectorSharesNamedInstances(t *testing.T) {
	ctx := context.Background()
	name := uuid.NewString()
	target := store.Target{DB: "db", Collection: "c"}

	first, err := NewConnector().Connect(ctx, "memory://"+name)
	require.NoError(t, err)
	second, err := NewConnector().Connect(ctx, "memory://"+name+"/ignored?x=1")
	require.NoError(t, err)

	_, err = first.InsertOne(ctx, target, bson.D{{Key: "a", Value: 1}})
	require.NoError(t, err)

	n, err := second.CountDocuments(ctx, target, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	Reset(name)
	third := Open(name)
	n, err = third.CountDocuments(ctx, target, bson.D{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConnectorRejectsForeignScheme(t *testing.T) {
	_, err := NewConnector().Connect(context.Background(), "mongodb://localhost:27017")
	requireCode(t, err, store.RetCInvalidOperation)
}

func TestClosedHandle(t *testing.T) {
	ctx := context.Background()
	conn := Open(uuid.NewString())
	require.NoError(t, conn.Ping(ctx))
	require.NoError(t, conn.Close(ctx))

	err := conn.Ping(ctx)
	requireCode(t, err, store.RetCInvalidOperation)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(uuid.NewString()).Find(ctx, store.Target{DB: "a", Collection: "b"}, bson.D{}, store.FindOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnsupportedVocabulary(t *testing.T) {
	ctx := context.Background()
	conn := Open(uuid.NewString())
	target := store.Target{DB: "db", Collection: "c"}
	_, err := conn.InsertOne(ctx, target, bson.D{{Key: "a", Value: 1}})
	require.NoError(t, err)

	cases := []struct {
		name string
		call func() error
	}{
		{"LogicalOperator", func() error {
			_, err := conn.Find(ctx, target, bson.D{{Key: "$or", Value: bson.A{}}}, store.FindOptions{})
			return err
		}},
		{"FieldOperator", func() error {
			_, err := conn.CountDocuments(ctx, target, bson.D{{Key: "a", Value: bson.D{{Key: "$gt", Value: 0}}}})
			return err
		}},
		{"DottedPath", func() error {
			_, err := conn.DeleteMany(ctx, target, bson.D{{Key: "a.b", Value: 1}})
			return err
		}},
		{"Sort", func() error {
			_, err := conn.Find(ctx, target, bson.D{}, store.FindOptions{Sort: bson.D{{Key: "a", Value: 1}}})
			return err
		}},
		{"Projection", func() error {
			_, err := conn.Find(ctx, target, bson.D{}, store.FindOptions{Projection: bson.D{{Key: "_id", Value: 1}}})
			return err
		}},
		{"UpdateOperator", func() error {
			_, err := conn.UpdateOne(ctx, target, bson.D{}, bson.D{{Key: "$inc", Value: bson.D{{Key: "a", Value: 1}}}}, false)
			return err
		}},
		{"SortedFindAndModify", func() error {
			_, _, err := conn.FindOneAndDelete(ctx, target, bson.D{}, store.FindAndModifyOptions{Sort: bson.D{{Key: "a", Value: -1}}})
			return err
		}},
		{"Aggregate", func() error {
			_, err := conn.Aggregate(ctx, target, []bson.D{{{Key: "$match", Value: bson.D{}}}})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			requireCode(t, tc.call(), store.RetCUnsupportedOperation)
		})
	}

	// nothing was modified by the rejected calls
	n, err := conn.CountDocuments(ctx, target, bson.D{{Key: "a", Value: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEqualityFilters(t *testing.T) {
	ctx := context.Background()
	conn := Open(uuid.NewString())
	target := store.Target{DB: "db", Collection: "people"}
	_, err := conn.InsertMany(ctx, target, []bson.D{
		{{Key: "name", Value: "Ada"}, {Key: "age", Value: int32(36)}},
		{{Key: "name", Value: "Alan"}, {Key: "age", Value: int32(41)}},
		{{Key: "name", Value: "Grace"}, {Key: "age", Value: int32(85)}},
	}, true)
	require.NoError(t, err)

	cases := []struct {
		name   string
		filter bson.D
		want   int64
	}{
		{"Empty", bson.D{}, 3},
		{"Field", bson.D{{Key: "name", Value: "Alan"}}, 1},
		{"MixedNumberTypes", bson.D{{Key: "age", Value: 36.0}}, 1},
		{"AllFieldsMustMatch", bson.D{{Key: "name", Value: "Ada"}, {Key: "age", Value: 41}}, 0},
		{"MissingField", bson.D{{Key: "email", Value: "x"}}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := conn.CountDocuments(ctx, target, tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)
		})
	}

	docs, err := conn.Find(ctx, target, bson.D{}, store.FindOptions{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	name, _ := get(docs[0], "name")
	assert.Equal(t, "Alan", name)
}

func TestSetAndUpsert(t *testing.T) {
	ctx := context.Background()
	conn := Open(uuid.NewString())
	target := store.Target{DB: "db", Collection: "c"}
	_, err := conn.InsertOne(ctx, target, bson.D{{Key: "_id", Value: "a"}, {Key: "status", Value: "new"}})
	require.NoError(t, err)

	res, err := conn.UpdateOne(ctx, target, bson.D{{Key: "_id", Value: "a"}}, bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: "done"}}}}, false)
	require.NoError(t, err)
	assert.Equal(t, store.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, res)

	res, err = conn.UpdateOne(ctx, target, bson.D{{Key: "_id", Value: "b"}}, bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: "new"}}}}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.UpsertedCount)
	assert.Equal(t, "b", res.UpsertedID)

	_, err = conn.UpdateOne(ctx, target, bson.D{}, bson.D{{Key: "status", Value: "x"}}, false)
	requireCode(t, err, store.RetCInvalidOperation)

	_, err = conn.UpdateOne(ctx, target, bson.D{{Key: "_id", Value: "a"}}, bson.D{{Key: "$set", Value: bson.D{{Key: "_id", Value: "z"}}}}, false)
	requireCode(t, err, store.RetCInvalidOperation)

	doc, found, err := conn.FindOneAndUpdate(ctx, target, bson.D{{Key: "_id", Value: "b"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: "done"}}}}, store.FindAndModifyOptions{ReturnNew: true})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, bson.D{{Key: "_id", Value: "b"}, {Key: "status", Value: "done"}}, doc)

	values, err := conn.Distinct(ctx, target, "status", bson.D{})
	require.NoError(t, err)
	assert.Equal(t, []any{"done"}, values)
}

func TestDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	conn := Open(uuid.NewString())
	target := store.Target{DB: "db", Collection: "c"}

	res, err := conn.InsertMany(ctx, target, []bson.D{
		{{Key: "_id", Value: 1}},
		{{Key: "_id", Value: int64(1)}},
		{{Key: "_id", Value: 2}},
	}, false)
	requireCode(t, err, store.RetCAlreadyExists)
	assert.Equal(t, []any{1, 2}, res.InsertedIDs)
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	ctx := context.Background()
	conn := Open(uuid.NewString())
	target := store.Target{DB: "db", Collection: "c"}
	_, err := conn.InsertOne(ctx, target, bson.D{{Key: "_id", Value: 1}, {Key: "nested", Value: bson.D{{Key: "v", Value: "orig"}}}})
	require.NoError(t, err)

	doc, found, err := conn.FindOne(ctx, target, bson.D{}, store.FindOptions{})
	require.NoError(t, err)
	require.True(t, found)
	doc[1].Value.(bson.D)[0].Value = "changed"

	doc, _, err = conn.FindOne(ctx, target, bson.D{}, store.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, "orig", doc[1].Value.(bson.D)[0].Value)
}

func TestUsersAreTracked(t *testing.T) {
	ctx := context.Background()
	conn := Open(uuid.NewString())
	require.NoError(t, conn.CreateUser(ctx, "app", store.User{Name: "bob", Password: "pw", Roles: []store.Role{{Role: "read"}}}))
	require.NoError(t, conn.GrantRoles(ctx, "app", "bob", []store.Role{{Role: "read"}, {Role: "readWrite", DB: "other"}}))

	users := Users(conn, "app")
	require.Len(t, users, 1)
	assert.Equal(t, []store.Role{{Role: "read"}, {Role: "readWrite", DB: "other"}}, users[0].Roles)

	err := conn.UpdateUser(ctx, "app", store.User{Name: "nobody", Password: "x"})
	requireCode(t, err, store.RetCNotFound)
}
