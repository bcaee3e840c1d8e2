package testing

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ConnFactory returns a connected handle. The suite closes every handle it gets.
type ConnFactory func(t *testing.T) store.IConn

// RunStoreTests runs a conformance test suite for an IConn implementation.
// Every test works in its own freshly named database, so the suite can run
// against a shared server.
func RunStoreTests(t *testing.T, name string, factory ConnFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("InsertAndFind", func(t *testing.T) {
			testInsertAndFind(t, factory(t))
		})

		t.Run("CountAfterInsert", func(t *testing.T) {
			testCountAfterInsert(t, factory(t))
		})

		t.Run("InsertManyPartial", func(t *testing.T) {
			testInsertManyPartial(t, factory(t))
		})

		t.Run("UpdateMany", func(t *testing.T) {
			testUpdateMany(t, factory(t))
		})

		t.Run("Upsert", func(t *testing.T) {
			testUpsert(t, factory(t))
		})

		t.Run("DeleteWithoutMatch", func(t *testing.T) {
			testDeleteWithoutMatch(t, factory(t))
		})

		t.Run("FindOptions", func(t *testing.T) {
			testFindOptions(t, factory(t))
		})

		t.Run("DistinctIsIdempotent", func(t *testing.T) {
			testDistinctIsIdempotent(t, factory(t))
		})

		t.Run("FindAndModify", func(t *testing.T) {
			testFindAndModify(t, factory(t))
		})

		t.Run("BulkWrite", func(t *testing.T) {
			testBulkWrite(t, factory(t))
		})

		t.Run("Aggregate", func(t *testing.T) {
			testAggregate(t, factory(t))
		})

		t.Run("CollectionLifecycle", func(t *testing.T) {
			testCollectionLifecycle(t, factory(t))
		})

		t.Run("DatabaseLifecycle", func(t *testing.T) {
			testDatabaseLifecycle(t, factory(t))
		})

		t.Run("Indexes", func(t *testing.T) {
			testIndexes(t, factory(t))
		})

		t.Run("Users", func(t *testing.T) {
			testUsers(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// newTarget returns a target in a database that no other test uses
func newTarget(t *testing.T, conn store.IConn) (context.Context, store.Target) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	t.Cleanup(func() {
		_ = conn.DropDatabase(context.Background(), db)
		_ = conn.Close(context.Background())
		cancel()
	})
	return ctx, store.Target{DB: db, Collection: "items"}
}

// num converts any numeric bson value to float64, so assertions do not depend
// on the integer width the store picked.
func num(t *testing.T, v any) float64 {
	t.Helper()
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	t.Fatalf("expected a number, got %T (%v)", v, v)
	return 0
}

func field(t *testing.T, doc bson.D, key string) any {
	t.Helper()
	for _, e := range doc {
		if e.Key == key {
			return e.Value
		}
	}
	t.Fatalf("document %v has no field %q", doc, key)
	return nil
}

func seed(t *testing.T, ctx context.Context, conn store.IConn, target store.Target, n int) {
	t.Helper()
	docs := make([]bson.D, n)
	for i := range docs {
		docs[i] = bson.D{
			{Key: "_id", Value: i},
			{Key: "n", Value: i},
			{Key: "group", Value: fmt.Sprintf("g%d", i%3)},
		}
	}
	_, err := conn.InsertMany(ctx, target, docs, true)
	require.NoError(t, err)
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testInsertAndFind(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)

	id, err := conn.InsertOne(ctx, target, bson.D{{Key: "name", Value: "alpha"}, {Key: "qty", Value: 3}})
	require.NoError(t, err)
	require.NotNil(t, id)

	doc, found, err := conn.FindOne(ctx, target, bson.D{{Key: "name", Value: "alpha"}}, store.FindOptions{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, field(t, doc, "_id"))
	assert.Equal(t, 3.0, num(t, field(t, doc, "qty")))

	_, found, err = conn.FindOne(ctx, target, bson.D{{Key: "name", Value: "missing"}}, store.FindOptions{})
	require.NoError(t, err)
	assert.False(t, found)
}

func testCountAfterInsert(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)

	n, err := conn.CountDocuments(ctx, target, bson.D{})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = conn.InsertOne(ctx, target, bson.D{{Key: "a", Value: 1}})
	require.NoError(t, err)

	n, err = conn.CountDocuments(ctx, target, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testInsertManyPartial(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)

	docs := []bson.D{
		{{Key: "_id", Value: "a"}},
		{{Key: "_id", Value: "a"}},
		{{Key: "_id", Value: "b"}},
	}
	res, err := conn.InsertMany(ctx, target, docs, true)
	require.Error(t, err)
	assert.Len(t, res.InsertedIDs, 1, "an ordered insert stops at the first failure")

	n, err := conn.CountDocuments(ctx, target, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testUpdateMany(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)

	for _, name := range []string{"x", "x", "y"} {
		_, err := conn.InsertOne(ctx, target, bson.D{{Key: "name", Value: name}, {Key: "seen", Value: false}})
		require.NoError(t, err)
	}

	res, err := conn.UpdateMany(ctx, target,
		bson.D{{Key: "name", Value: "x"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "seen", Value: true}}}},
		false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MatchedCount)
	assert.Equal(t, int64(2), res.ModifiedCount)

	// applying the same update again changes nothing
	res, err = conn.UpdateMany(ctx, target,
		bson.D{{Key: "name", Value: "x"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "seen", Value: true}}}},
		false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MatchedCount)
	assert.Equal(t, int64(0), res.ModifiedCount)

	n, err := conn.CountDocuments(ctx, target, bson.D{{Key: "seen", Value: true}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testUpsert(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)

	res, err := conn.UpdateOne(ctx, target,
		bson.D{{Key: "sku", Value: "abc"}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "stock", Value: 5}}}},
		true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.MatchedCount)
	assert.Equal(t, int64(1), res.UpsertedCount)
	assert.NotNil(t, res.UpsertedID)

	doc, found, err := conn.FindOne(ctx, target, bson.D{{Key: "sku", Value: "abc"}}, store.FindOptions{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 5.0, num(t, field(t, doc, "stock")))
}

func testDeleteWithoutMatch(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)
	seed(t, ctx, conn, target, 3)

	n, err := conn.DeleteOne(ctx, target, bson.D{{Key: "n", Value: 99}})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = conn.DeleteMany(ctx, target, bson.D{{Key: "n", Value: bson.D{{Key: "$gte", Value: 1}}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testFindOptions(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)
	seed(t, ctx, conn, target, 10)

	docs, err := conn.Find(ctx, target, bson.D{{Key: "group", Value: "g0"}}, store.FindOptions{
		Sort:       bson.D{{Key: "n", Value: -1}},
		Skip:       1,
		Limit:      2,
		Projection: bson.D{{Key: "n", Value: 1}, {Key: "_id", Value: 0}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	// group g0 holds n = 0, 3, 6, 9
	assert.Equal(t, 6.0, num(t, field(t, docs[0], "n")))
	assert.Equal(t, 3.0, num(t, field(t, docs[1], "n")))
	assert.Len(t, docs[0], 1, "projection keeps only n")

	// an _id-only inclusion drops every other field
	docs, err = conn.Find(ctx, target, bson.D{{Key: "group", Value: "g1"}}, store.FindOptions{
		Sort:       bson.D{{Key: "n", Value: 1}},
		Projection: bson.D{{Key: "_id", Value: 1}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i, d := range docs {
		require.Len(t, d, 1, "projection keeps only _id")
		assert.Equal(t, float64(1+3*i), num(t, field(t, d, "_id")))
	}

	docs, err = conn.Find(ctx, target, bson.D{{Key: "n", Value: bson.D{{Key: "$in", Value: bson.A{1, 2}}}}}, store.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func testDistinctIsIdempotent(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)
	seed(t, ctx, conn, target, 9)

	first, err := conn.Distinct(ctx, target, "group", bson.D{})
	require.NoError(t, err)
	second, err := conn.Distinct(ctx, target, "group", bson.D{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []any{"g0", "g1", "g2"}, first)
	assert.ElementsMatch(t, first, second)
}

func testFindAndModify(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)
	seed(t, ctx, conn, target, 3)

	doc, found, err := conn.FindOneAndUpdate(ctx, target,
		bson.D{{Key: "n", Value: 1}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "tag", Value: "hot"}}}},
		store.FindAndModifyOptions{ReturnNew: true})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hot", field(t, doc, "tag"))

	_, found, err = conn.FindOneAndUpdate(ctx, target,
		bson.D{{Key: "n", Value: 42}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "tag", Value: "cold"}}}},
		store.FindAndModifyOptions{})
	require.NoError(t, err)
	assert.False(t, found)

	doc, found, err = conn.FindOneAndDelete(ctx, target, bson.D{}, store.FindAndModifyOptions{
		Sort: bson.D{{Key: "n", Value: -1}},
	})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2.0, num(t, field(t, doc, "n")))

	n, err := conn.CountDocuments(ctx, target, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testBulkWrite(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)

	res, err := conn.BulkWrite(ctx, target, []store.WriteModel{
		{Kind: store.WriteInsertOne, Document: bson.D{{Key: "_id", Value: 1}, {Key: "v", Value: "a"}}},
		{Kind: store.WriteInsertOne, Document: bson.D{{Key: "_id", Value: 2}, {Key: "v", Value: "b"}}},
		{Kind: store.WriteUpdateOne, Filter: bson.D{{Key: "_id", Value: 1}}, Update: bson.D{{Key: "$set", Value: bson.D{{Key: "v", Value: "c"}}}}},
		{Kind: store.WriteReplaceOne, Filter: bson.D{{Key: "_id", Value: 3}}, Replacement: bson.D{{Key: "v", Value: "d"}}, Upsert: true},
		{Kind: store.WriteDeleteOne, Filter: bson.D{{Key: "_id", Value: 2}}},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.InsertedCount)
	assert.Equal(t, int64(1), res.ModifiedCount)
	assert.Equal(t, int64(1), res.UpsertedCount)
	assert.Equal(t, int64(1), res.DeletedCount)

	n, err := conn.CountDocuments(ctx, target, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testAggregate(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)
	seed(t, ctx, conn, target, 9)

	docs, err := conn.Aggregate(ctx, target, []bson.D{
		{{Key: "$match", Value: bson.D{{Key: "n", Value: bson.D{{Key: "$lt", Value: 6}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$group"},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$n"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	// g0: 0+3, g1: 1+4, g2: 2+5
	assert.Equal(t, "g0", field(t, docs[0], "_id"))
	assert.Equal(t, 3.0, num(t, field(t, docs[0], "total")))
	assert.Equal(t, 7.0, num(t, field(t, docs[2], "total")))

	docs, err = conn.Aggregate(ctx, target, []bson.D{
		{{Key: "$sort", Value: bson.D{{Key: "n", Value: -1}}}},
		{{Key: "$skip", Value: 1}},
		{{Key: "$limit", Value: 2}},
		{{Key: "$project", Value: bson.D{{Key: "_id", Value: 0}, {Key: "n", Value: 1}}}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 7.0, num(t, field(t, docs[0], "n")))

	docs, err = conn.Aggregate(ctx, target, []bson.D{
		{{Key: "$count", Value: "all"}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 9.0, num(t, field(t, docs[0], "all")))
}

func testCollectionLifecycle(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)

	require.NoError(t, conn.CreateCollection(ctx, target, nil))
	names, err := conn.ListCollections(ctx, target.DB)
	require.NoError(t, err)
	assert.Contains(t, names, target.Collection)

	assert.Error(t, conn.CreateCollection(ctx, target, nil), "creating an existing collection fails")

	require.NoError(t, conn.DropCollection(ctx, target))
	names, err = conn.ListCollections(ctx, target.DB)
	require.NoError(t, err)
	assert.NotContains(t, names, target.Collection)

	// dropping a missing collection is not an error
	require.NoError(t, conn.DropCollection(ctx, target))
}

func testDatabaseLifecycle(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)

	_, err := conn.InsertOne(ctx, target, bson.D{{Key: "x", Value: 1}})
	require.NoError(t, err)

	dbs, err := conn.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Contains(t, dbs, target.DB)

	require.NoError(t, conn.DropDatabase(ctx, target.DB))
	dbs, err = conn.ListDatabases(ctx)
	require.NoError(t, err)
	assert.NotContains(t, dbs, target.DB)
}

func testIndexes(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)

	name, err := conn.CreateIndex(ctx, target, store.IndexSpec{Keys: bson.D{{Key: "email", Value: 1}}, Unique: true})
	require.NoError(t, err)
	assert.Equal(t, "email_1", name)

	specs, err := conn.ListIndexes(ctx, target)
	require.NoError(t, err)
	var names []string
	for _, s := range specs {
		names = append(names, field(t, s, "name").(string))
	}
	assert.ElementsMatch(t, []string{"_id_", "email_1"}, names)

	require.NoError(t, conn.DropIndex(ctx, target, "email_1"))
	assert.Error(t, conn.DropIndex(ctx, target, "email_1"), "dropping a missing index fails")

	specs, err = conn.ListIndexes(ctx, target)
	require.NoError(t, err)
	assert.Len(t, specs, 1)
}

func testUsers(t *testing.T, conn store.IConn) {
	ctx, target := newTarget(t, conn)
	user := store.User{Name: "reader", Password: "secret", Roles: []store.Role{{Role: "read"}}}

	require.NoError(t, conn.CreateUser(ctx, target.DB, user))
	assert.Error(t, conn.CreateUser(ctx, target.DB, user), "creating a user twice fails")

	require.NoError(t, conn.UpdateUser(ctx, target.DB, store.User{Name: "reader", Password: "changed"}))
	require.NoError(t, conn.GrantRoles(ctx, target.DB, "reader", []store.Role{{Role: "readWrite"}}))
	require.NoError(t, conn.DropUser(ctx, target.DB, "reader"))

	assert.Error(t, conn.DropUser(ctx, target.DB, "reader"), "dropping a missing user fails")
}
