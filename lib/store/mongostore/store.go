package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

var log = logger.GetLogger("store")

const (
	defaultAppName                = "ddoc"
	defaultServerSelectionTimeout = 10 * time.Second
)

// Options configures how connections are opened.
type Options struct {
	// AppName is reported to the server in the handshake
	AppName string
	// ServerSelectionTimeout bounds how long the driver waits for a suitable server
	ServerSelectionTimeout time.Duration
	// MaxPoolSize limits the driver connection pool, 0 keeps the driver default
	MaxPoolSize uint64
}

// NewConnector returns a store.IConnector that opens MongoDB connections.
func NewConnector(opts Options) store.IConnector {
	if opts.AppName == "" {
		opts.AppName = defaultAppName
	}
	if opts.ServerSelectionTimeout <= 0 {
		opts.ServerSelectionTimeout = defaultServerSelectionTimeout
	}
	return &connector{opts: opts}
}

type connector struct {
	opts Options
}

func (c *connector) Connect(ctx context.Context, address string) (store.IConn, error) {
	clientOpts := options.Client().
		ApplyURI(address).
		SetAppName(c.opts.AppName).
		SetServerSelectionTimeout(c.opts.ServerSelectionTimeout)
	if c.opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(c.opts.MaxPoolSize)
	}

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, err
	}

	// Ping to verify the connection, discard the client if that fails
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		if dErr := client.Disconnect(context.Background()); dErr != nil {
			log.Warningf("failed to disconnect after failed ping: %v", dErr)
		}
		return nil, err
	}

	return New(client), nil
}

// New wraps an already connected client. The returned handle owns the client,
// closing the handle disconnects it.
func New(client *mongo.Client) store.IConn {
	return &conn{client: client}
}

// conn implements store.IConn on top of a *mongo.Client
type conn struct {
	client *mongo.Client
}

func (c *conn) coll(t store.Target) *mongo.Collection {
	return c.client.Database(t.DB).Collection(t.Collection)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IConn)
// --------------------------------------------------------------------------

func (c *conn) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *conn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *conn) InsertOne(ctx context.Context, t store.Target, doc bson.D) (any, error) {
	res, err := c.coll(t).InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (c *conn) InsertMany(ctx context.Context, t store.Target, docs []bson.D, ordered bool) (store.InsertManyResult, error) {
	res, err := c.coll(t).InsertMany(ctx, docs, options.InsertMany().SetOrdered(ordered))
	out := store.InsertManyResult{}
	if res != nil {
		out.InsertedIDs = res.InsertedIDs
	}
	return out, err
}

func (c *conn) UpdateOne(ctx context.Context, t store.Target, filter, update bson.D, upsert bool) (store.UpdateResult, error) {
	res, err := c.coll(t).UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(upsert))
	return toUpdateResult(res), err
}

func (c *conn) UpdateMany(ctx context.Context, t store.Target, filter, update bson.D, upsert bool) (store.UpdateResult, error) {
	res, err := c.coll(t).UpdateMany(ctx, filter, update, options.UpdateMany().SetUpsert(upsert))
	return toUpdateResult(res), err
}

func (c *conn) DeleteOne(ctx context.Context, t store.Target, filter bson.D) (int64, error) {
	res, err := c.coll(t).DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *conn) DeleteMany(ctx context.Context, t store.Target, filter bson.D) (int64, error) {
	res, err := c.coll(t).DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *conn) FindOne(ctx context.Context, t store.Target, filter bson.D, opts store.FindOptions) (bson.D, bool, error) {
	findOpts := options.FindOne()
	if len(opts.Projection) > 0 {
		findOpts.SetProjection(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	return decodeSingle(c.coll(t).FindOne(ctx, filter, findOpts))
}

func (c *conn) Find(ctx context.Context, t store.Target, filter bson.D, opts store.FindOptions) ([]bson.D, error) {
	findOpts := options.Find()
	if len(opts.Projection) > 0 {
		findOpts.SetProjection(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	cursor, err := c.coll(t).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	return drain(ctx, cursor)
}

func (c *conn) CountDocuments(ctx context.Context, t store.Target, filter bson.D) (int64, error) {
	return c.coll(t).CountDocuments(ctx, filter)
}

func (c *conn) Distinct(ctx context.Context, t store.Target, field string, filter bson.D) ([]any, error) {
	res := c.coll(t).Distinct(ctx, field, filter)
	if err := res.Err(); err != nil {
		return nil, err
	}
	var values []any
	if err := res.Decode(&values); err != nil {
		return nil, err
	}
	if values == nil {
		values = []any{}
	}
	return values, nil
}

func (c *conn) Aggregate(ctx context.Context, t store.Target, pipeline []bson.D) ([]bson.D, error) {
	cursor, err := c.coll(t).Aggregate(ctx, mongo.Pipeline(pipeline))
	if err != nil {
		return nil, err
	}
	return drain(ctx, cursor)
}

func (c *conn) BulkWrite(ctx context.Context, t store.Target, models []store.WriteModel, ordered bool) (store.BulkWriteResult, error) {
	writes := make([]mongo.WriteModel, 0, len(models))
	for i, m := range models {
		w, err := toWriteModel(m)
		if err != nil {
			return store.BulkWriteResult{}, fmt.Errorf("operation %d: %w", i, err)
		}
		writes = append(writes, w)
	}

	res, err := c.coll(t).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(ordered))
	out := store.BulkWriteResult{}
	if res != nil {
		out = store.BulkWriteResult{
			InsertedCount: res.InsertedCount,
			MatchedCount:  res.MatchedCount,
			ModifiedCount: res.ModifiedCount,
			DeletedCount:  res.DeletedCount,
			UpsertedCount: res.UpsertedCount,
		}
	}
	return out, err
}

func (c *conn) FindOneAndUpdate(ctx context.Context, t store.Target, filter, update bson.D, opts store.FindAndModifyOptions) (bson.D, bool, error) {
	fOpts := options.FindOneAndUpdate().SetUpsert(opts.Upsert)
	if opts.ReturnNew {
		fOpts.SetReturnDocument(options.After)
	} else {
		fOpts.SetReturnDocument(options.Before)
	}
	if len(opts.Projection) > 0 {
		fOpts.SetProjection(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		fOpts.SetSort(opts.Sort)
	}
	return decodeSingle(c.coll(t).FindOneAndUpdate(ctx, filter, update, fOpts))
}

func (c *conn) FindOneAndDelete(ctx context.Context, t store.Target, filter bson.D, opts store.FindAndModifyOptions) (bson.D, bool, error) {
	fOpts := options.FindOneAndDelete()
	if len(opts.Projection) > 0 {
		fOpts.SetProjection(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		fOpts.SetSort(opts.Sort)
	}
	return decodeSingle(c.coll(t).FindOneAndDelete(ctx, filter, fOpts))
}

func (c *conn) CreateIndex(ctx context.Context, t store.Target, spec store.IndexSpec) (string, error) {
	idxOpts := options.Index()
	if spec.Name != "" {
		idxOpts.SetName(spec.Name)
	}
	if spec.Unique {
		idxOpts.SetUnique(true)
	}
	if spec.Sparse {
		idxOpts.SetSparse(true)
	}
	if spec.ExpireAfterSeconds != nil {
		idxOpts.SetExpireAfterSeconds(*spec.ExpireAfterSeconds)
	}
	return c.coll(t).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    spec.Keys,
		Options: idxOpts,
	})
}

func (c *conn) ListIndexes(ctx context.Context, t store.Target) ([]bson.D, error) {
	cursor, err := c.coll(t).Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	return drain(ctx, cursor)
}

func (c *conn) DropIndex(ctx context.Context, t store.Target, name string) error {
	return c.coll(t).Indexes().DropOne(ctx, name)
}

func (c *conn) CreateCollection(ctx context.Context, t store.Target, opts bson.D) error {
	// create options are passed through untouched, so the raw command is used
	cmd := append(bson.D{{Key: "create", Value: t.Collection}}, opts...)
	return c.client.Database(t.DB).RunCommand(ctx, cmd).Err()
}

func (c *conn) DropCollection(ctx context.Context, t store.Target) error {
	return c.coll(t).Drop(ctx)
}

func (c *conn) ListCollections(ctx context.Context, db string) ([]string, error) {
	return c.client.Database(db).ListCollectionNames(ctx, bson.D{})
}

func (c *conn) ListDatabases(ctx context.Context) ([]string, error) {
	return c.client.ListDatabaseNames(ctx, bson.D{})
}

func (c *conn) DropDatabase(ctx context.Context, db string) error {
	return c.client.Database(db).Drop(ctx)
}

func (c *conn) CreateUser(ctx context.Context, db string, user store.User) error {
	cmd := bson.D{
		{Key: "createUser", Value: user.Name},
		{Key: "pwd", Value: user.Password},
		{Key: "roles", Value: rolesArray(user.Roles)},
	}
	return c.client.Database(db).RunCommand(ctx, cmd).Err()
}

func (c *conn) UpdateUser(ctx context.Context, db string, user store.User) error {
	cmd := bson.D{{Key: "updateUser", Value: user.Name}}
	if user.Password != "" {
		cmd = append(cmd, bson.E{Key: "pwd", Value: user.Password})
	}
	if user.Roles != nil {
		cmd = append(cmd, bson.E{Key: "roles", Value: rolesArray(user.Roles)})
	}
	return c.client.Database(db).RunCommand(ctx, cmd).Err()
}

func (c *conn) DropUser(ctx context.Context, db string, name string) error {
	return c.client.Database(db).RunCommand(ctx, bson.D{{Key: "dropUser", Value: name}}).Err()
}

func (c *conn) GrantRoles(ctx context.Context, db string, name string, roles []store.Role) error {
	cmd := bson.D{
		{Key: "grantRolesToUser", Value: name},
		{Key: "roles", Value: rolesArray(roles)},
	}
	return c.client.Database(db).RunCommand(ctx, cmd).Err()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// decodeSingle decodes a single result, mapping ErrNoDocuments to found=false
func decodeSingle(res *mongo.SingleResult) (bson.D, bool, error) {
	var doc bson.D
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return doc, true, nil
}

// drain reads all documents from the cursor and closes it
func drain(ctx context.Context, cursor *mongo.Cursor) ([]bson.D, error) {
	docs := []bson.D{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func toUpdateResult(res *mongo.UpdateResult) store.UpdateResult {
	if res == nil {
		return store.UpdateResult{}
	}
	return store.UpdateResult{
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    res.UpsertedID,
	}
}

func toWriteModel(m store.WriteModel) (mongo.WriteModel, error) {
	switch m.Kind {
	case store.WriteInsertOne:
		return mongo.NewInsertOneModel().SetDocument(m.Document), nil
	case store.WriteUpdateOne:
		return mongo.NewUpdateOneModel().SetFilter(m.Filter).SetUpdate(m.Update).SetUpsert(m.Upsert), nil
	case store.WriteUpdateMany:
		return mongo.NewUpdateManyModel().SetFilter(m.Filter).SetUpdate(m.Update).SetUpsert(m.Upsert), nil
	case store.WriteReplaceOne:
		return mongo.NewReplaceOneModel().SetFilter(m.Filter).SetReplacement(m.Replacement).SetUpsert(m.Upsert), nil
	case store.WriteDeleteOne:
		return mongo.NewDeleteOneModel().SetFilter(m.Filter), nil
	case store.WriteDeleteMany:
		return mongo.NewDeleteManyModel().SetFilter(m.Filter), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown write kind %q", m.Kind))
	}
}

func rolesArray(roles []store.Role) bson.A {
	out := bson.A{}
	for _, r := range roles {
		if r.DB == "" {
			out = append(out, r.Role)
		} else {
			out = append(out, bson.D{{Key: "role", Value: r.Role}, {Key: "db", Value: r.DB}})
		}
	}
	return out
}
