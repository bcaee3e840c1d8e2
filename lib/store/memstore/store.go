package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Scheme is the address scheme served by this package (memory://<name>)
const Scheme = "memory"

// instances holds all named in-process stores. Connections to the same name share data.
var instances = xsync.NewMapOf[string, *instance]()

// NewConnector returns a connector for memory://<name> addresses.
// An empty name refers to the instance "default".
func NewConnector() store.IConnector {
	return store.ConnectorFunc(func(ctx context.Context, address string) (store.IConn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, err := parseAddress(address)
		if err != nil {
			return nil, err
		}
		return Open(name), nil
	})
}

// Open returns a new handle to the named instance, creating the instance if needed.
func Open(name string) store.IConn {
	inst, _ := instances.LoadOrCompute(name, func() *instance {
		return &instance{dbs: make(map[string]*database)}
	})
	return &conn{inst: inst}
}

// Reset discards all data of the named instance. Open handles keep the old data.
func Reset(name string) {
	instances.Delete(name)
}

func parseAddress(address string) (string, error) {
	prefix := Scheme + "://"
	if !strings.HasPrefix(strings.ToLower(address), prefix) {
		return "", store.NewError(store.RetCInvalidOperation, fmt.Sprintf("not a %s address: %q", Scheme, address))
	}
	name := address[len(prefix):]
	if i := strings.IndexAny(name, "/?"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		name = "default"
	}
	return name, nil
}

// --------------------------------------------------------------------------
// Data Model
// --------------------------------------------------------------------------

type instance struct {
	mu  sync.RWMutex
	dbs map[string]*database
}

type database struct {
	collections map[string]*collection
	users       map[string]store.User
}

type collection struct {
	docs    []bson.D
	indexes []bson.D
}

func newCollection() *collection {
	return &collection{
		indexes: []bson.D{{
			{Key: "v", Value: int32(2)},
			{Key: "key", Value: bson.D{{Key: "_id", Value: int32(1)}}},
			{Key: "name", Value: "_id_"},
		}},
	}
}

// db returns the named database. Caller must hold the lock (write lock if create is set).
func (i *instance) db(name string, create bool) *database {
	d, ok := i.dbs[name]
	if !ok && create {
		d = &database{collections: map[string]*collection{}, users: map[string]store.User{}}
		i.dbs[name] = d
	}
	return d
}

// collection returns the target collection. Caller must hold the lock (write lock if create is set).
func (i *instance) collection(t store.Target, create bool) *collection {
	d := i.db(t.DB, create)
	if d == nil {
		return nil
	}
	c, ok := d.collections[t.Collection]
	if !ok && create {
		c = newCollection()
		d.collections[t.Collection] = c
	}
	return c
}

// dropEmpty removes a database without collections and users
func (i *instance) dropEmpty(name string) {
	if d, ok := i.dbs[name]; ok && len(d.collections) == 0 && len(d.users) == 0 {
		delete(i.dbs, name)
	}
}

// --------------------------------------------------------------------------
// Write Primitives (caller holds the write lock)
// --------------------------------------------------------------------------

func (i *instance) insert(t store.Target, doc bson.D) (any, error) {
	doc, id := ensureID(copyDoc(doc))
	coll := i.collection(t, true)
	for _, existing := range coll.docs {
		if eid, _ := get(existing, "_id"); valuesEqual(eid, id) {
			return nil, store.NewError(store.RetCAlreadyExists, fmt.Sprintf("duplicate key: _id %v in %s", id, t))
		}
	}
	coll.docs = append(coll.docs, doc)
	return id, nil
}

func (i *instance) update(t store.Target, filter, update bson.D, upsert, multi bool) (store.UpdateResult, error) {
	res := store.UpdateResult{}
	set, err := setFields(update)
	if err != nil {
		return res, err
	}
	if err := checkFilter(filter); err != nil {
		return res, err
	}

	if coll := i.collection(t, false); coll != nil {
		for idx, d := range coll.docs {
			if !matches(d, filter) {
				continue
			}
			res.MatchedCount++
			nd, err := applySet(d, set)
			if err != nil {
				return res, err
			}
			if !valuesEqual(nd, d) {
				coll.docs[idx] = nd
				res.ModifiedCount++
			}
			if !multi {
				break
			}
		}
	}

	if res.MatchedCount == 0 && upsert {
		nd, err := applySet(copyDoc(filter), set)
		if err != nil {
			return res, err
		}
		id, err := i.insert(t, nd)
		if err != nil {
			return res, err
		}
		res.UpsertedCount, res.UpsertedID = 1, id
	}
	return res, nil
}

func (i *instance) replace(t store.Target, filter, replacement bson.D, upsert bool) (store.UpdateResult, error) {
	res := store.UpdateResult{}
	if err := checkFilter(filter); err != nil {
		return res, err
	}
	for _, e := range replacement {
		if strings.HasPrefix(e.Key, "$") {
			return res, invalid("replacement document must not contain update operators")
		}
	}
	if coll := i.collection(t, false); coll != nil {
		for idx, d := range coll.docs {
			if !matches(d, filter) {
				continue
			}
			res.MatchedCount++
			id, _ := get(d, "_id")
			if rid, ok := get(replacement, "_id"); ok && !valuesEqual(rid, id) {
				return res, invalid("the _id field cannot be changed by a replacement")
			}
			nd := append(bson.D{{Key: "_id", Value: id}}, without(copyDoc(replacement), "_id")...)
			if !valuesEqual(nd, d) {
				coll.docs[idx] = nd
				res.ModifiedCount++
			}
			return res, nil
		}
	}
	if upsert {
		nd := copyDoc(replacement)
		if id, ok := get(filter, "_id"); ok {
			nd = append(bson.D{{Key: "_id", Value: copyValue(id)}}, without(nd, "_id")...)
		}
		id, err := i.insert(t, nd)
		if err != nil {
			return res, err
		}
		res.UpsertedCount, res.UpsertedID = 1, id
	}
	return res, nil
}

func (i *instance) delete(t store.Target, filter bson.D, multi bool) (int64, error) {
	if err := checkFilter(filter); err != nil {
		return 0, err
	}
	coll := i.collection(t, false)
	if coll == nil {
		return 0, nil
	}
	var deleted int64
	kept := coll.docs[:0:0]
	for _, d := range coll.docs {
		if (multi || deleted == 0) && matches(d, filter) {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	coll.docs = kept
	return deleted, nil
}

// find returns copies of the matching documents in insertion order. Caller must hold at least the read lock.
func (i *instance) find(t store.Target, filter bson.D, opts store.FindOptions) ([]bson.D, error) {
	if err := checkFilter(filter); err != nil {
		return nil, err
	}
	if len(opts.Sort) > 0 {
		return nil, unsupported("sort")
	}
	if len(opts.Projection) > 0 {
		return nil, unsupported("projection")
	}
	coll := i.collection(t, false)
	if coll == nil {
		return []bson.D{}, nil
	}
	out := []bson.D{}
	skip := opts.Skip
	for _, d := range coll.docs {
		if !matches(d, filter) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, copyDoc(d))
		if opts.Limit > 0 && int64(len(out)) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Connection Handle
// --------------------------------------------------------------------------

type conn struct {
	inst   *instance
	closed atomic.Bool
}

// check fails if the handle was closed or the context is done
func (c *conn) check(ctx context.Context) error {
	if c.closed.Load() {
		return store.NewError(store.RetCInvalidOperation, "connection is closed")
	}
	return ctx.Err()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IConn)
// --------------------------------------------------------------------------

func (c *conn) Ping(ctx context.Context) error {
	return c.check(ctx)
}

func (c *conn) Close(_ context.Context) error {
	c.closed.Store(true)
	return nil
}

func (c *conn) InsertOne(ctx context.Context, t store.Target, doc bson.D) (any, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	return c.inst.insert(t, doc)
}

func (c *conn) InsertMany(ctx context.Context, t store.Target, docs []bson.D, ordered bool) (store.InsertManyResult, error) {
	res := store.InsertManyResult{InsertedIDs: []any{}}
	if err := c.check(ctx); err != nil {
		return res, err
	}
	if len(docs) == 0 {
		return res, invalid("must provide at least one document")
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()

	var firstErr error
	for _, d := range docs {
		id, err := c.inst.insert(t, d)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if ordered {
				break
			}
			continue
		}
		res.InsertedIDs = append(res.InsertedIDs, id)
	}
	return res, firstErr
}

func (c *conn) UpdateOne(ctx context.Context, t store.Target, filter, update bson.D, upsert bool) (store.UpdateResult, error) {
	if err := c.check(ctx); err != nil {
		return store.UpdateResult{}, err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	return c.inst.update(t, filter, update, upsert, false)
}

func (c *conn) UpdateMany(ctx context.Context, t store.Target, filter, update bson.D, upsert bool) (store.UpdateResult, error) {
	if err := c.check(ctx); err != nil {
		return store.UpdateResult{}, err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	return c.inst.update(t, filter, update, upsert, true)
}

func (c *conn) DeleteOne(ctx context.Context, t store.Target, filter bson.D) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	return c.inst.delete(t, filter, false)
}

func (c *conn) DeleteMany(ctx context.Context, t store.Target, filter bson.D) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	return c.inst.delete(t, filter, true)
}

func (c *conn) FindOne(ctx context.Context, t store.Target, filter bson.D, opts store.FindOptions) (bson.D, bool, error) {
	opts.Limit = 1
	docs, err := c.Find(ctx, t, filter, opts)
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

func (c *conn) Find(ctx context.Context, t store.Target, filter bson.D, opts store.FindOptions) ([]bson.D, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.inst.mu.RLock()
	defer c.inst.mu.RUnlock()
	return c.inst.find(t, filter, opts)
}

func (c *conn) CountDocuments(ctx context.Context, t store.Target, filter bson.D) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	c.inst.mu.RLock()
	defer c.inst.mu.RUnlock()
	docs, err := c.inst.find(t, filter, store.FindOptions{})
	return int64(len(docs)), err
}

func (c *conn) Distinct(ctx context.Context, t store.Target, field string, filter bson.D) ([]any, error) {
	if strings.Contains(field, ".") {
		return nil, unsupported("distinct on the dotted path %q", field)
	}
	docs, err := c.Find(ctx, t, filter, store.FindOptions{})
	if err != nil {
		return nil, err
	}
	values := []any{}
	for _, d := range docs {
		v, found := get(d, field)
		if !found {
			continue
		}
		if arr, ok := v.(bson.A); ok {
			for _, x := range arr {
				values = appendDistinct(values, x)
			}
			continue
		}
		values = appendDistinct(values, v)
	}
	return values, nil
}

func (c *conn) Aggregate(ctx context.Context, _ store.Target, _ []bson.D) ([]bson.D, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	return nil, unsupported("aggregation pipelines")
}

func (c *conn) BulkWrite(ctx context.Context, t store.Target, models []store.WriteModel, ordered bool) (store.BulkWriteResult, error) {
	res := store.BulkWriteResult{}
	if err := c.check(ctx); err != nil {
		return res, err
	}
	if len(models) == 0 {
		return res, invalid("must provide at least one write operation")
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()

	var firstErr error
	for idx, m := range models {
		err := c.applyWrite(t, m, &res)
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("write %d: %w", idx, err)
		}
		if ordered {
			break
		}
	}
	return res, firstErr
}

func (c *conn) applyWrite(t store.Target, m store.WriteModel, res *store.BulkWriteResult) error {
	var (
		upd store.UpdateResult
		n   int64
		err error
	)
	switch m.Kind {
	case store.WriteInsertOne:
		if _, err = c.inst.insert(t, m.Document); err == nil {
			res.InsertedCount++
		}
		return err
	case store.WriteUpdateOne, store.WriteUpdateMany:
		upd, err = c.inst.update(t, m.Filter, m.Update, m.Upsert, m.Kind == store.WriteUpdateMany)
	case store.WriteReplaceOne:
		upd, err = c.inst.replace(t, m.Filter, m.Replacement, m.Upsert)
	case store.WriteDeleteOne, store.WriteDeleteMany:
		n, err = c.inst.delete(t, m.Filter, m.Kind == store.WriteDeleteMany)
		res.DeletedCount += n
		return err
	default:
		return invalid("unknown write kind %q", m.Kind)
	}
	res.MatchedCount += upd.MatchedCount
	res.ModifiedCount += upd.ModifiedCount
	res.UpsertedCount += upd.UpsertedCount
	return err
}

func (c *conn) FindOneAndUpdate(ctx context.Context, t store.Target, filter, update bson.D, opts store.FindAndModifyOptions) (bson.D, bool, error) {
	if err := c.check(ctx); err != nil {
		return nil, false, err
	}
	set, err := setFields(update)
	if err != nil {
		return nil, false, err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()

	idx, err := c.firstMatch(t, filter, opts)
	if err != nil {
		return nil, false, err
	}
	if idx < 0 {
		if !opts.Upsert {
			return nil, false, nil
		}
		nd, err := applySet(copyDoc(filter), set)
		if err != nil {
			return nil, false, err
		}
		nd, _ = ensureID(nd)
		if _, err := c.inst.insert(t, nd); err != nil {
			return nil, false, err
		}
		if !opts.ReturnNew {
			return nil, false, nil
		}
		return copyDoc(nd), true, nil
	}

	coll := c.inst.collection(t, false)
	before := coll.docs[idx]
	after, err := applySet(before, set)
	if err != nil {
		return nil, false, err
	}
	coll.docs[idx] = after

	if opts.ReturnNew {
		return copyDoc(after), true, nil
	}
	return copyDoc(before), true, nil
}

func (c *conn) FindOneAndDelete(ctx context.Context, t store.Target, filter bson.D, opts store.FindAndModifyOptions) (bson.D, bool, error) {
	if err := c.check(ctx); err != nil {
		return nil, false, err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()

	idx, err := c.firstMatch(t, filter, opts)
	if err != nil || idx < 0 {
		return nil, false, err
	}
	coll := c.inst.collection(t, false)
	doc := coll.docs[idx]
	coll.docs = append(coll.docs[:idx:idx], coll.docs[idx+1:]...)
	return doc, true, nil
}

// firstMatch returns the position of the first document matching filter, -1 if none.
func (c *conn) firstMatch(t store.Target, filter bson.D, opts store.FindAndModifyOptions) (int, error) {
	if err := checkFilter(filter); err != nil {
		return -1, err
	}
	if len(opts.Sort) > 0 {
		return -1, unsupported("sort")
	}
	if len(opts.Projection) > 0 {
		return -1, unsupported("projection")
	}
	if coll := c.inst.collection(t, false); coll != nil {
		for idx, d := range coll.docs {
			if matches(d, filter) {
				return idx, nil
			}
		}
	}
	return -1, nil
}

func (c *conn) CreateIndex(ctx context.Context, t store.Target, spec store.IndexSpec) (string, error) {
	if err := c.check(ctx); err != nil {
		return "", err
	}
	if len(spec.Keys) == 0 {
		return "", invalid("index keys must not be empty")
	}
	name := spec.Name
	if name == "" {
		parts := make([]string, 0, len(spec.Keys))
		for _, k := range spec.Keys {
			parts = append(parts, fmt.Sprintf("%s_%v", k.Key, k.Value))
		}
		name = strings.Join(parts, "_")
	}

	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	coll := c.inst.collection(t, true)
	for _, idx := range coll.indexes {
		existing, _ := get(idx, "name")
		if existing != name {
			continue
		}
		keys, _ := get(idx, "key")
		if valuesEqual(keys, spec.Keys) {
			return name, nil
		}
		return "", store.NewError(store.RetCAlreadyExists, fmt.Sprintf("an index named %q with different keys already exists", name))
	}

	idx := bson.D{
		{Key: "v", Value: int32(2)},
		{Key: "key", Value: copyDoc(spec.Keys)},
		{Key: "name", Value: name},
	}
	if spec.Unique {
		idx = append(idx, bson.E{Key: "unique", Value: true})
	}
	if spec.Sparse {
		idx = append(idx, bson.E{Key: "sparse", Value: true})
	}
	if spec.ExpireAfterSeconds != nil {
		idx = append(idx, bson.E{Key: "expireAfterSeconds", Value: *spec.ExpireAfterSeconds})
	}
	coll.indexes = append(coll.indexes, idx)
	return name, nil
}

func (c *conn) ListIndexes(ctx context.Context, t store.Target) ([]bson.D, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.inst.mu.RLock()
	defer c.inst.mu.RUnlock()
	coll := c.inst.collection(t, false)
	if coll == nil {
		return nil, store.NewError(store.RetCNotFound, fmt.Sprintf("ns does not exist: %s", t))
	}
	out := make([]bson.D, len(coll.indexes))
	for i, idx := range coll.indexes {
		out[i] = copyDoc(idx)
	}
	return out, nil
}

func (c *conn) DropIndex(ctx context.Context, t store.Target, name string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if name == "_id_" {
		return invalid("cannot drop _id index")
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	coll := c.inst.collection(t, false)
	if coll == nil {
		return store.NewError(store.RetCNotFound, fmt.Sprintf("ns not found: %s", t))
	}
	if name == "*" {
		coll.indexes = coll.indexes[:1]
		return nil
	}
	for i, idx := range coll.indexes {
		if n, _ := get(idx, "name"); n == name {
			coll.indexes = append(coll.indexes[:i:i], coll.indexes[i+1:]...)
			return nil
		}
	}
	return store.NewError(store.RetCNotFound, fmt.Sprintf("index not found with name [%s]", name))
}

func (c *conn) CreateCollection(ctx context.Context, t store.Target, _ bson.D) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	if c.inst.collection(t, false) != nil {
		return store.NewError(store.RetCAlreadyExists, fmt.Sprintf("collection already exists. NS: %s", t))
	}
	c.inst.collection(t, true)
	return nil
}

func (c *conn) DropCollection(ctx context.Context, t store.Target) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	if d := c.inst.db(t.DB, false); d != nil {
		delete(d.collections, t.Collection)
		c.inst.dropEmpty(t.DB)
	}
	return nil
}

func (c *conn) ListCollections(ctx context.Context, db string) ([]string, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.inst.mu.RLock()
	defer c.inst.mu.RUnlock()
	names := []string{}
	if d := c.inst.db(db, false); d != nil {
		for name := range d.collections {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (c *conn) ListDatabases(ctx context.Context) ([]string, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.inst.mu.RLock()
	defer c.inst.mu.RUnlock()
	names := []string{}
	for name, d := range c.inst.dbs {
		if len(d.collections) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (c *conn) DropDatabase(ctx context.Context, db string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	delete(c.inst.dbs, db)
	return nil
}

func (c *conn) CreateUser(ctx context.Context, db string, user store.User) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	d := c.inst.db(db, true)
	if _, exists := d.users[user.Name]; exists {
		return store.NewError(store.RetCAlreadyExists, fmt.Sprintf("user %q already exists in %s", user.Name, db))
	}
	user.Roles = append([]store.Role{}, user.Roles...)
	d.users[user.Name] = user
	return nil
}

func (c *conn) UpdateUser(ctx context.Context, db string, user store.User) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	existing, err := c.user(db, user.Name)
	if err != nil {
		return err
	}
	if user.Password != "" {
		existing.Password = user.Password
	}
	if user.Roles != nil {
		existing.Roles = append([]store.Role{}, user.Roles...)
	}
	c.inst.dbs[db].users[user.Name] = existing
	return nil
}

func (c *conn) DropUser(ctx context.Context, db string, name string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	if _, err := c.user(db, name); err != nil {
		return err
	}
	delete(c.inst.dbs[db].users, name)
	c.inst.dropEmpty(db)
	return nil
}

func (c *conn) GrantRoles(ctx context.Context, db string, name string, roles []store.Role) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.inst.mu.Lock()
	defer c.inst.mu.Unlock()
	existing, err := c.user(db, name)
	if err != nil {
		return err
	}
	merged := append([]store.Role{}, existing.Roles...)
	for _, r := range roles {
		dup := false
		for _, have := range merged {
			if have == r {
				dup = true
				break
			}
		}
		if !dup {
			merged = append(merged, r)
		}
	}
	existing.Roles = merged
	c.inst.dbs[db].users[name] = existing
	return nil
}

// user looks up a user. Caller must hold the lock.
func (c *conn) user(db, name string) (store.User, error) {
	if d := c.inst.db(db, false); d != nil {
		if u, ok := d.users[name]; ok {
			return u, nil
		}
	}
	return store.User{}, store.NewError(store.RetCNotFound, fmt.Sprintf("could not find user %q for db %q", name, db))
}

// Users returns the users of a database. It is not part of store.IConn and
// exists for inspection in tests.
func Users(handle store.IConn, db string) []store.User {
	c, ok := handle.(*conn)
	if !ok {
		return nil
	}
	c.inst.mu.RLock()
	defer c.inst.mu.RUnlock()
	d := c.inst.db(db, false)
	if d == nil {
		return nil
	}
	out := make([]store.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// checkFilter accepts equality conditions on top level fields only
func checkFilter(filter bson.D) error {
	for _, e := range filter {
		if strings.HasPrefix(e.Key, "$") || strings.Contains(e.Key, ".") {
			return unsupported("filter on %q", e.Key)
		}
		if d, ok := e.Value.(bson.D); ok && len(d) > 0 && strings.HasPrefix(d[0].Key, "$") {
			return unsupported("filter operator %s on %q", d[0].Key, e.Key)
		}
	}
	return nil
}

func matches(doc, filter bson.D) bool {
	for _, e := range filter {
		v, found := get(doc, e.Key)
		if !found || !valuesEqual(v, e.Value) {
			return false
		}
	}
	return true
}

// setFields returns the fields of a $set-only update document
func setFields(update bson.D) (bson.D, error) {
	if len(update) == 0 {
		return nil, invalid("update document must not be empty")
	}
	var set bson.D
	for _, e := range update {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, invalid("update document requires atomic operators")
		}
		if e.Key != "$set" {
			return nil, unsupported("update operator %s", e.Key)
		}
		fields, ok := e.Value.(bson.D)
		if !ok {
			return nil, invalid("$set requires a document")
		}
		for _, f := range fields {
			if strings.Contains(f.Key, ".") {
				return nil, unsupported("$set on the dotted path %q", f.Key)
			}
		}
		set = append(set, fields...)
	}
	return set, nil
}

// applySet returns a copy of doc with the fields of set replaced or appended
func applySet(doc, set bson.D) (bson.D, error) {
	out := copyDoc(doc)
	for _, f := range set {
		if f.Key == "_id" {
			if id, ok := get(out, "_id"); ok && !valuesEqual(id, f.Value) {
				return nil, invalid("performing an update on the path '_id' would modify the immutable field '_id'")
			}
		}
		replaced := false
		for i := range out {
			if out[i].Key == f.Key {
				out[i].Value = copyValue(f.Value)
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, bson.E{Key: f.Key, Value: copyValue(f.Value)})
		}
	}
	return out, nil
}

// ensureID puts an _id at the front of doc, generating an ObjectID if it is missing
func ensureID(doc bson.D) (bson.D, any) {
	if id, ok := get(doc, "_id"); ok {
		return doc, id
	}
	id := bson.NewObjectID()
	return append(bson.D{{Key: "_id", Value: id}}, doc...), id
}

func get(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func without(doc bson.D, key string) bson.D {
	out := doc[:0:0]
	for _, e := range doc {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

func appendDistinct(values []any, v any) []any {
	for _, have := range values {
		if valuesEqual(have, v) {
			return values
		}
	}
	return append(values, copyValue(v))
}

func copyDoc(doc bson.D) bson.D {
	if doc == nil {
		return nil
	}
	out := make(bson.D, len(doc))
	for i, e := range doc {
		out[i] = bson.E{Key: e.Key, Value: copyValue(e.Value)}
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case bson.D:
		return copyDoc(x)
	case bson.A:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	case []byte:
		return append([]byte(nil), x...)
	default:
		return v
	}
}

// valuesEqual compares numbers by value regardless of their type, everything else structurally
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func unsupported(format string, args ...any) error {
	return store.NewError(store.RetCUnsupportedOperation, "not supported by the memory store: "+fmt.Sprintf(format, args...))
}

func invalid(format string, args ...any) error {
	return store.NewError(store.RetCInvalidOperation, fmt.Sprintf(format, args...))
}
