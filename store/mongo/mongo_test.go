package mongo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentcore/decisioncore/ident"
	"github.com/agentcore/decisioncore/session"
	"github.com/agentcore/decisioncore/store"
)

func TestNewRejectsMissingClient(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	coll := newFakeCollection()
	st, err := newStoreWithCollection(coll, time.Second)
	require.NoError(t, err)

	sid := ident.NewSessionID()
	snap := session.Snapshot{
		Version:   1,
		SessionID: sid,
		Status:    session.StatusIdle,
		ModelConfig: session.ModelConfig{
			Fast: "fast-model",
			Slow: "slow-model",
		},
		Config:    session.DefaultConfig(),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.Save(context.Background(), snap))

	loaded, err := st.Load(context.Background(), sid)
	require.NoError(t, err)
	require.Equal(t, snap.SessionID, loaded.SessionID)
	require.Equal(t, snap.Status, loaded.Status)
	require.Equal(t, "fast-model", loaded.ModelConfig.Fast)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	coll := newFakeCollection()
	st, err := newStoreWithCollection(coll, time.Second)
	require.NoError(t, err)

	_, err = st.Load(context.Background(), ident.NewSessionID())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListReturnsAllSessionIDs(t *testing.T) {
	coll := newFakeCollection()
	st, err := newStoreWithCollection(coll, time.Second)
	require.NoError(t, err)

	a, b := ident.NewSessionID(), ident.NewSessionID()
	require.NoError(t, st.Save(context.Background(), session.Snapshot{SessionID: a, Status: session.StatusIdle}))
	require.NoError(t, st.Save(context.Background(), session.Snapshot{SessionID: b, Status: session.StatusIdle}))

	ids, err := st.List(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []ident.SessionID{a, b}, ids)
}

// fakeCollection is an in-process stand-in for a Mongo collection, grounded
// on the teacher's fakeSessionsCollection/fakeRunsCollection test doubles.
type fakeCollection struct {
	mu           sync.Mutex
	indexCreated int
	docs         map[string]snapshotDocument
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: make(map[string]snapshotDocument)}
}

func (c *fakeCollection) FindOne(_ context.Context, filter any, _ ...options.Lister[options.FindOneOptions]) singleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	sid := filter.(bson.M)["session_id"].(string)
	doc, ok := c.docs[sid]
	if !ok {
		return fakeSingleResult{err: mongodriver.ErrNoDocuments}
	}
	copyDoc := doc
	return fakeSingleResult{doc: &copyDoc}
}

func (c *fakeCollection) Find(_ context.Context, _ any, _ ...options.Lister[options.FindOptions]) (cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	docs := make([]any, 0, len(c.docs))
	for _, doc := range c.docs {
		copyDoc := doc
		docs = append(docs, &copyDoc)
	}
	return newFakeCursor(docs), nil
}

func (c *fakeCollection) UpdateOne(_ context.Context, filter, update any, _ ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sid := filter.(bson.M)["session_id"].(string)
	set := update.(bson.M)["$set"].(snapshotDocument)
	c.docs[sid] = set
	return &mongodriver.UpdateResult{MatchedCount: 1}, nil
}

func (c *fakeCollection) Indexes() indexView {
	return fakeIndexView{c: c}
}

type fakeIndexView struct {
	c *fakeCollection
}

func (v fakeIndexView) CreateOne(_ context.Context, _ mongodriver.IndexModel, _ ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	v.c.indexCreated++
	return "session_id_1", nil
}

type fakeSingleResult struct {
	doc *snapshotDocument
	err error
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	out := val.(*snapshotDocument)
	*out = *r.doc
	return nil
}

type fakeCursor struct {
	docs []any
	i    int
}

func newFakeCursor(docs []any) *fakeCursor { return &fakeCursor{docs: docs} }

func (c *fakeCursor) Close(context.Context) error { return nil }

func (c *fakeCursor) Next(context.Context) bool {
	if c.i >= len(c.docs) {
		return false
	}
	c.i++
	return true
}

func (c *fakeCursor) Decode(val any) error {
	src := c.docs[c.i-1].(*snapshotDocument)
	switch out := val.(type) {
	case *snapshotDocument:
		*out = *src
	case *struct {
		SessionID string `bson:"session_id"`
	}:
		out.SessionID = src.SessionID
	}
	return nil
}

func (c *fakeCursor) Err() error { return nil }
