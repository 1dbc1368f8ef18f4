// Package mongo implements store.Store over MongoDB, grounded on the
// teacher's features/session/mongo/clients/mongo client: a thin collection
// seam (collection/cursor/singleResult) stands between this package and
// the real driver so tests can substitute an in-process fake collection
// instead of requiring a live MongoDB server.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentcore/decisioncore/actiontree"
	"github.com/agentcore/decisioncore/exchange"
	"github.com/agentcore/decisioncore/ident"
	"github.com/agentcore/decisioncore/session"
	"github.com/agentcore/decisioncore/store"
)

const (
	defaultCollection = "decision_sessions"
	defaultOpTimeout  = 5 * time.Second
)

// Options configures the Mongo-backed store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements store.Store over a Mongo collection keyed by
// session_id, one document per session holding the full snapshot
// (exchanges and nodes embedded, not normalized into their own
// collections — a session snapshot is only ever read or written whole).
type Store struct {
	coll    collection
	timeout time.Duration
}

// New returns a Store backed by MongoDB. Ensures a unique index on
// session_id before returning.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	wrapped := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(collName)}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, wrapped); err != nil {
		return nil, err
	}
	return newStoreWithCollection(wrapped, timeout)
}

func newStoreWithCollection(coll collection, timeout time.Duration) (*Store, error) {
	if coll == nil {
		return nil, errors.New("mongo: collection is required")
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

// Load implements store.Store.
func (s *Store) Load(ctx context.Context, sessionID ident.SessionID) (session.Snapshot, error) {
	if sessionID == "" {
		return session.Snapshot{}, errors.New("mongo: session id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": string(sessionID)}
	var doc snapshotDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return session.Snapshot{}, store.ErrNotFound
		}
		return session.Snapshot{}, err
	}
	return doc.toSnapshot(), nil
}

// Save implements store.Store.
func (s *Store) Save(ctx context.Context, snap session.Snapshot) error {
	if snap.SessionID == "" {
		return errors.New("mongo: session id is required")
	}
	doc := fromSnapshot(snap)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": doc.SessionID}
	update := bson.M{"$set": doc}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]ident.SessionID, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"session_id": 1}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []ident.SessionID
	for cur.Next(ctx) {
		var doc struct {
			SessionID string `bson:"session_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, ident.SessionID(doc.SessionID))
	}
	return out, cur.Err()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func ensureIndexes(ctx context.Context, coll collection) error {
	idx := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err := coll.Indexes().CreateOne(ctx, idx)
	return err
}

// --- document shapes -------------------------------------------------

type snapshotDocument struct {
	Version       int                `bson:"version"`
	SessionID     string             `bson:"session_id"`
	Status        string             `bson:"status"`
	UserContext   userContextDoc     `bson:"user_context"`
	RepoRef       repoRefDoc         `bson:"repo_ref"`
	ProjectLabels []string           `bson:"project_labels,omitempty"`
	ModelConfig   modelConfigDoc     `bson:"model_config"`
	Config        session.Config     `bson:"config"`
	Exchanges     []exchangeDocument `bson:"exchanges,omitempty"`
	Nodes         []nodeDocument     `bson:"nodes,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

type userContextDoc struct {
	OpenFiles     []string         `bson:"open_files,omitempty"`
	VisibleRanges map[string][2]int `bson:"visible_ranges,omitempty"`
	Shell         string           `bson:"shell,omitempty"`
	WorkspaceRoot string           `bson:"workspace_root,omitempty"`
}

type repoRefDoc struct {
	Name string `bson:"name"`
	Root string `bson:"root"`
}

type modelConfigDoc struct {
	Fast string `bson:"fast"`
	Slow string `bson:"slow"`
}

type exchangeDocument struct {
	ID           string    `bson:"id"`
	Role         string    `bson:"role"`
	Text         string    `bson:"text,omitempty"`
	ToolName     string    `bson:"tool_name,omitempty"`
	ActionNodeID string    `bson:"action_node_id,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	Superseded   bool      `bson:"superseded"`
	Terminal     bool      `bson:"terminal"`
	Reminder     string    `bson:"reminder,omitempty"`
}

type nodeDocument struct {
	ID          string         `bson:"id"`
	ParentID    string         `bson:"parent_id,omitempty"`
	ChildIDs    []string       `bson:"child_ids,omitempty"`
	Tool        string         `bson:"tool,omitempty"`
	Arguments   map[string]any `bson:"arguments,omitempty"`
	Observation observationDoc `bson:"observation"`
	Reward      float64        `bson:"reward"`
	RewardSet   bool           `bson:"reward_set"`
	Visits      int            `bson:"visits"`
	State       string         `bson:"state"`
	Depth       int            `bson:"depth"`
	CreatedAt   time.Time      `bson:"created_at"`
}

type observationDoc struct {
	Text string `bson:"text,omitempty"`
	Err  string `bson:"err,omitempty"`
}

func fromSnapshot(snap session.Snapshot) snapshotDocument {
	exchanges := make([]exchangeDocument, 0, len(snap.Exchanges))
	for _, e := range snap.Exchanges {
		exchanges = append(exchanges, exchangeDocument{
			ID:           string(e.ID),
			Role:         string(e.Role),
			Text:         e.Text,
			ToolName:     e.ToolName,
			ActionNodeID: string(e.ActionNodeID),
			CreatedAt:    e.CreatedAt,
			Superseded:   e.Superseded,
			Terminal:     e.Terminal,
			Reminder:     e.Reminder,
		})
	}
	nodes := make([]nodeDocument, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n == nil {
			continue
		}
		childIDs := make([]string, 0, len(n.ChildIDs))
		for _, c := range n.ChildIDs {
			childIDs = append(childIDs, string(c))
		}
		var errText string
		if n.Observation.Err != nil {
			errText = n.Observation.Err.Error()
		}
		nodes = append(nodes, nodeDocument{
			ID:       string(n.ID),
			ParentID: string(n.ParentID),
			ChildIDs: childIDs,
			Tool:      n.Action.Tool,
			Arguments: n.Action.Arguments,
			Observation: observationDoc{
				Text: n.Observation.Text,
				Err:  errText,
			},
			Reward:    n.Reward,
			RewardSet: n.RewardSet,
			Visits:    n.Visits,
			State:     string(n.State),
			Depth:     n.Depth,
			CreatedAt: n.CreatedAt,
		})
	}
	return snapshotDocument{
		Version:       snap.Version,
		SessionID:     string(snap.SessionID),
		Status:        string(snap.Status),
		UserContext: userContextDoc{
			OpenFiles:     snap.UserContext.OpenFiles,
			VisibleRanges: snap.UserContext.VisibleRanges,
			Shell:         snap.UserContext.Shell,
			WorkspaceRoot: snap.UserContext.WorkspaceRoot,
		},
		RepoRef: repoRefDoc{Name: snap.RepoRef.Name, Root: snap.RepoRef.Root},
		ProjectLabels: snap.ProjectLabels,
		ModelConfig:   modelConfigDoc{Fast: snap.ModelConfig.Fast, Slow: snap.ModelConfig.Slow},
		Config:        snap.Config,
		Exchanges:     exchanges,
		Nodes:         nodes,
		CreatedAt:     snap.CreatedAt,
		UpdatedAt:     snap.UpdatedAt,
	}
}

func (doc snapshotDocument) toSnapshot() session.Snapshot {
	exchanges := make([]exchange.Exchange, 0, len(doc.Exchanges))
	for _, e := range doc.Exchanges {
		exchanges = append(exchanges, exchange.Exchange{
			ID:           ident.ExchangeID(e.ID),
			Role:         exchange.Role(e.Role),
			Text:         e.Text,
			ToolName:     e.ToolName,
			ActionNodeID: ident.NodeID(e.ActionNodeID),
			CreatedAt:    e.CreatedAt,
			Superseded:   e.Superseded,
			Terminal:     e.Terminal,
			Reminder:     e.Reminder,
		})
	}
	nodes := make([]*actiontree.Node, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		childIDs := make([]ident.NodeID, 0, len(n.ChildIDs))
		for _, c := range n.ChildIDs {
			childIDs = append(childIDs, ident.NodeID(c))
		}
		var obsErr error
		if n.Observation.Err != "" {
			obsErr = errors.New(n.Observation.Err)
		}
		nodes = append(nodes, &actiontree.Node{
			ID:       ident.NodeID(n.ID),
			ParentID: ident.NodeID(n.ParentID),
			ChildIDs: childIDs,
			Action:   actiontree.Action{Tool: n.Tool, Arguments: n.Arguments},
			Observation: actiontree.Observation{
				Text: n.Observation.Text,
				Err:  obsErr,
			},
			Reward:    n.Reward,
			RewardSet: n.RewardSet,
			Visits:    n.Visits,
			State:     actiontree.State(n.State),
			Depth:     n.Depth,
			CreatedAt: n.CreatedAt,
		})
	}
	return session.Snapshot{
		Version:       doc.Version,
		SessionID:     ident.SessionID(doc.SessionID),
		Status:        session.Status(doc.Status),
		UserContext: session.UserContext{
			OpenFiles:     doc.UserContext.OpenFiles,
			VisibleRanges: doc.UserContext.VisibleRanges,
			Shell:         doc.UserContext.Shell,
			WorkspaceRoot: doc.UserContext.WorkspaceRoot,
		},
		RepoRef: session.RepoRef{Name: doc.RepoRef.Name, Root: doc.RepoRef.Root},
		ProjectLabels: doc.ProjectLabels,
		ModelConfig:   session.ModelConfig{Fast: doc.ModelConfig.Fast, Slow: doc.ModelConfig.Slow},
		Config:        doc.Config,
		Exchanges:     exchanges,
		Nodes:         nodes,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

// --- collection seam, grounded on the teacher's collection/cursor
// indirection (features/session/mongo/clients/mongo/client.go) ---------

type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	Close(ctx context.Context) error
	Decode(val any) error
	Err() error
	Next(ctx context.Context) bool
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error { return r.res.Decode(val) }

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
func (c mongoCursor) Decode(val any) error            { return c.cur.Decode(val) }
func (c mongoCursor) Err() error                       { return c.cur.Err() }
func (c mongoCursor) Next(ctx context.Context) bool    { return c.cur.Next(ctx) }

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
