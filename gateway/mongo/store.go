// Package mongo provides the MongoDB implementation of api.Gateway. Agent
// documents live in one collection keyed by the agent id, pipeline outputs
// in another, and the due-task query is backed by a compound index on
// (status, is_active, next_run).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/casualjim/rookery/api"
	"github.com/casualjim/rookery/pkg/timex"
	"github.com/goccy/go-json"
)

const (
	defaultAgentsCollection  = "agents"
	defaultOutputsCollection = "agent_outputs"
	defaultOpTimeout         = 5 * time.Second
)

// Options configures the Mongo gateway.
type Options struct {
	Client   *mongodriver.Client
	Database string
	// Agents and Outputs override the default collection names.
	Agents  string
	Outputs string
	Timeout time.Duration
}

// Store is the MongoDB-backed api.Gateway.
type Store struct {
	client  *mongodriver.Client
	agents  *mongodriver.Collection
	outputs *mongodriver.Collection
	timeout time.Duration
}

var _ api.Gateway = (*Store)(nil)

// New validates the options, bootstraps the indexes and returns the gateway.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	agents := opts.Agents
	if agents == "" {
		agents = defaultAgentsCollection
	}
	outputs := opts.Outputs
	if outputs == "" {
		outputs = defaultOutputsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		client:  opts.Client,
		agents:  db.Collection(agents),
		outputs: db.Collection(outputs),
		timeout: timeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("mongodb ensure indexes: %w", err)
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.agents.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "is_active", Value: 1},
			{Key: "next_run", Value: 1},
		},
	})
	if err != nil {
		return err
	}
	_, err = s.outputs.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

// Ping verifies connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// agentDocument is the persisted shape of an agent record.
type agentDocument struct {
	ID        string    `bson:"_id"`
	Config    bson.M    `bson:"config"`
	OwnerID   string    `bson:"owner_id,omitempty"`
	Status    string    `bson:"status"`
	NextRun   time.Time `bson:"next_run,omitempty"`
	IsActive  bool      `bson:"is_active"`
	UpdatedAt time.Time `bson:"updated_at,omitempty"`
}

type outputDocument struct {
	AgentID   string    `bson:"agent_id"`
	Key       string    `bson:"key"`
	Value     any       `bson:"value"`
	ToolID    string    `bson:"tool_id"`
	Phase     string    `bson:"phase"`
	CreatedAt time.Time `bson:"created_at"`
}

// Get returns the record stored under id, or api.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (api.Record, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc agentDocument
	if err := s.agents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return api.Record{}, fmt.Errorf("agent %s: %w", id, api.ErrNotFound)
		}
		return api.Record{}, fmt.Errorf("mongodb get agent %s: %w", id, err)
	}
	return recordFromDocument(doc)
}

// QueryDue returns up to limit active, scheduled agents due at or before
// now, ascending by next_run.
func (s *Store) QueryDue(ctx context.Context, limit int) ([]api.Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{
		"next_run":  bson.M{"$lte": time.Now().UTC()},
		"status":    api.StatusScheduled.String(),
		"is_active": true,
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: "next_run", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.agents.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb query due agents: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []agentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb query due agents decode: %w", err)
	}

	records := make([]api.Record, 0, len(docs))
	for _, doc := range docs {
		record, err := recordFromDocument(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Update applies the given fields to an agent document and reports whether
// a document matched.
func (s *Store) Update(ctx context.Context, id string, fields map[string]any) (bool, error) {
	if len(fields) == 0 {
		return false, fmt.Errorf("update fields cannot be empty")
	}
	set, err := updateFields(fields)
	if err != nil {
		return false, err
	}
	set["updated_at"] = time.Now().UTC()

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.agents.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("mongodb update agent %s: %w", id, err)
	}
	return result.MatchedCount > 0, nil
}

// UpdateStatus transitions the agent's scheduling status, optionally
// applying extra fields in the same write.
func (s *Store) UpdateStatus(ctx context.Context, id string, status api.Status, extra map[string]any) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	fields := map[string]any{"status": status}
	for k, v := range extra {
		fields[k] = v
	}
	if _, err := s.Update(ctx, id, fields); err != nil {
		return err
	}
	return nil
}

// Insert creates a new agent document owned by ownerID, active and
// scheduled. Duplicate ids are an error.
func (s *Store) Insert(ctx context.Context, id string, cfg api.Config, ownerID string) error {
	configDoc, err := configToDocument(cfg)
	if err != nil {
		return fmt.Errorf("encode config for agent %s: %w", id, err)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err = s.agents.InsertOne(ctx, agentDocument{
		ID:        id,
		Config:    configDoc,
		OwnerID:   ownerID,
		Status:    api.StatusScheduled.String(),
		IsActive:  true,
		UpdatedAt: time.Now().UTC(),
	})
	if mongodriver.IsDuplicateKeyError(err) {
		return fmt.Errorf("agent %s already exists", id)
	}
	if err != nil {
		return fmt.Errorf("mongodb insert agent %s: %w", id, err)
	}
	return nil
}

// DeleteHierarchy removes every transitive descendant of id via owner_id
// edges, together with their outputs. The root document is preserved; the
// returned list carries the root id first.
func (s *Store) DeleteHierarchy(ctx context.Context, id string) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	affected := []string{id}
	frontier := []string{id}
	for len(frontier) > 0 {
		cursor, err := s.agents.Find(ctx,
			bson.M{"owner_id": bson.M{"$in": frontier}},
			options.Find().SetProjection(bson.M{"_id": 1}))
		if err != nil {
			return nil, fmt.Errorf("mongodb find descendants of %s: %w", id, err)
		}
		var docs []struct {
			ID string `bson:"_id"`
		}
		if err := cursor.All(ctx, &docs); err != nil {
			return nil, fmt.Errorf("mongodb decode descendants of %s: %w", id, err)
		}
		frontier = frontier[:0]
		for _, doc := range docs {
			frontier = append(frontier, doc.ID)
		}
		affected = append(affected, frontier...)
	}

	descendants := affected[1:]
	if len(descendants) == 0 {
		return affected, nil
	}
	filter := bson.M{"_id": bson.M{"$in": descendants}}
	if _, err := s.agents.DeleteMany(ctx, filter); err != nil {
		return nil, fmt.Errorf("mongodb delete hierarchy of %s: %w", id, err)
	}
	if _, err := s.outputs.DeleteMany(ctx, bson.M{"agent_id": bson.M{"$in": descendants}}); err != nil {
		return nil, fmt.Errorf("mongodb delete hierarchy outputs of %s: %w", id, err)
	}
	return affected, nil
}

// SaveOutputs persists the batch and returns the number saved.
func (s *Store) SaveOutputs(ctx context.Context, id string, outputs []api.Output) (int, error) {
	if len(outputs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	docs := make([]any, len(outputs))
	for i, out := range outputs {
		docs[i] = outputDocument{
			AgentID:   id,
			Key:       out.Key,
			Value:     out.Value,
			ToolID:    out.ToolID,
			Phase:     out.Phase.String(),
			CreatedAt: now,
		}
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.outputs.InsertMany(ctx, docs)
	if err != nil {
		saved := 0
		if result != nil {
			saved = len(result.InsertedIDs)
		}
		return saved, fmt.Errorf("mongodb save outputs for agent %s: %w", id, err)
	}
	return len(result.InsertedIDs), nil
}

// updateFields translates the gateway's dynamic field map into a $set
// document, encoding typed values into their persisted shapes.
func updateFields(fields map[string]any) (bson.M, error) {
	set := make(bson.M, len(fields))
	for key, value := range fields {
		switch v := value.(type) {
		case api.Config:
			doc, err := configToDocument(v)
			if err != nil {
				return nil, fmt.Errorf("encode config field: %w", err)
			}
			set[key] = doc
		case api.Status:
			set[key] = v.String()
		case time.Time:
			set[key] = v.UTC()
		default:
			set[key] = v
		}
	}
	return set, nil
}

// configToDocument converts a Config through its JSON form, so unknown
// Extra keys persist alongside the typed fields.
func configToDocument(cfg api.Config) (bson.M, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// configFromDocument rebuilds a Config from its persisted document. BSON
// container and datetime types are normalized first so the JSON round trip
// sees plain maps, slices and UTC times.
func configFromDocument(doc bson.M) (api.Config, error) {
	normalized := timex.EnsureUTC(fromBSON(doc))
	raw, err := json.Marshal(normalized)
	if err != nil {
		return api.Config{}, err
	}
	var cfg api.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return api.Config{}, err
	}
	return cfg, nil
}

func recordFromDocument(doc agentDocument) (api.Record, error) {
	cfg, err := configFromDocument(doc.Config)
	if err != nil {
		return api.Record{}, fmt.Errorf("decode config of agent %s: %w", doc.ID, err)
	}
	return api.Record{
		ID:        doc.ID,
		Config:    cfg,
		OwnerID:   doc.OwnerID,
		Status:    api.Status(doc.Status),
		NextRun:   doc.NextRun.UTC(),
		IsActive:  doc.IsActive,
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

// fromBSON rewrites the driver's container and scalar types into their
// plain Go equivalents.
func fromBSON(v any) any {
	switch tv := v.(type) {
	case bson.M:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = fromBSON(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = fromBSON(val)
		}
		return out
	case bson.A:
		out := make([]any, len(tv))
		for i, val := range tv {
			out[i] = fromBSON(val)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, val := range tv {
			out[i] = fromBSON(val)
		}
		return out
	case primitive.DateTime:
		return tv.Time().UTC()
	case primitive.ObjectID:
		return tv.Hex()
	default:
		return v
	}
}
