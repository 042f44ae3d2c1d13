package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

const decisionsCollection = "approval_decisions"

const maxRecent = 200

// DecisionRepository implements ports.DecisionRepository using MongoDB.
type DecisionRepository struct {
	coll *mongo.Collection
}

func NewDecisionRepository(db *mongo.Database) *DecisionRepository {
	return &DecisionRepository{coll: db.Collection(decisionsCollection)}
}

// EnsureIndexes creates the index backing Recent.
func (r *DecisionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "decided_at", Value: -1}},
	})
	return err
}

type decisionDoc struct {
	ID        string    `bson:"_id"`
	RequestID string    `bson:"request_id"`
	Kind      string    `bson:"kind"`
	Outcome   string    `bson:"outcome"`
	Reason    string    `bson:"reason,omitempty"`
	Actor     string    `bson:"actor"`
	Succeeded bool      `bson:"succeeded"`
	Error     string    `bson:"error,omitempty"`
	DecidedAt time.Time `bson:"decided_at"`
}

// Insert persists one decision to the approval_decisions audit collection.
func (r *DecisionRepository) Insert(ctx context.Context, d domain.Decision) error {
	doc := decisionDoc{
		ID:        d.ID,
		RequestID: string(d.RequestID),
		Kind:      string(d.Kind),
		Outcome:   string(d.Outcome),
		Reason:    d.Reason,
		Actor:     d.Actor,
		Succeeded: d.Succeeded,
		Error:     d.Error,
		DecidedAt: d.DecidedAt.UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// Recent returns the newest decisions first.
func (r *DecisionRepository) Recent(ctx context.Context, limit int) ([]domain.Decision, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "decided_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find decisions: %w", err)
	}
	defer cur.Close(ctx)

	var docs []decisionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode decisions: %w", err)
	}

	out := make([]domain.Decision, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.Decision{
			ID:        doc.ID,
			RequestID: domain.ID(doc.RequestID),
			Kind:      domain.RequestKind(doc.Kind),
			Outcome:   domain.RequestStatus(doc.Outcome),
			Reason:    doc.Reason,
			Actor:     doc.Actor,
			Succeeded: doc.Succeeded,
			Error:     doc.Error,
			DecidedAt: doc.DecidedAt,
		})
	}
	return out, nil
}
