// Package reviews stores reviewer feedback on papers.
package reviews

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Review is one reviewer's feedback on a paper.
type Review struct {
	PaperID        int64     `bson:"paperId" json:"paperId"`
	Reviewer       string    `bson:"reviewer" json:"reviewer"`
	Suggestions    string    `bson:"suggestions" json:"suggestions"`
	OverallComment string    `bson:"overallComment" json:"overallComment"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
}

// Repository persists reviews. ListFor returns oldest first.
type Repository interface {
	Add(ctx context.Context, r *Review) error
	ListFor(ctx context.Context, paperID int64) ([]*Review, error)
	DeleteFor(ctx context.Context, paperID int64) error
}

// MongoRepository implements Repository using a Mongo collection
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(ctx context.Context, col *mongo.Collection) (*MongoRepository, error) {
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "paperId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return nil, err
	}
	return &MongoRepository{col: col}, nil
}

func (r *MongoRepository) Add(ctx context.Context, rv *Review) error {
	if rv.CreatedAt.IsZero() {
		rv.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, rv)
	return err
}

func (r *MongoRepository) ListFor(ctx context.Context, paperID int64) ([]*Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"paperId": paperID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Review{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoRepository) DeleteFor(ctx context.Context, paperID int64) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"paperId": paperID})
	return err
}

// MemoryRepository keeps reviews in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	reviews []Review
	nowFunc func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nowFunc: time.Now}
}

func (r *MemoryRepository) Add(ctx context.Context, rv *Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rv.CreatedAt.IsZero() {
		rv.CreatedAt = r.nowFunc().UTC()
	}
	r.reviews = append(r.reviews, *rv)
	return nil
}

func (r *MemoryRepository) ListFor(ctx context.Context, paperID int64) ([]*Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*Review{}
	for _, rv := range r.reviews {
		if rv.PaperID == paperID {
			rv := rv
			out = append(out, &rv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) DeleteFor(ctx context.Context, paperID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.reviews[:0]
	for _, rv := range r.reviews {
		if rv.PaperID != paperID {
			kept = append(kept, rv)
		}
	}
	r.reviews = kept
	return nil
}
