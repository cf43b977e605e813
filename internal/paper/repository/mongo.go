package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paperdesk/paperdesk/internal/paper"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const paperCounter = "papers"

// maxDocumentBytes leaves headroom under MongoDB's 16 MB BSON limit for the
// fields Save does not rewrite.
const maxDocumentBytes = 16<<20 - 64<<10

// MongoRepo implements Repository on a MongoDB collection. Papers are stored
// whole (sections, history and attachments in one record); ids come from a
// monotonically increasing counter document, so deleted ids are not reused.
type MongoRepo struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

// NewMongoRepo wires the papers and counters collections and ensures indexes
// on "id" (unique) and "owner".
func NewMongoRepo(ctx context.Context, col, counters *mongo.Collection) (*MongoRepo, error) {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "owner", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("ensure paper indexes: %w", err)
	}
	return &MongoRepo{col: col, counters: counters}, nil
}

func (m *MongoRepo) nextID(ctx context.Context) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := m.counters.FindOneAndUpdate(ctx, bson.M{"_id": paperCounter}, bson.M{"$inc": bson.M{"seq": 1}}, opts).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("next paper id: %w", err)
	}
	return out.Seq, nil
}

func (m *MongoRepo) Create(ctx context.Context, owner string) (*paper.Paper, error) {
	id, err := m.nextID(ctx)
	if err != nil {
		return nil, err
	}
	p := paper.New(id, owner, time.Now().UTC())
	if _, err := m.col.InsertOne(ctx, p); err != nil {
		return nil, fmt.Errorf("insert paper: %w", err)
	}
	return p, nil
}

func (m *MongoRepo) Get(ctx context.Context, id int64) (*paper.Paper, error) {
	var p paper.Paper
	err := m.col.FindOne(ctx, bson.M{"id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

func (m *MongoRepo) List(ctx context.Context) ([]*paper.Paper, error) {
	return m.find(ctx, bson.M{})
}

func (m *MongoRepo) ListFor(ctx context.Context, owner string) ([]*paper.Paper, error) {
	return m.find(ctx, bson.M{"owner": owner})
}

func (m *MongoRepo) find(ctx context.Context, filter bson.M) ([]*paper.Paper, error) {
	cur, err := m.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*paper.Paper{}
	for cur.Next(ctx) {
		var p paper.Paper
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		p.Normalize()
		out = append(out, &p)
	}
	return out, cur.Err()
}

// Save writes the mutable fields in a single update so sections, history and
// attachments change together. Owner and creation time are never rewritten.
func (m *MongoRepo) Save(ctx context.Context, p *paper.Paper) error {
	set := bson.M{
		"sections":    p.Sections,
		"status":      p.Status,
		"history":     p.History,
		"attachments": p.Attachments,
		"updatedAt":   p.UpdatedAt,
	}
	if err := checkDocumentSize(set); err != nil {
		return fmt.Errorf("paper %d: %w", p.ID, err)
	}
	res, err := m.col.UpdateOne(ctx, bson.M{"id": p.ID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Delete(ctx context.Context, id int64) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func checkDocumentSize(doc bson.M) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode paper: %w", err)
	}
	if len(raw) > maxDocumentBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(raw))
	}
	return nil
}
