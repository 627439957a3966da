package repository

import (
	"context"
	"time"

	"lifeguard_mailbox/internal/mailbox/domain"
	"lifeguard_mailbox/pkg"
	"lifeguard_mailbox/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// messageDocument stored form of a message, profiles are joined at read time
type messageDocument struct {
	ID          string    `bson:"_id"`
	SenderID    string    `bson:"sender_id"`
	RecipientID string    `bson:"recipient_id"`
	Subject     string    `bson:"subject"`
	Content     string    `bson:"content"`
	Read        bool      `bson:"read"`
	CreatedAt   time.Time `bson:"created_at"`
}

// MongoMessageStore messages in mongo, profiles from postgres, changes over the feed
type MongoMessageStore struct {
	coll     *mongo.Collection
	profiles ProfileRepository
	feed     ChangeFeed
	now      func() time.Time
}

// NewMongoMessageStore create MongoMessageStore
func NewMongoMessageStore(db *mongo.Database, profiles ProfileRepository, feed ChangeFeed) *MongoMessageStore {
	return &MongoMessageStore{
		coll:     db.Collection("messages"),
		profiles: profiles,
		feed:     feed,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes sender/recipient lookups
func (s *MongoMessageStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

// FetchMessages every message where userID is sender or recipient
func (s *MongoMessageStore) FetchMessages(ctx context.Context, userID string) ([]domain.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userID},
		bson.M{"recipient_id": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs)*2)
	for _, d := range docs {
		ids = append(ids, d.SenderID, d.RecipientID)
	}
	identities, err := s.profiles.FindIdentities(ctx, pkg.Unique(ids))
	if err != nil {
		// 沒有 profile 時顯示 placeholder
		logger.Log.Warn("load message profiles failed", zap.String("userID", userID), zap.Error(err))
	}

	return toMessages(docs, identities), nil
}

func toMessages(docs []messageDocument, identities map[string]domain.Identity) []domain.Message {
	messages := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, domain.Message{
			ID:          d.ID,
			SenderID:    d.SenderID,
			RecipientID: d.RecipientID,
			Subject:     d.Subject,
			Content:     d.Content,
			Read:        d.Read,
			CreatedAt:   d.CreatedAt,
			Sender:      identities[d.SenderID],
			Recipient:   identities[d.RecipientID],
		})
	}
	return messages
}

// InsertMessage new unread message stamped by the store
func (s *MongoMessageStore) InsertMessage(ctx context.Context, draft domain.MessageDraft) error {
	doc := messageDocument{
		ID:          uuid.NewString(),
		SenderID:    draft.SenderID,
		RecipientID: draft.RecipientID,
		Subject:     draft.Subject,
		Content:     draft.Content,
		Read:        false,
		CreatedAt:   s.now(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return err
	}

	s.publish(ctx, domain.ChangeInsert, []string{doc.ID}, Participants{SenderID: doc.SenderID, RecipientID: doc.RecipientID})
	return nil
}

// UpdateReadFlags set read=true on every id
func (s *MongoMessageStore) UpdateReadFlags(ctx context.Context, ids []string) error {
	ids = pkg.Unique(ids)
	if len(ids) == 0 {
		return nil
	}
	parts, err := s.participants(ctx, ids)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": bson.M{"$in": ids}}
	if _, err := s.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}}); err != nil {
		return err
	}

	s.publish(ctx, domain.ChangeUpdate, ids, parts...)
	return nil
}

// DeleteMessages remove exactly the given ids
func (s *MongoMessageStore) DeleteMessages(ctx context.Context, ids []string) error {
	ids = pkg.Unique(ids)
	if len(ids) == 0 {
		return nil
	}
	// 刪除前先取參與者, 刪除後就查不到了
	parts, err := s.participants(ctx, ids)
	if err != nil {
		return err
	}

	if _, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return err
	}

	s.publish(ctx, domain.ChangeDelete, ids, parts...)
	return nil
}

// SubscribeToChanges both feeds of userID
func (s *MongoMessageStore) SubscribeToChanges(ctx context.Context, userID string, onChange func()) (func(), error) {
	return s.feed.Subscribe(ctx, userID, onChange)
}

func (s *MongoMessageStore) participants(ctx context.Context, ids []string) ([]Participants, error) {
	opts := options.Find().SetProjection(bson.M{"sender_id": 1, "recipient_id": 1})
	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	var parts []Participants
	if err := cur.All(ctx, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// publish the write is already confirmed, a feed failure only delays the other side
func (s *MongoMessageStore) publish(ctx context.Context, kind domain.ChangeKind, ids []string, parts ...Participants) {
	if s.feed == nil || len(parts) == 0 {
		return
	}
	event := domain.ChangeEvent{Kind: kind, MessageIDs: ids, At: s.now().UnixMilli()}
	if err := s.feed.Publish(ctx, event, parts...); err != nil {
		logger.Log.Warn("publish mailbox change failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}
