package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flightdesk/auth-service/internal/core/domain"
	"github.com/flightdesk/auth-service/internal/core/ports"
)

const (
	collectionUsers         = "users"
	collectionRefreshTokens = "refresh_tokens"
)

// CredentialStore implements ports.CredentialStore using MongoDB.
// Transactions require a replica set.
type CredentialStore struct {
	client *mongo.Client
	users  *mongo.Collection
	tokens *mongo.Collection
}

func NewCredentialStore(db *mongo.Database) *CredentialStore {
	return &CredentialStore{
		client: db.Client(),
		users:  db.Collection(collectionUsers),
		tokens: db.Collection(collectionRefreshTokens),
	}
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

type userDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Email         string             `bson:"email"`
	PasswordHash  string             `bson:"password_hash"`
	Name          *string            `bson:"name,omitempty"`
	EmailVerified bool               `bson:"email_verified"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:            d.ID.Hex(),
		Email:         d.Email,
		PasswordHash:  d.PasswordHash,
		Name:          d.Name,
		EmailVerified: d.EmailVerified,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

type refreshTokenDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	TokenHash string             `bson:"token_hash"`
	TokenID   string             `bson:"token_id"`
	CreatedAt time.Time          `bson:"created_at"`
	ExpiresAt time.Time          `bson:"expires_at"`
	RevokedAt *time.Time         `bson:"revoked_at"`
}

func (d *refreshTokenDoc) toDomain() *domain.RefreshTokenRecord {
	rec := &domain.RefreshTokenRecord{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		TokenHash: d.TokenHash,
		TokenID:   d.TokenID,
		CreatedAt: d.CreatedAt.UTC(),
		ExpiresAt: d.ExpiresAt.UTC(),
	}
	if d.RevokedAt != nil {
		at := d.RevokedAt.UTC()
		rec.RevokedAt = &at
	}
	return rec
}

func (s *CredentialStore) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *CredentialStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *CredentialStore) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

// CreateUser relies on the unique email index to reject duplicates.
func (s *CredentialStore) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := userDoc{
		ID:            primitive.NewObjectID(),
		Email:         user.Email,
		PasswordHash:  user.PasswordHash,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt.UTC(),
		UpdatedAt:     user.UpdatedAt.UTC(),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *CredentialStore) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"updated_at": upd.UpdatedAt.UTC()}
	if upd.PasswordHash != nil {
		set["password_hash"] = *upd.PasswordHash
	}
	update := bson.M{"$set": set}
	if upd.ClearName {
		update["$unset"] = bson.M{"name": ""}
	} else if upd.Name != nil {
		set["name"] = *upd.Name
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDoc
	if err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *CredentialStore) CreateRefreshTokenRecord(ctx context.Context, rec *domain.RefreshTokenRecord) (*domain.RefreshTokenRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := refreshTokenDoc{
		ID:        primitive.NewObjectID(),
		UserID:    rec.UserID,
		TokenHash: rec.TokenHash,
		TokenID:   rec.TokenID,
		CreatedAt: rec.CreatedAt.UTC(),
		ExpiresAt: rec.ExpiresAt.UTC(),
	}
	if _, err := s.tokens.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}
	return doc.toDomain(), nil
}

// FindValidRefreshTokenRecords matches revoked_at null or missing.
func (s *CredentialStore) FindValidRefreshTokenRecords(ctx context.Context, userID string, now time.Time) ([]*domain.RefreshTokenRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"user_id":    userID,
		"revoked_at": nil,
		"expires_at": bson.M{"$gt": now.UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := s.tokens.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find refresh tokens: %w", err)
	}
	var docs []refreshTokenDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode refresh tokens: %w", err)
	}

	out := make([]*domain.RefreshTokenRecord, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

func (s *CredentialStore) RevokeRefreshTokenRecord(ctx context.Context, id string, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrRefreshTokenRevoked
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.tokens.UpdateOne(ctx,
		bson.M{"_id": oid, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRefreshTokenRevoked
	}
	return nil
}

func (s *CredentialStore) RevokeAllRefreshTokenRecords(ctx context.Context, userID string, at time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.tokens.UpdateMany(ctx,
		bson.M{"user_id": userID, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": at.UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return res.ModifiedCount, nil
}

// Transactionally runs fn inside a session transaction. A context that already
// carries a session joins it.
func (s *CredentialStore) Transactionally(ctx context.Context, fn func(ctx context.Context, store ports.CredentialStore) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, s)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	})
	return err
}

// EnsureIndexes creates the unique email index and the refresh-token lookup
// indexes. Refresh tokens are kept after expiry, so none of them is a TTL index.
func (s *CredentialStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	tokenIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	}
	if _, err := s.tokens.Indexes().CreateMany(ctx, tokenIndexes); err != nil {
		return fmt.Errorf("refresh_tokens indexes: %w", err)
	}
	return nil
}
