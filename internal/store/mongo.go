package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/personal-library/internal/common"
	"github.com/ayush/personal-library/internal/models"
)

// MongoStore handles user and book documents in MongoDB.
type MongoStore struct {
	users *mongo.Collection
	books *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{users: db.Collection("users"), books: db.Collection("books")}
}

// ConnectMongo connects and pings a client for uri.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the unique email index and the owner listing index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_unique"),
	})
	if err != nil {
		return fmt.Errorf("mongo users index: %w", err)
	}
	_, err = s.books.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("books_owner_created"),
	})
	if err != nil {
		return fmt.Errorf("mongo books index: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u *models.User) error {
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return common.ErrDuplicateEmail
		}
		return common.Unavailable("mongo insert user", err)
	}
	return nil
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, mongoError("mongo find user", err)
	}
	return &u, nil
}

func (s *MongoStore) InsertBook(ctx context.Context, b *models.Book) error {
	if _, err := s.books.InsertOne(ctx, b); err != nil {
		return common.Unavailable("mongo insert book", err)
	}
	return nil
}

func (s *MongoStore) ListBooks(ctx context.Context, ownerID string, f models.BookFilter) ([]models.Book, error) {
	filter := bson.M{"owner_id": ownerID}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Query != "" {
		rx := bson.M{"$regex": regexp.QuoteMeta(f.Query), "$options": "i"}
		filter["$or"] = bson.A{bson.M{"title": rx}, bson.M{"author": rx}}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.books.Find(ctx, filter, opts)
	if err != nil {
		return nil, common.Unavailable("mongo list books", err)
	}
	defer cur.Close(ctx)

	var list []models.Book
	if err := cur.All(ctx, &list); err != nil {
		return nil, common.Unavailable("mongo list books", err)
	}
	return list, nil
}

func (s *MongoStore) GetBook(ctx context.Context, ownerID, id string) (*models.Book, error) {
	var b models.Book
	if err := s.books.FindOne(ctx, bson.M{"_id": id, "owner_id": ownerID}).Decode(&b); err != nil {
		return nil, mongoError("mongo get book", err)
	}
	return &b, nil
}

func (s *MongoStore) UpdateBook(ctx context.Context, b *models.Book) error {
	res, err := s.books.UpdateOne(ctx,
		bson.M{"_id": b.ID, "owner_id": b.OwnerID},
		bson.M{"$set": bson.M{
			"title":      b.Title,
			"author":     b.Author,
			"status":     b.Status,
			"start_date": b.StartDate,
			"end_date":   b.EndDate,
			"comment":    b.Comment,
			"updated_at": b.UpdatedAt,
		}},
	)
	if err != nil {
		return common.Unavailable("mongo update book", err)
	}
	if res.MatchedCount == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteBook(ctx context.Context, ownerID, id string) error {
	res, err := s.books.DeleteOne(ctx, bson.M{"_id": id, "owner_id": ownerID})
	if err != nil {
		return common.Unavailable("mongo delete book", err)
	}
	if res.DeletedCount == 0 {
		return common.ErrNotFound
	}
	return nil
}

func mongoError(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return common.ErrNotFound
	}
	return common.Unavailable(op, err)
}
