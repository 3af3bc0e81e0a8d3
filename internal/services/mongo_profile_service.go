package services

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kisanai/backend/internal/models"
)

type MongoProfileService struct {
	client      *mongo.Client
	db          *mongo.Database
	profilesCol *mongo.Collection
	now         func() time.Time
}

func NewMongoProfileService(ctx context.Context, mongoURI, dbName string) (*MongoProfileService, error) {
	opts := options.Client().ApplyURI(mongoURI)
	if strings.HasPrefix(mongoURI, "mongodb+srv://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	db := client.Database(dbName)
	col := db.Collection("farmer_profiles")

	// One profile per user; Create relies on this index to reject duplicates.
	if _, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &MongoProfileService{
		client:      client,
		db:          db,
		profilesCol: col,
		now:         time.Now,
	}, nil
}

// Database is the database the profiles live in; accounts share it.
func (s *MongoProfileService) Database() *mongo.Database {
	return s.db
}

func (s *MongoProfileService) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoProfileService) GetByUserID(ctx context.Context, userID string) (*models.FarmerProfile, error) {
	var prof models.FarmerProfile
	if err := s.profilesCol.FindOne(ctx, bson.M{"user_id": userID}).Decode(&prof); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &prof, nil
}

func (s *MongoProfileService) Create(ctx context.Context, req *models.CreateProfileRequest) (*models.FarmerProfile, error) {
	prof := newProfileRow(uuid.NewString(), req, s.now())
	if _, err := s.profilesCol.InsertOne(ctx, prof); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrProfileExists
		}
		return nil, err
	}
	return s.GetByUserID(ctx, req.UserID)
}

// Update writes the patch in a single FindOneAndUpdate and returns the
// document after the write. updated_at goes through $max so concurrent
// writers can never move it backwards.
func (s *MongoProfileService) Update(ctx context.Context, userID string, patch *models.ProfilePatch) (*models.FarmerProfile, error) {
	var prof models.FarmerProfile
	err := s.profilesCol.FindOneAndUpdate(
		ctx,
		bson.M{"user_id": userID},
		profileUpdateDoc(patch, s.now()),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&prof)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &prof, nil
}

// profileUpdateDoc sets only the fields present in patch, normalized the
// same way Apply normalizes them.
func profileUpdateDoc(patch *models.ProfilePatch, now time.Time) bson.M {
	var next models.FarmerProfile
	patch.Apply(&next)

	set := bson.M{}
	if patch.Name != nil {
		set["name"] = next.Name
	}
	if patch.Phone != nil {
		set["phone"] = next.Phone
	}
	if patch.Email != nil {
		set["email"] = next.Email
	}
	if patch.Location != nil {
		set["location"] = next.Location
	}
	if patch.FarmSize != nil {
		set["farm_size"] = next.FarmSize
	}
	if patch.SoilType != nil {
		set["soil_type"] = next.SoilType
	}
	if patch.WaterSource != nil {
		set["water_source"] = next.WaterSource
	}
	if patch.Crops != nil {
		set["crops"] = next.Crops
	}
	if patch.PreferredLanguage != nil {
		set["preferred_language"] = next.PreferredLanguage
	}

	doc := bson.M{
		"$max": bson.M{"updated_at": patch.NextUpdatedAt(now, time.Time{})},
	}
	if len(set) > 0 {
		doc["$set"] = set
	}
	return doc
}
