package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"mobilespo/internal/database"
	"mobilespo/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("user already exists with this email")
	ErrAccountLocked = errors.New("account temporarily locked due to too many failed login attempts")
)

// UserService handles user operations with MongoDB
type UserService struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewUserService creates a new user service
func NewUserService(db *database.MongoDB) *UserService {
	return &UserService{
		collection: db.Collection(database.CollectionUsers),
		now:        time.Now,
	}
}

// GetUserByID retrieves a user by hex id
func (s *UserService) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// GetUserByEmail retrieves a user by their email address
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *UserService) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := s.collection.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a new user into the database
func (s *UserService) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}

	_, err := s.collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("👤 [USER] Created user %s", user.ID.Hex())
	return nil
}

// RecordLogin clears failed attempts and stamps the login time
func (s *UserService) RecordLogin(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$set":   bson.M{"lastLoginAt": s.now(), "security.loginAttempts": 0},
		"$unset": bson.M{"security.lockUntil": ""},
	})
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// RecordFailedLogin increments the failure counter and locks the account
// once models.MaxLoginAttempts is reached
func (s *UserService) RecordFailedLogin(ctx context.Context, user *models.User) error {
	update := bson.M{"$inc": bson.M{"security.loginAttempts": 1}}

	if user.Security.LockUntil != nil && !user.IsLocked(s.now()) {
		// lock expired, start counting again
		update = bson.M{
			"$set":   bson.M{"security.loginAttempts": 1},
			"$unset": bson.M{"security.lockUntil": ""},
		}
	} else if user.Security.LoginAttempts+1 >= models.MaxLoginAttempts {
		update["$set"] = bson.M{"security.lockUntil": s.now().Add(models.LockDuration)}
		log.Printf("🔒 [USER] Locking account %s after %d failed logins", user.ID.Hex(), models.MaxLoginAttempts)
	}

	if _, err := s.collection.UpdateOne(ctx, bson.M{"_id": user.ID}, update); err != nil {
		return fmt.Errorf("failed to record failed login: %w", err)
	}
	return nil
}

// UpdateHealthProfile replaces the sections present in req and returns the
// resulting profile
func (s *UserService) UpdateHealthProfile(ctx context.Context, userID string, req *models.UpdateHealthProfileRequest) (*models.HealthProfile, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	set := bson.M{"lastHealthDataUpdate": s.now()}
	if req.Conditions != nil {
		set["healthProfile.conditions"] = req.Conditions
	}
	if req.Medications != nil {
		set["healthProfile.medications"] = req.Medications
	}
	if req.Allergies != nil {
		set["healthProfile.allergies"] = req.Allergies
	}
	if req.EmergencyContacts != nil {
		set["healthProfile.emergencyContacts"] = req.EmergencyContacts
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("failed to update health profile: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, ErrUserNotFound
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user.HealthProfile, nil
}
