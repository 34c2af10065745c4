package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxLoginAttempts is the number of consecutive failures before an account is locked
const MaxLoginAttempts = 5

// LockDuration is how long an account stays locked after MaxLoginAttempts failures
const LockDuration = 30 * time.Minute

// User represents a patient account
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email         string             `bson:"email" json:"email"`
	PasswordHash  string             `bson:"passwordHash,omitempty" json:"-"` // Argon2id hash, never exposed in API
	EmailVerified bool               `bson:"emailVerified" json:"email_verified"`
	Role          string             `bson:"role,omitempty" json:"role,omitempty"` // "patient" or "admin"
	CreatedAt     time.Time          `bson:"createdAt" json:"created_at"`
	LastLoginAt   time.Time          `bson:"lastLoginAt" json:"last_login_at"`

	Profile       UserProfile   `bson:"profile" json:"profile"`
	HealthProfile HealthProfile `bson:"healthProfile" json:"-"` // served by /health/profile only
	Settings      UserSettings  `bson:"settings" json:"settings"`
	Security      UserSecurity  `bson:"security" json:"-"`

	LastHealthDataUpdate *time.Time `bson:"lastHealthDataUpdate,omitempty" json:"-"`
}

// UserProfile holds demographic details
type UserProfile struct {
	FirstName   string     `bson:"firstName" json:"first_name"`
	LastName    string     `bson:"lastName" json:"last_name"`
	DateOfBirth *time.Time `bson:"dateOfBirth,omitempty" json:"date_of_birth,omitempty"`
	Gender      string     `bson:"gender,omitempty" json:"gender,omitempty"` // male, female, other, prefer_not_to_say
	PhoneNumber string     `bson:"phoneNumber,omitempty" json:"phone_number,omitempty"`
}

// HealthProfile holds the medical history used as chat context
type HealthProfile struct {
	Conditions        []MedicalCondition `bson:"conditions" json:"conditions"`
	Medications       []Medication       `bson:"medications" json:"medications"`
	Allergies         []Allergy          `bson:"allergies" json:"allergies"`
	EmergencyContacts []EmergencyPerson  `bson:"emergencyContacts" json:"emergencyContacts"`
}

// MedicalCondition is a diagnosed condition
type MedicalCondition struct {
	Name          string     `bson:"name" json:"name"`
	DiagnosedDate *time.Time `bson:"diagnosedDate,omitempty" json:"diagnosedDate,omitempty"`
	Severity      string     `bson:"severity,omitempty" json:"severity,omitempty"` // mild, moderate, severe
	Notes         string     `bson:"notes,omitempty" json:"notes,omitempty"`
}

// Medication is a current or past prescription
type Medication struct {
	Name         string     `bson:"name" json:"name"`
	Dosage       string     `bson:"dosage,omitempty" json:"dosage,omitempty"`
	Frequency    string     `bson:"frequency,omitempty" json:"frequency,omitempty"`
	StartDate    *time.Time `bson:"startDate,omitempty" json:"startDate,omitempty"`
	EndDate      *time.Time `bson:"endDate,omitempty" json:"endDate,omitempty"`
	PrescribedBy string     `bson:"prescribedBy,omitempty" json:"prescribedBy,omitempty"`
}

// Allergy is a known allergen
type Allergy struct {
	Allergen string `bson:"allergen" json:"allergen"`
	Severity string `bson:"severity,omitempty" json:"severity,omitempty"` // mild, moderate, severe, life_threatening
	Reaction string `bson:"reaction,omitempty" json:"reaction,omitempty"`
}

// EmergencyPerson is a contact to reach during a crisis
type EmergencyPerson struct {
	Name         string `bson:"name" json:"name"`
	Relationship string `bson:"relationship,omitempty" json:"relationship,omitempty"`
	PhoneNumber  string `bson:"phoneNumber" json:"phoneNumber"`
	Email        string `bson:"email,omitempty" json:"email,omitempty"`
	IsPrimary    bool   `bson:"isPrimary" json:"isPrimary"`
}

// UserSettings holds app preferences
type UserSettings struct {
	Language             Language `bson:"language" json:"language"`
	NotificationsEnabled bool     `bson:"notificationsEnabled" json:"notifications_enabled"`
}

// UserSecurity tracks failed logins for account locking
type UserSecurity struct {
	LoginAttempts int        `bson:"loginAttempts" json:"-"`
	LockUntil     *time.Time `bson:"lockUntil,omitempty" json:"-"`
}

// IsLocked reports whether the account is currently locked
func (u *User) IsLocked(now time.Time) bool {
	return u.Security.LockUntil != nil && u.Security.LockUntil.After(now)
}

// Age returns the age in whole years, or 0 when the birth date is unknown
func (u *User) Age(now time.Time) int {
	if u.Profile.DateOfBirth == nil {
		return 0
	}
	dob := *u.Profile.DateOfBirth
	age := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// PatientContext extracts the assistant context from the profile
func (u *User) PatientContext(now time.Time) PatientContext {
	ctx := PatientContext{
		Age:       u.Age(now),
		Gender:    u.Profile.Gender,
		Language:  u.Settings.Language,
		Interface: "chat",
	}
	for _, c := range u.HealthProfile.Conditions {
		ctx.Conditions = append(ctx.Conditions, c.Name)
	}
	for _, m := range u.HealthProfile.Medications {
		ctx.Medications = append(ctx.Medications, m.Name)
	}
	return ctx
}

// UserResponse is the API response for user data
type UserResponse struct {
	ID            string       `json:"id"`
	Email         string       `json:"email"`
	EmailVerified bool         `json:"email_verified"`
	Role          string       `json:"role,omitempty"`
	Profile       UserProfile  `json:"profile"`
	Settings      UserSettings `json:"settings"`
	CreatedAt     time.Time    `json:"created_at"`
	LastLoginAt   time.Time    `json:"last_login_at"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:            u.ID.Hex(),
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Role:          u.Role,
		Profile:       u.Profile,
		Settings:      u.Settings,
		CreatedAt:     u.CreatedAt,
		LastLoginAt:   u.LastLoginAt,
	}
}

// UpdateHealthProfileRequest replaces the provided sections of a health profile
type UpdateHealthProfileRequest struct {
	Conditions        []MedicalCondition `json:"conditions,omitempty"`
	Medications       []Medication       `json:"medications,omitempty"`
	Allergies         []Allergy          `json:"allergies,omitempty"`
	EmergencyContacts []EmergencyPerson  `json:"emergencyContacts,omitempty"`
}
