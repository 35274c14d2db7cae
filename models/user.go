package models

import "time"

// AccountStatus is the approval state of a user account
type AccountStatus string

// Account approval states. Responder and hospital accounts start pending and
// must be approved by an admin before they can act on requests.
const (
	AccountPending  AccountStatus = "pending"
	AccountApproved AccountStatus = "approved"
	AccountRejected AccountStatus = "rejected"
)

// User holds the structure for the users collection in mongo
type User struct {
	ID      string      `json:"_id" bson:"_id"`
	Details UserDetails `json:"user" bson:"user"`
	Version int32       `json:"__v" bson:"__v"`
}

// UserDetails holds the structure for the inner user structure as defined in
// the users collection in mongo
type UserDetails struct {
	FullName      string        `json:"fullName" bson:"fullName"`
	Email         string        `json:"email" bson:"email"`
	Password      string        `json:"password,omitempty" bson:"password"`
	Phone         string        `json:"phone" bson:"phone"`
	Role          Role          `json:"role" bson:"role"`
	AccountStatus AccountStatus `json:"status" bson:"status"`

	// Patient-specific fields
	NationalID        string            `json:"nationalId,omitempty" bson:"nationalId,omitempty"`
	InsuranceProvider string            `json:"insuranceProvider,omitempty" bson:"insuranceProvider,omitempty"`
	InsuranceNumber   string            `json:"insuranceNumber,omitempty" bson:"insuranceNumber,omitempty"`
	InsuranceDetails  *InsuranceDetails `json:"insuranceDetails,omitempty" bson:"insuranceDetails,omitempty"`

	// Insurance officer-specific fields
	ProviderID string `json:"providerId,omitempty" bson:"providerId,omitempty"`
	Department string `json:"department,omitempty" bson:"department,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// InsuranceDetails is the coverage record attached to a patient account
type InsuranceDetails struct {
	CoverageType         string     `json:"coverageType,omitempty" bson:"coverageType,omitempty"`
	CoverageStatus       string     `json:"coverageStatus,omitempty" bson:"coverageStatus,omitempty"`
	LastVerificationDate *time.Time `json:"lastVerificationDate,omitempty" bson:"lastVerificationDate,omitempty"`
}
