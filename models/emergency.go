package models

import "time"

// EmergencyRequest holds the structure for the emergencies collection in mongo
type EmergencyRequest struct {
	ID      string           `json:"_id" bson:"_id"`
	Details EmergencyDetails `json:"emergency" bson:"emergency"`
	Version int32            `json:"__v" bson:"__v"`
}

// EmergencyDetails holds the structure for the inner emergency structure as
// defined in the emergencies collection in mongo
type EmergencyDetails struct {
	Location          GeoPoint        `json:"location" bson:"location"`
	CurrentLocation   *GeoPoint       `json:"currentLocation,omitempty" bson:"currentLocation,omitempty"`
	Description       string          `json:"description" bson:"description"`
	Patient           PatientSnapshot `json:"patient" bson:"patient"`
	Status            EmergencyStatus `json:"status" bson:"status"`
	AssignedResponder string          `json:"assignedResponder,omitempty" bson:"assignedResponder,omitempty"`
	AssignedHospital  string          `json:"assignedHospital,omitempty" bson:"assignedHospital,omitempty"`
	Payment           Payment         `json:"payment" bson:"payment"`
	Timeline          []TimelineEntry `json:"timeline" bson:"timeline"`
	CreatedAt         time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// GeoPoint is a GeoJSON point with an optional free-text address
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
	Address     string    `json:"address,omitempty" bson:"address,omitempty"`
}

// PatientSnapshot is the denormalized copy of the patient's identifying,
// medical and insurance fields captured when the request is created. It is
// write-once; later edits to the patient's profile do not flow back into it.
type PatientSnapshot struct {
	UserID            string `json:"userId" bson:"userId"`
	FullName          string `json:"fullName" bson:"fullName"`
	NationalID        string `json:"nationalId,omitempty" bson:"nationalId,omitempty"`
	PhoneNumber       string `json:"phoneNumber,omitempty" bson:"phoneNumber,omitempty"`
	InsuranceProvider string `json:"insuranceProvider,omitempty" bson:"insuranceProvider,omitempty"`
	InsuranceNumber   string `json:"insuranceNumber,omitempty" bson:"insuranceNumber,omitempty"`
	CoverageDetails   string `json:"coverageDetails,omitempty" bson:"coverageDetails,omitempty"`
}

// PaymentStatus is the bookkeeping state of the payment sub-record
type PaymentStatus string

// Payment states. These run independently of the request lifecycle.
const (
	PaymentPending           PaymentStatus = "pending"
	PaymentInsuranceVerified PaymentStatus = "insurance_verified"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
)

// Payment is the payment sub-record of an emergency request. Bookkeeping
// only, there is no gateway behind it.
type Payment struct {
	Status         PaymentStatus   `json:"status" bson:"status"`
	Method         string          `json:"method,omitempty" bson:"method,omitempty"`
	Amount         float64         `json:"amount,omitempty" bson:"amount,omitempty"`
	InsuranceClaim *InsuranceClaim `json:"insuranceClaim,omitempty" bson:"insuranceClaim,omitempty"`
}

// ClaimStatus is the processing state of an insurance claim
type ClaimStatus string

// Claim states
const (
	ClaimPending   ClaimStatus = "pending"
	ClaimProcessed ClaimStatus = "processed"
	ClaimFailed    ClaimStatus = "failed"
)

// InsuranceClaim records the claim raised against a request's payment
type InsuranceClaim struct {
	ClaimID     string      `json:"claimId" bson:"claimId"`
	Status      ClaimStatus `json:"status" bson:"status"`
	ProcessedBy string      `json:"processedBy,omitempty" bson:"processedBy,omitempty"`
}

// TimelineEntry is one entry of the append-only status audit log
type TimelineEntry struct {
	Status    EmergencyStatus `json:"status" bson:"status"`
	Timestamp time.Time       `json:"timestamp" bson:"timestamp"`
	Location  *GeoPoint       `json:"location,omitempty" bson:"location,omitempty"`
	Notes     string          `json:"notes,omitempty" bson:"notes,omitempty"`
}

// IsAssignedResponder reports whether userID is the responder assigned to
// this request
func (e *EmergencyDetails) IsAssignedResponder(userID string) bool {
	return e.AssignedResponder != "" && e.AssignedResponder == userID
}
