package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/medirush/medirush-api/api"
	"github.com/medirush/medirush-api/config"
	"github.com/medirush/medirush-api/databases"
	"github.com/medirush/medirush-api/models"
)

// Insurance exported for testing purposes
type Insurance struct {
	DB  databases.EmergencyDatabase
	UDB databases.UserDatabase
}

// VerifyInsuranceHandler marks a request's coverage as verified and opens a
// claim against it. Only an insurer whose provider matches the patient's
// snapshot may verify. Bookkeeping only, nothing is charged.
func (i Insurance) VerifyInsuranceHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, fmt.Errorf("unauthenticated request"))
		return
	}
	if caller.Role != models.RoleInsurance && caller.Role != models.RoleAdmin {
		config.ErrorStatus("only insurers may verify coverage", http.StatusForbidden, w, fmt.Errorf("role %s may not verify", caller.Role))
		return
	}

	requestID := mux.Vars(r)["request_id"]
	if _, err := primitive.ObjectIDFromHex(requestID); err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	emergency, err := i.DB.FindOne(ctx, bson.M{"_id": requestID})
	if err != nil {
		config.ErrorStatus("failed to get emergency request by ID", http.StatusNotFound, w, err)
		return
	}

	if emergency.Details.Patient.InsuranceNumber == "" {
		config.ErrorStatus("patient has no insurance on record", http.StatusBadRequest, w, fmt.Errorf("snapshot has no insurance number"))
		return
	}
	if emergency.Details.Payment.Status == models.PaymentPaid {
		config.ErrorStatus("payment already settled", http.StatusConflict, w, fmt.Errorf("payment is %s", emergency.Details.Payment.Status))
		return
	}

	// an insurer may only act on patients covered by their own company
	if caller.Role == models.RoleInsurance {
		insurer, err := i.UDB.FindOne(ctx, bson.M{"_id": caller.ID})
		if err != nil {
			config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
			return
		}
		if insurer.Details.InsuranceProvider != emergency.Details.Patient.InsuranceProvider {
			config.ErrorStatus("patient is covered by a different provider", http.StatusForbidden, w,
				fmt.Errorf("provider mismatch"))
			return
		}
	}

	claim := models.InsuranceClaim{
		ClaimID:     fmt.Sprintf("CLM-%d", time.Now().UnixMilli()),
		Status:      models.ClaimPending,
		ProcessedBy: caller.ID,
	}

	update := bson.M{"$set": bson.M{
		"emergency.payment.status":         models.PaymentInsuranceVerified,
		"emergency.payment.method":         "insurance",
		"emergency.payment.insuranceClaim": claim,
		"emergency.updatedAt":              time.Now().UTC(),
	}}
	if _, err := i.DB.UpdateOne(ctx, bson.M{"_id": requestID}, update); err != nil {
		config.ErrorStatus("failed to verify insurance", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(claim)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type processPaymentRequest struct {
	Amount float64            `json:"amount"`
	Status models.ClaimStatus `json:"status"`
}

// ProcessPaymentHandler settles the claim opened by VerifyInsuranceHandler.
// A processed claim marks the payment paid, a failed one marks it failed.
func (i Insurance) ProcessPaymentHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, fmt.Errorf("unauthenticated request"))
		return
	}
	if caller.Role != models.RoleInsurance && caller.Role != models.RoleAdmin {
		config.ErrorStatus("only insurers may process payments", http.StatusForbidden, w, fmt.Errorf("role %s may not process", caller.Role))
		return
	}

	requestID := mux.Vars(r)["request_id"]
	if _, err := primitive.ObjectIDFromHex(requestID); err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var requestBody processPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if requestBody.Status != models.ClaimProcessed && requestBody.Status != models.ClaimFailed {
		config.ErrorStatus("status must be processed or failed", http.StatusBadRequest, w, fmt.Errorf("claim status %q", requestBody.Status))
		return
	}
	if requestBody.Status == models.ClaimProcessed && requestBody.Amount <= 0 {
		config.ErrorStatus("amount must be positive", http.StatusBadRequest, w, fmt.Errorf("amount %v", requestBody.Amount))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	emergency, err := i.DB.FindOne(ctx, bson.M{"_id": requestID})
	if err != nil {
		config.ErrorStatus("failed to get emergency request by ID", http.StatusNotFound, w, err)
		return
	}
	if emergency.Details.Payment.InsuranceClaim == nil {
		config.ErrorStatus("no claim to process, verify coverage first", http.StatusConflict, w, fmt.Errorf("payment has no claim"))
		return
	}
	if emergency.Details.Payment.InsuranceClaim.Status != models.ClaimPending {
		config.ErrorStatus("claim already settled", http.StatusConflict, w,
			fmt.Errorf("claim is %s", emergency.Details.Payment.InsuranceClaim.Status))
		return
	}

	paymentStatus := models.PaymentPaid
	if requestBody.Status == models.ClaimFailed {
		paymentStatus = models.PaymentFailed
	}

	update := bson.M{"$set": bson.M{
		"emergency.payment.status":                paymentStatus,
		"emergency.payment.amount":                requestBody.Amount,
		"emergency.payment.insuranceClaim.status": requestBody.Status,
		"emergency.updatedAt":                     time.Now().UTC(),
	}}
	if _, err := i.DB.UpdateOne(ctx, bson.M{"_id": requestID}, update); err != nil {
		config.ErrorStatus("failed to process payment", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":       "Payment processed",
		"paymentStatus": paymentStatus,
	})
}

// InsuranceRecordsHandler returns the requests whose claims were handled by
// the calling insurer
func (i Insurance) InsuranceRecordsHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, fmt.Errorf("unauthenticated request"))
		return
	}
	if caller.Role != models.RoleInsurance && caller.Role != models.RoleAdmin {
		config.ErrorStatus("only insurers may list records", http.StatusForbidden, w, fmt.Errorf("role %s may not list", caller.Role))
		return
	}

	filter := bson.M{"emergency.payment.method": "insurance"}
	if caller.Role == models.RoleInsurance {
		filter["emergency.payment.insuranceClaim.processedBy"] = caller.ID
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := i.DB.Find(ctx, filter)
	if err != nil {
		config.ErrorStatus("failed to get insurance records", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.EmergencyRequest{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
