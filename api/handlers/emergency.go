package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/medirush/medirush-api/api"
	"github.com/medirush/medirush-api/config"
	"github.com/medirush/medirush-api/databases"
	"github.com/medirush/medirush-api/models"
)

// Emergency exported for testing purposes
type Emergency struct {
	DB       databases.EmergencyDatabase
	UDB      databases.UserDatabase
	Notifier *Notifier
	Policy   models.TransitionPolicy
}

type createEmergencyRequest struct {
	Location       models.GeoPoint        `json:"location"`
	Description    string                 `json:"description"`
	PatientDetails models.PatientSnapshot `json:"patientDetails"`
}

type updateStatusRequest struct {
	Status   models.EmergencyStatus `json:"status"`
	Location *models.GeoPoint       `json:"location,omitempty"`
	Notes    string                 `json:"notes,omitempty"`
}

// CreateEmergencyHandler creates a new emergency request in status pending.
// The patient snapshot is captured once here and never rewritten.
func (e Emergency) CreateEmergencyHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, fmt.Errorf("unauthenticated request"))
		return
	}
	if caller.Role != models.RolePatient && caller.Role != models.RoleAdmin {
		config.ErrorStatus("only patients may create emergency requests", http.StatusForbidden, w, fmt.Errorf("role %s may not create requests", caller.Role))
		return
	}

	var requestBody createEmergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	if len(requestBody.Location.Coordinates) != 2 {
		config.ErrorStatus("location coordinates are required", http.StatusBadRequest, w, fmt.Errorf("expected [longitude, latitude]"))
		return
	}
	if requestBody.Description == "" {
		config.ErrorStatus("description is required", http.StatusBadRequest, w, fmt.Errorf("empty description"))
		return
	}

	snapshot := requestBody.PatientDetails
	if caller.Role == models.RolePatient {
		snapshot.UserID = caller.ID
	}
	if snapshot.UserID == "" {
		config.ErrorStatus("patient userId is required", http.StatusBadRequest, w, fmt.Errorf("missing patient userId"))
		return
	}

	// fill snapshot gaps from the patient's profile at creation time
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	if patient, err := e.UDB.FindOne(ctx, bson.M{"_id": snapshot.UserID}); err == nil {
		if snapshot.FullName == "" {
			snapshot.FullName = patient.Details.FullName
		}
		if snapshot.PhoneNumber == "" {
			snapshot.PhoneNumber = patient.Details.Phone
		}
		if snapshot.NationalID == "" {
			snapshot.NationalID = patient.Details.NationalID
		}
		if snapshot.InsuranceProvider == "" {
			snapshot.InsuranceProvider = patient.Details.InsuranceProvider
		}
		if snapshot.InsuranceNumber == "" {
			snapshot.InsuranceNumber = patient.Details.InsuranceNumber
		}
	}

	now := time.Now().UTC()
	if requestBody.Location.Type == "" {
		requestBody.Location.Type = "Point"
	}
	details := models.EmergencyDetails{
		Location:    requestBody.Location,
		Description: requestBody.Description,
		Patient:     snapshot,
		Status:      models.StatusPending,
		Payment:     models.Payment{Status: models.PaymentPending},
		Timeline: []models.TimelineEntry{
			{Status: models.StatusPending, Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	newEmergency := models.EmergencyRequest{
		ID:      primitive.NewObjectID().Hex(),
		Details: details,
		Version: 0,
	}

	if _, err := e.DB.InsertOne(ctx, bson.M{"_id": newEmergency.ID, "emergency": newEmergency.Details, "__v": 0}); err != nil {
		config.ErrorStatus("failed to create emergency request", http.StatusInternalServerError, w, err)
		return
	}

	e.Notifier.Publish(LifecycleEvent{
		Type:      EventNewEmergency,
		RequestID: newEmergency.ID,
		Status:    models.StatusPending,
		Location:  &newEmergency.Details.Location,
		PatientID: snapshot.UserID,
	})

	b, err := json.Marshal(newEmergency)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// UpdateEmergencyStatusHandler applies one lifecycle transition. The write is
// a conditional update keyed on the status the caller saw, so two racing
// writers cannot both win; the loser gets a 409 and is expected to re-fetch.
func (e Emergency) UpdateEmergencyStatusHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, fmt.Errorf("unauthenticated request"))
		return
	}

	requestID := mux.Vars(r)["request_id"]
	if _, err := primitive.ObjectIDFromHex(requestID); err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var requestBody updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if !requestBody.Status.Valid() {
		config.ErrorStatus("unknown status value", http.StatusBadRequest, w, fmt.Errorf("status %q is not a lifecycle state", requestBody.Status))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	current, err := e.DB.FindOne(ctx, bson.M{"_id": requestID})
	if err != nil {
		config.ErrorStatus("failed to get emergency request by ID", http.StatusNotFound, w, err)
		return
	}

	if err := e.Policy.Authorize(&current.Details, requestBody.Status, caller); err != nil {
		code := http.StatusConflict
		message := "illegal status transition"
		if errors.Is(err, models.ErrUnauthorizedTransition) {
			code = http.StatusForbidden
			message = "caller may not perform this transition"
		}
		config.ErrorStatus(message, code, w, err)
		return
	}

	now := time.Now().UTC()
	entry := models.TimelineEntry{
		Status:    requestBody.Status,
		Timestamp: now,
		Location:  requestBody.Location,
		Notes:     requestBody.Notes,
	}

	set := bson.M{
		"emergency.status":    requestBody.Status,
		"emergency.updatedAt": now,
	}
	if requestBody.Status == models.StatusAccepted {
		set["emergency.assignedResponder"] = caller.ID
	}
	if requestBody.Status == models.StatusCompleted && caller.Role == models.RoleHospital {
		set["emergency.assignedHospital"] = caller.ID
	}
	if requestBody.Location != nil {
		set["emergency.currentLocation"] = requestBody.Location
	}

	// compare-and-set: the filter pins the status this caller authorized
	// against, so a concurrent transition makes this write miss entirely
	filter := bson.M{"_id": requestID, "emergency.status": current.Details.Status}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"emergency.timeline": entry},
		"$inc":  bson.M{"__v": 1},
	}

	after := options.After
	updated, err := e.DB.FindOneAndUpdate(ctx, filter, update, &options.FindOneAndUpdateOptions{ReturnDocument: &after})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			e.writeStaleStatusError(ctx, w, requestID, requestBody.Status)
			return
		}
		config.ErrorStatus("failed to update emergency request", http.StatusInternalServerError, w, err)
		return
	}

	e.Notifier.Publish(LifecycleEvent{
		Type:        EventStatusUpdate,
		RequestID:   updated.ID,
		Status:      updated.Details.Status,
		Location:    requestBody.Location,
		PatientID:   updated.Details.Patient.UserID,
		ResponderID: updated.Details.AssignedResponder,
	})

	b, err := json.Marshal(updated)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// writeStaleStatusError reports why a conditional status update missed: the
// document is gone (404), another responder claimed it first (409 conflict),
// or the state moved on underneath the caller (409 illegal transition).
func (e Emergency) writeStaleStatusError(ctx context.Context, w http.ResponseWriter, requestID string, requested models.EmergencyStatus) {
	latest, err := e.DB.FindOne(ctx, bson.M{"_id": requestID})
	if err != nil {
		config.ErrorStatus("failed to get emergency request by ID", http.StatusNotFound, w, err)
		return
	}
	if requested == models.StatusAccepted && latest.Details.AssignedResponder != "" {
		config.ErrorStatus("request already claimed by another responder", http.StatusConflict, w,
			fmt.Errorf("request is %s", latest.Details.Status))
		return
	}
	config.ErrorStatus("illegal status transition", http.StatusConflict, w,
		fmt.Errorf("request moved to %s", latest.Details.Status))
}

// nonTerminalFilter matches the request only while it is still open, so a
// write loses cleanly to a racing transition into completed or cancelled.
func nonTerminalFilter(requestID string) bson.M {
	return bson.M{
		"_id": requestID,
		"emergency.status": bson.M{
			"$nin": []models.EmergencyStatus{models.StatusCompleted, models.StatusCancelled},
		},
	}
}

// EmergencyByIDHandler returns an emergency request by ID
func (e Emergency) EmergencyByIDHandler(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	zap.S().Debugf("request_id: %v", requestID)

	if _, err := primitive.ObjectIDFromHex(requestID); err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := e.DB.FindOne(ctx, bson.M{"_id": requestID})
	if err != nil {
		config.ErrorStatus("failed to get emergency request by ID", http.StatusNotFound, w, err)
		return
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// EmergencyListHandler returns emergency requests filtered by status,
// assigned responder or hospital
func (e Emergency) EmergencyListHandler(w http.ResponseWriter, r *http.Request) {
	filter := bson.M{}
	if status := r.URL.Query().Get("status"); status != "" {
		if !models.EmergencyStatus(status).Valid() {
			config.ErrorStatus("unknown status value", http.StatusBadRequest, w, fmt.Errorf("status %q is not a lifecycle state", status))
			return
		}
		filter["emergency.status"] = status
	}
	if responder := r.URL.Query().Get("responder"); responder != "" {
		filter["emergency.assignedResponder"] = responder
	}
	if hospital := r.URL.Query().Get("hospital"); hospital != "" {
		filter["emergency.assignedHospital"] = hospital
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := e.DB.FindPage(ctx, filter, limit, page)
	if err != nil {
		config.ErrorStatus("failed to get emergency requests", http.StatusNotFound, w, err)
		return
	}
	// Because the frontend requires that the data elements exist, if len == 0
	// then we will just return an empty data object
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

// UpdateLocationHandler lets the assigned responder report the current
// location while en route. It does not touch the lifecycle status.
func (e Emergency) UpdateLocationHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, fmt.Errorf("unauthenticated request"))
		return
	}

	requestID := mux.Vars(r)["request_id"]
	if _, err := primitive.ObjectIDFromHex(requestID); err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var location models.GeoPoint
	if err := json.NewDecoder(r.Body).Decode(&location); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if len(location.Coordinates) != 2 {
		config.ErrorStatus("location coordinates are required", http.StatusBadRequest, w, fmt.Errorf("expected [longitude, latitude]"))
		return
	}
	if location.Type == "" {
		location.Type = "Point"
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	current, err := e.DB.FindOne(ctx, bson.M{"_id": requestID})
	if err != nil {
		config.ErrorStatus("failed to get emergency request by ID", http.StatusNotFound, w, err)
		return
	}
	if current.Details.Status.Terminal() {
		config.ErrorStatus("request is already closed", http.StatusConflict, w, fmt.Errorf("request is %s", current.Details.Status))
		return
	}
	if !current.Details.IsAssignedResponder(caller.ID) && caller.Role != models.RoleAdmin {
		config.ErrorStatus("only the assigned responder may update the location", http.StatusForbidden, w,
			fmt.Errorf("caller %s is not assigned", caller.ID))
		return
	}

	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"emergency.currentLocation": location, "emergency.updatedAt": now}}
	res, err := e.DB.UpdateOne(ctx, nonTerminalFilter(requestID), update)
	if err != nil {
		config.ErrorStatus("failed to update location", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		// a racing transition closed the request after the read above
		config.ErrorStatus("request is already closed", http.StatusConflict, w,
			fmt.Errorf("request %s reached a terminal status", requestID))
		return
	}

	e.Notifier.Publish(LifecycleEvent{
		Type:        EventStatusUpdate,
		RequestID:   requestID,
		Status:      current.Details.Status,
		Location:    &location,
		PatientID:   current.Details.Patient.UserID,
		ResponderID: current.Details.AssignedResponder,
	})

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Location updated successfully",
	})
}

// AddTimelineNoteHandler appends a note entry to the request timeline without
// changing status
func (e Emergency) AddTimelineNoteHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, fmt.Errorf("unauthenticated request"))
		return
	}

	requestID := mux.Vars(r)["request_id"]
	if _, err := primitive.ObjectIDFromHex(requestID); err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var requestBody struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if requestBody.Notes == "" {
		config.ErrorStatus("notes are required", http.StatusBadRequest, w, fmt.Errorf("empty notes"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	current, err := e.DB.FindOne(ctx, bson.M{"_id": requestID})
	if err != nil {
		config.ErrorStatus("failed to get emergency request by ID", http.StatusNotFound, w, err)
		return
	}
	if current.Details.Status.Terminal() {
		config.ErrorStatus("request is already closed", http.StatusConflict, w,
			fmt.Errorf("request is %s", current.Details.Status))
		return
	}

	involved := caller.Role == models.RoleAdmin ||
		caller.ID == current.Details.Patient.UserID ||
		current.Details.IsAssignedResponder(caller.ID) ||
		(caller.Role == models.RoleHospital && caller.ID == current.Details.AssignedHospital)
	if !involved {
		config.ErrorStatus("caller is not involved in this request", http.StatusForbidden, w,
			fmt.Errorf("caller %s may not annotate", caller.ID))
		return
	}

	now := time.Now().UTC()
	entry := models.TimelineEntry{Status: current.Details.Status, Timestamp: now, Notes: requestBody.Notes}
	update := bson.M{
		"$push": bson.M{"emergency.timeline": entry},
		"$set":  bson.M{"emergency.updatedAt": now},
	}
	res, err := e.DB.UpdateOne(ctx, nonTerminalFilter(requestID), update)
	if err != nil {
		config.ErrorStatus("failed to add note", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("request is already closed", http.StatusConflict, w,
			fmt.Errorf("request %s reached a terminal status", requestID))
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Note added successfully",
	})
}

// DeleteEmergencyHandler hard-deletes a request. Admin only, and not part of
// the normal lifecycle.
func (e Emergency) DeleteEmergencyHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, fmt.Errorf("unauthenticated request"))
		return
	}
	if caller.Role != models.RoleAdmin {
		config.ErrorStatus("only admins may delete emergency requests", http.StatusForbidden, w,
			fmt.Errorf("role %s may not delete", caller.Role))
		return
	}

	requestID := mux.Vars(r)["request_id"]
	if _, err := primitive.ObjectIDFromHex(requestID); err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if _, err := e.DB.FindOne(ctx, bson.M{"_id": requestID}); err != nil {
		config.ErrorStatus("failed to get emergency request by ID", http.StatusNotFound, w, err)
		return
	}
	if err := e.DB.DeleteOne(ctx, bson.M{"_id": requestID}); err != nil {
		config.ErrorStatus("failed to delete emergency request", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Emergency request deleted",
	})
}
