package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/mock"

	"github.com/medirush/medirush-api/api/handlers"
	"github.com/medirush/medirush-api/databases"
	"github.com/medirush/medirush-api/databases/mocks"
	"github.com/medirush/medirush-api/models"
)

func newInsuranceHandler(emergencies, users databases.CollectionHelper) handlers.Insurance {
	db := &MockDatabaseHelper{}
	db.On("Collection", "emergencies").Return(emergencies)
	db.On("Collection", "users").Return(users)
	return handlers.Insurance{
		DB:  databases.NewEmergencyDatabase(db),
		UDB: databases.NewUserDatabase(db),
	}
}

func TestInsurance_VerifyHandlerRequiresInsurerRole(t *testing.T) {
	req, _ := http.NewRequest("POST", "/api/v1/insurance/verify/"+testRequestID, nil)
	req = mux.SetURLVars(req, map[string]string{"request_id": testRequestID})
	req = asCaller(req, "driver-1", models.RoleDriver)

	i := newInsuranceHandler(&mocks.CollectionHelper{}, &mocks.CollectionHelper{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(i.VerifyInsuranceHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusForbidden {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusForbidden)
	}
}

func TestInsurance_VerifyHandlerNoInsuranceOnRecord(t *testing.T) {
	req, _ := http.NewRequest("POST", "/api/v1/insurance/verify/"+testRequestID, nil)
	req = mux.SetURLVars(req, map[string]string{"request_id": testRequestID})
	req = asCaller(req, "insurer-1", models.RoleInsurance)

	emergencies := &mocks.CollectionHelper{}
	currentResult := &mocks.SingleResultHelper{}
	currentResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.EmergencyRequest)
		(*arg).ID = testRequestID
		(*arg).Details.Status = models.StatusArrived
	})
	emergencies.On("FindOne", mock.Anything, mock.Anything).Return(currentResult)

	i := newInsuranceHandler(emergencies, &mocks.CollectionHelper{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(i.VerifyInsuranceHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusBadRequest)
	}
}

func TestInsurance_VerifyHandlerProviderMismatch(t *testing.T) {
	req, _ := http.NewRequest("POST", "/api/v1/insurance/verify/"+testRequestID, nil)
	req = mux.SetURLVars(req, map[string]string{"request_id": testRequestID})
	req = asCaller(req, "insurer-1", models.RoleInsurance)

	emergencies := &mocks.CollectionHelper{}
	emergencyResult := &mocks.SingleResultHelper{}
	emergencyResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.EmergencyRequest)
		(*arg).ID = testRequestID
		(*arg).Details.Status = models.StatusArrived
		(*arg).Details.Patient.InsuranceProvider = "Jubilee"
		(*arg).Details.Patient.InsuranceNumber = "INS-100"
	})
	emergencies.On("FindOne", mock.Anything, mock.Anything).Return(emergencyResult)

	users := &mocks.CollectionHelper{}
	userResult := &mocks.SingleResultHelper{}
	userResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.User)
		(*arg).ID = "insurer-1"
		(*arg).Details.InsuranceProvider = "Britam"
	})
	users.On("FindOne", mock.Anything, mock.Anything).Return(userResult)

	i := newInsuranceHandler(emergencies, users)

	rr := httptest.NewRecorder()
	http.HandlerFunc(i.VerifyInsuranceHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusForbidden {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusForbidden)
	}
}

func TestInsurance_VerifyHandlerOpensClaim(t *testing.T) {
	req, _ := http.NewRequest("POST", "/api/v1/insurance/verify/"+testRequestID, nil)
	req = mux.SetURLVars(req, map[string]string{"request_id": testRequestID})
	req = asCaller(req, "insurer-1", models.RoleInsurance)

	emergencies := &mocks.CollectionHelper{}
	emergencyResult := &mocks.SingleResultHelper{}
	emergencyResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.EmergencyRequest)
		(*arg).ID = testRequestID
		(*arg).Details.Status = models.StatusArrived
		(*arg).Details.Patient.InsuranceProvider = "Jubilee"
		(*arg).Details.Patient.InsuranceNumber = "INS-100"
	})
	emergencies.On("FindOne", mock.Anything, mock.Anything).Return(emergencyResult)
	emergencies.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	users := &mocks.CollectionHelper{}
	userResult := &mocks.SingleResultHelper{}
	userResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.User)
		(*arg).ID = "insurer-1"
		(*arg).Details.InsuranceProvider = "Jubilee"
	})
	users.On("FindOne", mock.Anything, mock.Anything).Return(userResult)

	i := newInsuranceHandler(emergencies, users)

	rr := httptest.NewRecorder()
	http.HandlerFunc(i.VerifyInsuranceHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v body %v", status, http.StatusOK, rr.Body.String())
	}

	var claim models.InsuranceClaim
	if err := json.Unmarshal(rr.Body.Bytes(), &claim); err != nil {
		t.Fatal(err)
	}
	if claim.ClaimID == "" {
		t.Error("expected a claim ID to be generated")
	}
	if claim.Status != models.ClaimPending {
		t.Errorf("expected claim to start pending, got %v", claim.Status)
	}
	if claim.ProcessedBy != "insurer-1" {
		t.Errorf("expected claim to record the verifying insurer, got %v", claim.ProcessedBy)
	}
}

func TestInsurance_ProcessPaymentHandlerInvalidStatus(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{"amount": 125.50, "status": "maybe"})
	req, _ := http.NewRequest("POST", "/api/v1/insurance/payment/"+testRequestID, bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"request_id": testRequestID})
	req = asCaller(req, "insurer-1", models.RoleInsurance)

	i := newInsuranceHandler(&mocks.CollectionHelper{}, &mocks.CollectionHelper{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(i.ProcessPaymentHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusBadRequest)
	}
}

func TestInsurance_ProcessPaymentHandlerRequiresClaim(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{"amount": 125.50, "status": "processed"})
	req, _ := http.NewRequest("POST", "/api/v1/insurance/payment/"+testRequestID, bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"request_id": testRequestID})
	req = asCaller(req, "insurer-1", models.RoleInsurance)

	emergencies := &mocks.CollectionHelper{}
	emergencyResult := &mocks.SingleResultHelper{}
	emergencyResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.EmergencyRequest)
		(*arg).ID = testRequestID
		(*arg).Details.Status = models.StatusCompleted
	})
	emergencies.On("FindOne", mock.Anything, mock.Anything).Return(emergencyResult)

	i := newInsuranceHandler(emergencies, &mocks.CollectionHelper{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(i.ProcessPaymentHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusConflict {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusConflict)
	}
}

func TestInsurance_RecordsHandlerRequiresInsurerRole(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/v1/insurance/records", nil)
	req = asCaller(req, "patient-1", models.RolePatient)

	i := newInsuranceHandler(&mocks.CollectionHelper{}, &mocks.CollectionHelper{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(i.InsuranceRecordsHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusForbidden {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusForbidden)
	}
}
