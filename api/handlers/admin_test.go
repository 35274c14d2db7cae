package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/medirush/medirush-api/api/handlers"
	"github.com/medirush/medirush-api/databases"
	"github.com/medirush/medirush-api/databases/mocks"
	"github.com/medirush/medirush-api/models"
)

func newAdminHandler(conn databases.CollectionHelper) handlers.Admin {
	db := &MockDatabaseHelper{}
	db.On("Collection", "users").Return(conn)
	return handlers.Admin{DB: databases.NewUserDatabase(db)}
}

func TestAdmin_LoginHandlerMissingCredentials(t *testing.T) {
	body, _ := json.Marshal(map[string]string{"email": ""})
	req, _ := http.NewRequest("POST", "/api/v1/admin/login", bytes.NewReader(body))

	h := newAdminHandler(&mocks.CollectionHelper{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AdminLoginHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusBadRequest)
	}
}

func TestAdmin_LoginHandlerUnknownAdmin(t *testing.T) {
	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "password": "hunter22"})
	req, _ := http.NewRequest("POST", "/api/v1/admin/login", bytes.NewReader(body))

	conn := &mocks.CollectionHelper{}
	singleResultHelper := &mocks.SingleResultHelper{}
	singleResultHelper.On("Decode", mock.Anything).Return(errors.New("mongo: no documents in result"))
	conn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)

	h := newAdminHandler(conn)

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AdminLoginHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusUnauthorized {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusUnauthorized)
	}
}

func TestAdmin_LoginHandlerIssuesToken(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")
	defer os.Unsetenv("JWT_SECRET")

	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.DefaultCost)

	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "password": "hunter22"})
	req, _ := http.NewRequest("POST", "/api/v1/admin/login", bytes.NewReader(body))

	conn := &mocks.CollectionHelper{}
	singleResultHelper := &mocks.SingleResultHelper{}
	singleResultHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.User)
		(*arg).ID = "608cafe595eb9dc05379b7f4"
		(*arg).Details.Email = "admin@example.com"
		(*arg).Details.Password = string(hash)
		(*arg).Details.Role = models.RoleAdmin
	})
	conn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)

	h := newAdminHandler(conn)

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AdminLoginHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v body %v", status, http.StatusOK, rr.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		Admin struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"admin"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" {
		t.Error("expected a signed token in the response")
	}
	if resp.Admin.ID != "608cafe595eb9dc05379b7f4" {
		t.Errorf("unexpected admin id: %v", resp.Admin.ID)
	}
}

func TestAdmin_AdminOnlyMissingToken(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/v1/admin/pending-accounts", nil)

	h := newAdminHandler(&mocks.CollectionHelper{})

	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	rr := httptest.NewRecorder()
	h.AdminOnly(inner).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusUnauthorized {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusUnauthorized)
	}
	if called {
		t.Error("inner handler must not run without a valid token")
	}
}

func TestAdmin_AdminOnlyGarbageToken(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")
	defer os.Unsetenv("JWT_SECRET")

	req, _ := http.NewRequest("GET", "/api/v1/admin/pending-accounts", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")

	h := newAdminHandler(&mocks.CollectionHelper{})

	rr := httptest.NewRecorder()
	h.AdminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusUnauthorized {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusUnauthorized)
	}
}

func TestAdmin_ApproveAccountHandlerBadID(t *testing.T) {
	req, _ := http.NewRequest("PUT", "/api/v1/admin/accounts/asdf/approve", nil)
	req = mux.SetURLVars(req, map[string]string{"user_id": "asdf"})

	h := newAdminHandler(&mocks.CollectionHelper{})

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.ApproveAccountHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusBadRequest)
	}
}

func TestAdmin_ApproveAccountHandlerAlreadyReviewed(t *testing.T) {
	req, _ := http.NewRequest("PUT", "/api/v1/admin/accounts/"+testRequestID+"/approve", nil)
	req = mux.SetURLVars(req, map[string]string{"user_id": testRequestID})

	conn := &mocks.CollectionHelper{}
	singleResultHelper := &mocks.SingleResultHelper{}
	singleResultHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.User)
		(*arg).ID = testRequestID
		(*arg).Details.AccountStatus = models.AccountApproved
	})
	conn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)

	h := newAdminHandler(conn)

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.ApproveAccountHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusConflict {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusConflict)
	}
}

func TestAdmin_ApproveAccountHandlerNoBody(t *testing.T) {
	// the decision reason is optional, a request without a body must work
	req, _ := http.NewRequest("PUT", "/api/v1/admin/accounts/"+testRequestID+"/approve", nil)
	req = mux.SetURLVars(req, map[string]string{"user_id": testRequestID})

	conn := &mocks.CollectionHelper{}
	singleResultHelper := &mocks.SingleResultHelper{}
	singleResultHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.User)
		(*arg).ID = testRequestID
		(*arg).Details.Email = "driver@example.com"
		(*arg).Details.AccountStatus = models.AccountPending
	})
	conn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	h := newAdminHandler(conn)

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.ApproveAccountHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v body %v", status, http.StatusOK, rr.Body.String())
	}

	var resp struct {
		Status models.AccountStatus `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != models.AccountApproved {
		t.Errorf("unexpected status: %v", resp.Status)
	}
}

func TestAdmin_PendingAccountsHandlerEmpty(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/v1/admin/pending-accounts", nil)

	conn := &mocks.CollectionHelper{}
	cursorHelper := &mocks.CursorHelper{}
	cursorHelper.On("Decode", mock.Anything).Return(nil)
	conn.On("Find", mock.Anything, mock.Anything).Return(cursorHelper)

	h := newAdminHandler(conn)

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.PendingAccountsHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}
	if rr.Body.String() != "[]" {
		t.Errorf("expected empty array, got %v", rr.Body.String())
	}
}
