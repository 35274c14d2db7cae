package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/medirush/medirush-api/api"
	"github.com/medirush/medirush-api/databases"
	"github.com/medirush/medirush-api/databases/mocks"
	"github.com/medirush/medirush-api/models"
)

// newTokenEndpoint builds the token route the way the router wires it, with
// the basic-auth strategy in front of CreateToken.
func newTokenEndpoint(t *testing.T, password string) http.Handler {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	assert.NoError(t, err)

	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}

	cursor.On("Decode", mock.Anything).Run(func(args mock.Arguments) {
		users := args.Get(0).(*[]models.User)
		*users = []models.User{{
			ID: "user-1",
			Details: models.UserDetails{
				Email:         "patient@example.com",
				Password:      string(hash),
				Role:          models.RolePatient,
				AccountStatus: models.AccountApproved,
			},
		}}
	}).Return(nil)
	conn.On("Find", mock.Anything, mock.Anything).Return(cursor)
	db.On("Collection", "users").Return(conn)

	m := api.MiddlewareDB{DB: databases.NewUserDatabase(db)}
	m.SetupGoGuardian()
	return api.Middleware(http.HandlerFunc(m.CreateToken))
}

func TestCreateToken_WrongPasswordRejected(t *testing.T) {
	endpoint := newTokenEndpoint(t, "real-password")

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	req.SetBasicAuth("patient@example.com", "totally-wrong-password")
	rr := httptest.NewRecorder()
	endpoint.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotContains(t, rr.Body.String(), "token")
}

func TestCreateToken_MissingCredentialsRejected(t *testing.T) {
	endpoint := newTokenEndpoint(t, "real-password")

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	rr := httptest.NewRecorder()
	endpoint.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateToken_ValidCredentialsIssueToken(t *testing.T) {
	endpoint := newTokenEndpoint(t, "real-password")

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	req.SetBasicAuth("patient@example.com", "real-password")
	rr := httptest.NewRecorder()
	endpoint.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "user-1", body["_id"])
	assert.Equal(t, string(models.RolePatient), body["role"])
}
