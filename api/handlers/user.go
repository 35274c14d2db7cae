package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/medirush/medirush-api/api"
	"github.com/medirush/medirush-api/config"
	"github.com/medirush/medirush-api/databases"
	"github.com/medirush/medirush-api/models"
)

// User exported for testing purposes
type User struct {
	DB databases.UserDatabase
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RegisterHandler creates a new account. Responder, hospital and insurance
// accounts start in pending status and must be approved by an admin before
// they can log in; patient accounts are approved immediately.
func (u User) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var user models.UserDetails
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	if user.FullName == "" || user.Email == "" || user.Password == "" {
		config.ErrorStatus("fullName, email and password are required", http.StatusBadRequest, w, fmt.Errorf("missing required fields"))
		return
	}
	if !emailPattern.MatchString(user.Email) {
		config.ErrorStatus("invalid email address", http.StatusBadRequest, w, fmt.Errorf("email %q is not valid", user.Email))
		return
	}
	if len(user.Password) < 6 {
		config.ErrorStatus("password must be at least 6 characters", http.StatusBadRequest, w, fmt.Errorf("password too short"))
		return
	}
	if !user.Role.Valid() || user.Role == models.RoleAdmin {
		config.ErrorStatus("invalid role", http.StatusBadRequest, w, fmt.Errorf("role %q is not registerable", user.Role))
		return
	}
	if user.Role == models.RolePatient && user.NationalID == "" {
		config.ErrorStatus("nationalId is required for patients", http.StatusBadRequest, w, fmt.Errorf("missing nationalId"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	// check if the user already exists
	existingUser, _ := u.DB.FindOne(ctx, bson.M{"user.email": user.Email})
	if existingUser != nil {
		config.ErrorStatus("email already exists", http.StatusConflict, w, fmt.Errorf("duplicate email"))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}
	user.Password = string(hashedPassword)

	// patients can use the service right away, everyone else waits for review
	if user.Role == models.RolePatient {
		user.AccountStatus = models.AccountApproved
	} else {
		user.AccountStatus = models.AccountPending
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	newUser := models.User{
		ID:      primitive.NewObjectID().Hex(),
		Details: user,
	}
	if _, err := u.DB.InsertOne(ctx, bson.M{"_id": newUser.ID, "user": newUser.Details, "__v": 0}); err != nil {
		config.ErrorStatus("failed to insert user", http.StatusInternalServerError, w, err)
		return
	}

	// never echo the hash back
	newUser.Details.Password = ""

	b, err := json.Marshal(newUser)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// CheckEmailHandler checks if an email is already registered using POST
func (u User) CheckEmailHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var user models.UserDetails
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	existingUser, _ := u.DB.FindOne(ctx, bson.M{"user.email": user.Email})
	if existingUser != nil {
		config.ErrorStatus("email already exists", http.StatusConflict, w, fmt.Errorf("duplicate email"))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// MeHandler returns the authenticated caller's profile
func (u User) MeHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, fmt.Errorf("unauthenticated request"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := u.DB.FindOne(ctx, bson.M{"_id": caller.ID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}
	dbResp.Details.Password = ""

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UserHandler returns a user given a userID
func (u User) UserHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	zap.S().Debugf("user_id: %v", userID)

	if _, err := primitive.ObjectIDFromHex(userID); err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := u.DB.FindOne(ctx, bson.M{"_id": userID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}
	dbResp.Details.Password = ""

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
