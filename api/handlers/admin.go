package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/medirush/medirush-api/api"
	"github.com/medirush/medirush-api/config"
	"github.com/medirush/medirush-api/databases"
	"github.com/medirush/medirush-api/models"
	templates "github.com/medirush/medirush-api/templates/html"
)

// Admin represents the admin handler
type Admin struct {
	DB databases.UserDatabase
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminLoginResponse struct {
	Token string `json:"token"`
	Admin struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"admin"`
}

// AdminLoginHandler handles admin login via email/password and returns a JWT
func (h Admin) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		config.ErrorStatus("email and password required", http.StatusBadRequest, w, fmt.Errorf("missing credentials"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	admin, err := h.DB.FindOne(ctx, bson.M{"user.email": email, "user.role": models.RoleAdmin})
	if err != nil {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, fmt.Errorf("no matching admin"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.Details.Password), []byte(req.Password)); err != nil {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, err)
		return
	}

	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		config.ErrorStatus("server misconfigured", http.StatusInternalServerError, w, fmt.Errorf("JWT_SECRET not set"))
		return
	}

	claims := jwt.MapClaims{
		"sub":   admin.ID,
		"email": admin.Details.Email,
		"role":  string(models.RoleAdmin),
		"scope": "admin",
		"typ":   "access",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jwtSecret)
	if err != nil {
		config.ErrorStatus("token generation failed", http.StatusInternalServerError, w, err)
		return
	}

	var resp adminLoginResponse
	resp.Token = signed
	resp.Admin.ID = admin.ID
	resp.Admin.Email = admin.Details.Email
	resp.Admin.Role = string(models.RoleAdmin)

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// AdminOnly verifies the admin JWT and injects the admin's identity into the
// request context
func (h Admin) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			config.ErrorStatus("missing bearer token", http.StatusUnauthorized, w, fmt.Errorf("no authorization header"))
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(os.Getenv("JWT_SECRET")), nil
		})
		if err != nil || !token.Valid {
			config.ErrorStatus("invalid token", http.StatusUnauthorized, w, err)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || claims["scope"] != "admin" {
			config.ErrorStatus("invalid token scope", http.StatusForbidden, w, fmt.Errorf("token is not an admin token"))
			return
		}
		sub, _ := claims["sub"].(string)

		ctx := api.WithCaller(r.Context(), models.CallerIdentity{ID: sub, Role: models.RoleAdmin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PendingAccountsHandler lists accounts awaiting approval
func (h Admin) PendingAccountsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := h.DB.Find(ctx, bson.M{"user.status": models.AccountPending})
	if err != nil {
		config.ErrorStatus("failed to get pending accounts", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.User{}
	}
	for i := range dbResp {
		dbResp[i].Details.Password = ""
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// ApproveAccountHandler approves a pending account and notifies the user
func (h Admin) ApproveAccountHandler(w http.ResponseWriter, r *http.Request) {
	h.decideAccount(w, r, true)
}

// RejectAccountHandler rejects a pending account and notifies the user
func (h Admin) RejectAccountHandler(w http.ResponseWriter, r *http.Request) {
	h.decideAccount(w, r, false)
}

func (h Admin) decideAccount(w http.ResponseWriter, r *http.Request, approve bool) {
	userID := mux.Vars(r)["user_id"]
	if _, err := primitive.ObjectIDFromHex(userID); err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var requestBody struct {
		Reason string `json:"reason"`
	}
	// reason is optional, a missing or empty body is fine
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&requestBody)
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	user, err := h.DB.FindOne(ctx, bson.M{"_id": userID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}
	if user.Details.AccountStatus != models.AccountPending {
		config.ErrorStatus("account already reviewed", http.StatusConflict, w,
			fmt.Errorf("account is %s", user.Details.AccountStatus))
		return
	}

	status := models.AccountApproved
	if !approve {
		status = models.AccountRejected
	}
	update := bson.M{"$set": bson.M{
		"user.status":    status,
		"user.updatedAt": time.Now().UTC(),
	}}
	if _, err := h.DB.UpdateOne(ctx, bson.M{"_id": userID}, update); err != nil {
		config.ErrorStatus("failed to update account status", http.StatusInternalServerError, w, err)
		return
	}

	go func() {
		if err := sendAccountDecisionEmail(user.Details.Email, user.Details.FullName, approve, requestBody.Reason); err != nil {
			zap.S().Errorf("failed to send account decision email to %s: %v", user.Details.Email, err)
		}
	}()

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Account " + string(status),
		"status":  status,
	})
}

func sendAccountDecisionEmail(toEmail, fullName string, approved bool, reason string) error {
	subject := "Your MediRush account application"
	if approved {
		subject = "Your MediRush account has been approved"
	}
	from := mail.NewEmail("MediRush", "no-reply@medirush.app")
	to := mail.NewEmail(fullName, toEmail)
	plain := "Your account application has been reviewed."
	html := templates.RenderAccountDecision(fullName, approved, reason)
	msg := mail.NewSingleEmail(from, subject, to, plain, html)
	client := sendgrid.NewSendClient(os.Getenv("SENDGRID_API_KEY"))
	_, err := client.Send(msg)
	return err
}
