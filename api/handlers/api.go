package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/medirush/medirush-api/api"
	"github.com/medirush/medirush-api/api/scheduler"
	"github.com/medirush/medirush-api/config"
	"github.com/medirush/medirush-api/databases"
	"github.com/medirush/medirush-api/models"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router   *mux.Router
	Config   config.Config
	Notifier *Notifier
	dbHelper databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	r := mux.NewRouter()

	userDB := databases.NewUserDatabase(a.dbHelper)
	emergencyDB := databases.NewEmergencyDatabase(a.dbHelper)

	if a.Notifier == nil {
		a.Notifier = NewNotifier(os.Getenv("REDIS_URL"))
	}

	u := User{DB: userDB}
	e := Emergency{DB: emergencyDB, UDB: userDB, Notifier: a.Notifier, Policy: transitionPolicyFromEnv()}
	ins := Insurance{DB: emergencyDB, UDB: userDB}
	adm := Admin{DB: userDB}
	att := AttachmentHandler{}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	// notification channels
	r.HandleFunc("/ws/notifications", HandleNotificationsWebSocket)
	r.Handle("/socket.io/", InitializeSocketIO())

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/auth/register", http.HandlerFunc(u.RegisterHandler)).Methods("POST")
	apiCreate.Handle("/auth/check-email", http.HandlerFunc(u.CheckEmailHandler)).Methods("POST")
	apiCreate.Handle("/auth/token", api.Middleware(http.HandlerFunc(m.CreateToken))).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")
	apiCreate.Handle("/auth/me", api.Middleware(http.HandlerFunc(u.MeHandler))).Methods("GET")

	apiCreate.Handle("/emergency", api.Middleware(http.HandlerFunc(e.CreateEmergencyHandler))).Methods("POST")
	apiCreate.Handle("/emergencies", api.Middleware(http.HandlerFunc(e.EmergencyListHandler))).Methods("GET")
	apiCreate.Handle("/emergency/{request_id}", api.Middleware(http.HandlerFunc(e.EmergencyByIDHandler))).Methods("GET")
	apiCreate.Handle("/emergency/{request_id}", api.Middleware(http.HandlerFunc(e.DeleteEmergencyHandler))).Methods("DELETE")
	apiCreate.Handle("/emergency/{request_id}/status", api.Middleware(http.HandlerFunc(e.UpdateEmergencyStatusHandler))).Methods("PUT")
	apiCreate.Handle("/emergency/{request_id}/location", api.Middleware(http.HandlerFunc(e.UpdateLocationHandler))).Methods("PUT")
	apiCreate.Handle("/emergency/{request_id}/note", api.Middleware(http.HandlerFunc(e.AddTimelineNoteHandler))).Methods("POST")

	apiCreate.Handle("/insurance/verify/{request_id}", api.Middleware(http.HandlerFunc(ins.VerifyInsuranceHandler))).Methods("POST")
	apiCreate.Handle("/insurance/payment/{request_id}", api.Middleware(http.HandlerFunc(ins.ProcessPaymentHandler))).Methods("POST")
	apiCreate.Handle("/insurance/records", api.Middleware(http.HandlerFunc(ins.InsuranceRecordsHandler))).Methods("GET")
	apiCreate.Handle("/insurance/attachments/signature", api.Middleware(http.HandlerFunc(att.GenerateSignature))).Methods("POST")

	apiCreate.Handle("/user/{user_id}", api.Middleware(http.HandlerFunc(u.UserHandler))).Methods("GET")

	apiCreate.Handle("/admin/login", http.HandlerFunc(adm.AdminLoginHandler)).Methods("POST")
	apiCreate.Handle("/admin/pending-accounts", adm.AdminOnly(http.HandlerFunc(adm.PendingAccountsHandler))).Methods("GET")
	apiCreate.Handle("/admin/accounts/{user_id}/approve", adm.AdminOnly(http.HandlerFunc(adm.ApproveAccountHandler))).Methods("PUT")
	apiCreate.Handle("/admin/accounts/{user_id}/reject", adm.AdminOnly(http.HandlerFunc(adm.RejectAccountHandler))).Methods("PUT")

	apiCreate.Handle("/metrics/summary", adm.AdminOnly(http.HandlerFunc(api.MetricsSummaryHandler))).Methods("GET")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("medirush-api has connected to the database")

	api.InitMetrics()

	// initialize api router
	a.initializeRoutes()

	// background sweep for requests stuck in pending
	s := scheduler.NewScheduler(
		databases.NewEmergencyDatabase(a.dbHelper),
		databases.NewUserDatabase(a.dbHelper),
		databases.NewSchedulerLockDatabase(a.dbHelper),
	)
	s.Start()

	return nil
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
	a.Router.Use(api.MetricsMiddleware)
	a.Router.Use(api.TimeoutMiddleware(30 * time.Second))
}

// transitionPolicyFromEnv reads the cancel-after-arrival policy; the sources
// this service replaces disagreed on it, so it stays configurable.
func transitionPolicyFromEnv() models.TransitionPolicy {
	p := models.DefaultTransitionPolicy
	if os.Getenv("ALLOW_CANCEL_AFTER_ARRIVAL") == "false" {
		p.AllowCancelAfterArrival = false
	}
	return p
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
