package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.vocdoni.io/dvote/log"

	"github.com/confledger/confledger/ledger"
)

// APIConfig type represents the configuration for the API HTTP server.
// It includes the host, port and the ledger instance to expose.
type APIConfig struct {
	Host   string
	Port   int
	Ledger *ledger.Ledger
}

// API type represents the API HTTP server exposing one ledger instance.
type API struct {
	router *chi.Mux
	ledger *ledger.Ledger
}

// New creates a new API instance with the given configuration and starts
// the HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Ledger == nil {
		return nil, fmt.Errorf("missing ledger instance")
	}
	a := &API{
		ledger: conf.Ledger,
	}

	// Initialize router
	a.initRouter()
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", InfoEndpoint, "method", "GET")
	a.router.Get(InfoEndpoint, a.info)
	log.Infow("register handler", "endpoint", RoundsEndpoint, "method", "POST")
	a.router.Post(RoundsEndpoint, a.createRound)
	log.Infow("register handler", "endpoint", ActiveRoundEndpoint, "method", "GET")
	a.router.Get(ActiveRoundEndpoint, a.activeRound)
	log.Infow("register handler", "endpoint", RoundEndpoint, "method", "GET")
	a.router.Get(RoundEndpoint, a.round)
	log.Infow("register handler", "endpoint", FinalizeEndpoint, "method", "POST")
	a.router.Post(FinalizeEndpoint, a.finalizeRound)
	log.Infow("register handler", "endpoint", RoundContributionEndpoint, "method", "GET")
	a.router.Get(RoundContributionEndpoint, a.contribution)
	log.Infow("register handler", "endpoint", ContributionsEndpoint, "method", "POST")
	a.router.Post(ContributionsEndpoint, a.newContribution)
	log.Infow("register handler", "endpoint", OperatorsEndpoint, "method", "POST")
	a.router.Post(OperatorsEndpoint, a.setOperator)
	log.Infow("register handler", "endpoint", MintEndpoint, "method", "POST")
	a.router.Post(MintEndpoint, a.mint)
	log.Infow("register handler", "endpoint", BalanceEndpoint, "method", "GET")
	a.router.Get(BalanceEndpoint, a.balance)
	log.Infow("register handler", "endpoint", DecryptEndpoint, "method", "POST")
	a.router.Post(DecryptEndpoint, a.decrypt)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
