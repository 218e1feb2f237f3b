package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beskarliquidator/internal/api/handlers"
	"beskarliquidator/internal/api/middleware"
	"beskarliquidator/internal/lifecycle"
	"beskarliquidator/pkg/utils"
)

// SetupRoutes wires the three HTTP routes the core exposes (§6) behind the
// shared recovery/logging/CORS middleware chain.
func SetupRoutes(engine *lifecycle.Engine, log *utils.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS)

	loanHandler := handlers.NewLoanHandler(engine, log)

	router.HandleFunc("/loan-applications", loanHandler.PostLoanApplication).Methods(http.MethodPost)
	router.HandleFunc("/collateral-top-ups", loanHandler.PostCollateralTopUp).Methods(http.MethodPost)
	router.HandleFunc("/loans", loanHandler.GetLoans).Methods(http.MethodGet)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}
