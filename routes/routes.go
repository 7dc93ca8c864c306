package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/checkauto/checkauto-api/config"
	"github.com/checkauto/checkauto-api/handlers"
	"github.com/checkauto/checkauto-api/middleware"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	// Public routes (no authentication)
	r.HandleFunc("/register", handlers.Register).Methods("POST")
	r.HandleFunc("/login", handlers.Login).Methods("POST")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.PathPrefix("/media/").Handler(
		http.StripPrefix("/media/", http.FileServer(http.Dir(config.MediaRoot()))),
	)

	// Protected API routes (require JWT authentication)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.MetricsMiddleware)
	api.Use(middleware.JWTMiddleware)

	api.HandleFunc("/me", handlers.Me).Methods("GET")

	// Tenants and memberships
	api.HandleFunc("/oficinas", handlers.CreateTenant).Methods("POST")
	api.HandleFunc("/oficinas/minha", handlers.GetMyTenant).Methods("GET")
	api.HandleFunc("/oficinas/minha", handlers.UpdateTenant).Methods("PATCH", "PUT")
	api.HandleFunc("/oficinas/minha/membros", handlers.ListMembers).Methods("GET")
	api.HandleFunc("/oficinas/minha/membros", handlers.AddMember).Methods("POST")
	api.HandleFunc("/oficinas/minha/membros/{id}", handlers.UpdateMember).Methods("PATCH", "PUT")

	// Stage catalog and photo slots
	api.HandleFunc("/etapas", handlers.ListStages).Methods("GET")
	api.HandleFunc("/etapas", handlers.CreateStage).Methods("POST")
	api.HandleFunc("/etapas/{id}", handlers.UpdateStage).Methods("PATCH", "PUT")
	api.HandleFunc("/configs-foto", handlers.ListPhotoRequirements).Methods("GET")
	api.HandleFunc("/configs-foto", handlers.CreatePhotoRequirement).Methods("POST")
	api.HandleFunc("/configs-foto/{id}", handlers.UpdatePhotoRequirement).Methods("PATCH", "PUT")

	// Work orders
	api.HandleFunc("/os", handlers.CreateWorkOrder).Methods("POST")
	api.HandleFunc("/os", handlers.ListWorkOrders).Methods("GET")
	api.HandleFunc("/os/{id}", handlers.GetWorkOrder).Methods("GET")
	api.HandleFunc("/os/{id}", handlers.UpdateWorkOrder).Methods("PATCH", "PUT")
	api.HandleFunc("/os/{id}/avancar", handlers.AdvanceWorkOrder).Methods("POST")
	api.HandleFunc("/os/{id}/concluir-etapa", handlers.CompleteStage).Methods("POST")
	api.HandleFunc("/os/{id}/reabrir-etapa", handlers.ReopenStage).Methods("POST")
	api.HandleFunc("/os/{id}/nota-etapa", handlers.UpsertStageNote).Methods("POST", "PUT")
	api.HandleFunc("/os/{id}/proxima-etapa", handlers.NextStagePreview).Methods("GET")

	// Photos
	api.HandleFunc("/fotos", handlers.UploadPhoto).Methods("POST")
	api.HandleFunc("/fotos", handlers.ListPhotos).Methods("GET")

	// Offline sync
	api.HandleFunc("/sync", handlers.SyncBatch).Methods("POST")

	// Dashboard and reports
	api.HandleFunc("/dashboard/resumo", handlers.DashboardSummary).Methods("GET")
	api.HandleFunc("/pwa/em-producao", handlers.InProduction).Methods("GET")
	api.HandleFunc("/relatorios/os/excel", handlers.ExportWorkOrdersExcel).Methods("GET")
	api.HandleFunc("/relatorios/os/csv", handlers.ExportWorkOrdersCSV).Methods("GET")

	// Remote storage
	api.HandleFunc("/storage/status", handlers.StorageStatus).Methods("GET")

	return r
}
