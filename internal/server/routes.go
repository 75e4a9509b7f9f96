package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Jobs
	mux.HandleFunc("/api/v1/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobRoutes) // /{id} and /{id}/cancel

	// Uploaded files
	mux.HandleFunc("/api/v1/files", s.handleFilesRoute)
	mux.HandleFunc("/api/v1/files/", s.handleFileRoutes) // /{id}

	// Catalogs
	mux.HandleFunc("/api/v1/catalogs", s.app.CatalogHandler.ListCatalogsHandler)
	mux.HandleFunc("/api/v1/catalogs/reload", s.app.CatalogHandler.ReloadCatalogsHandler)
	mux.HandleFunc("/api/v1/catalogs/", s.handleCatalogRoutes) // /{id}

	// Peer registry and discovery
	mux.HandleFunc("/api/v1/nodes", s.handleNodesRoute)
	mux.HandleFunc("/api/v1/nodes/", s.handleNodeRoutes) // /{id}/heartbeat
	mux.HandleFunc("/api/v1/discovery", s.app.NodeHandler.DiscoveryHandler)

	// Analysis request review queue
	mux.HandleFunc("/api/v1/requests", s.handleRequestsRoute)
	mux.HandleFunc("/api/v1/requests/", s.handleRequestRoutes) // /{id}, /{id}/approve, /{id}/deny

	// System
	mux.HandleFunc("/api/v1/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/v1/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/v1/privacy-report", s.app.StatusHandler.PrivacyReportHandler)
	mux.HandleFunc("/api/v1/audit", s.app.AuditHandler.ListAuditHandler)

	return mux
}

func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.JobHandler.SubmitJobHandler(w, r)
	case http.MethodGet:
		s.app.JobHandler.ListJobsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes dispatches /api/v1/jobs/{id} and /api/v1/jobs/{id}/cancel
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodDelete:
		s.app.JobHandler.CancelJobHandler(w, r, parts[0])
	case len(parts) == 1 && parts[0] != "":
		s.app.JobHandler.GetJobHandler(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "cancel":
		s.app.JobHandler.CancelJobHandler(w, r, parts[0])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) handleFilesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.UploadHandler.UploadFileHandler(w, r)
	case http.MethodGet:
		s.app.UploadHandler.ListFilesHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFileRoutes(w http.ResponseWriter, r *http.Request) {
	fileID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/files/"), "/")
	if fileID == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.app.UploadHandler.GetFileHandler(w, r, fileID)
}

func (s *Server) handleCatalogRoutes(w http.ResponseWriter, r *http.Request) {
	ref := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/catalogs/"), "/")
	if ref == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.app.CatalogHandler.GetCatalogHandler(w, r, ref)
}

func (s *Server) handleNodesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.NodeHandler.RegisterNodeHandler(w, r)
	case http.MethodGet:
		s.app.NodeHandler.ListNodesHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleNodeRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/nodes/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 2 && parts[1] == "heartbeat" {
		s.app.NodeHandler.HeartbeatHandler(w, r, parts[0])
		return
	}
	http.Error(w, "Not found", http.StatusNotFound)
}

func (s *Server) handleRequestsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.RequestHandler.CreateRequestHandler(w, r)
	case http.MethodGet:
		s.app.RequestHandler.ListRequestsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRequestRoutes dispatches /{id}, /{id}/approve and /{id}/deny
func (s *Server) handleRequestRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/requests/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		s.app.RequestHandler.GetRequestHandler(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "approve":
		s.app.RequestHandler.ApproveRequestHandler(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "deny":
		s.app.RequestHandler.DenyRequestHandler(w, r, parts[0])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}
