package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/custodia/internal/catalog"
)

// CatalogHandler publishes the node's data catalogs
type CatalogHandler struct {
	resolver *catalog.Resolver
	logger   arbor.ILogger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(resolver *catalog.Resolver, logger arbor.ILogger) *CatalogHandler {
	return &CatalogHandler{
		resolver: resolver,
		logger:   logger,
	}
}

// ListCatalogsHandler returns every published catalog
// GET /api/v1/catalogs
func (h *CatalogHandler) ListCatalogsHandler(w http.ResponseWriter, r *http.Request) {
	catalogs := h.resolver.List()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"catalogs": catalogs,
		"count":    len(catalogs),
	})
}

// GetCatalogHandler returns one catalog by ID or name
// GET /api/v1/catalogs/{id}
func (h *CatalogHandler) GetCatalogHandler(w http.ResponseWriter, r *http.Request, ref string) {
	cat, err := h.resolver.GetByIDOrName(ref)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, cat)
}

// ReloadCatalogsHandler re-reads the manifest from disk
// POST /api/v1/catalogs/reload
func (h *CatalogHandler) ReloadCatalogsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := h.resolver.Reload(); err != nil {
		h.logger.Error().Err(err).Msg("Manifest reload failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, "Manifest reloaded")
}
