// -----------------------------------------------------------------------
// Node handler - peer registry and discovery surface
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/custodia/internal/catalog"
	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
	"github.com/ternarybob/custodia/internal/models"
)

// NodeHandler serves the peer-node registry
type NodeHandler struct {
	nodes    interfaces.NodeStorage
	resolver *catalog.Resolver
	config   *common.Config
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(nodes interfaces.NodeStorage, resolver *catalog.Resolver, config *common.Config, logger arbor.ILogger) *NodeHandler {
	return &NodeHandler{
		nodes:    nodes,
		resolver: resolver,
		config:   config,
		validate: validator.New(),
		logger:   logger,
	}
}

type registerNodeRequest struct {
	NodeID      string `json:"node_id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Institution string `json:"institution"`
	EndpointURL string `json:"endpoint_url" validate:"required,url"`
}

// RegisterNodeHandler upserts a peer node
// POST /api/v1/nodes
func (h *NodeHandler) RegisterNodeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req registerNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	node := &models.Node{
		ID:          req.NodeID,
		Name:        req.Name,
		Institution: req.Institution,
		EndpointURL: req.EndpointURL,
		IsActive:    true,
		LastSeen:    time.Now().UTC(),
	}
	if err := h.nodes.UpsertNode(r.Context(), node); err != nil {
		h.logger.Error().Err(err).Msg("Failed to register node")
		WriteError(w, http.StatusInternalServerError, "Failed to register node")
		return
	}
	WriteJSON(w, http.StatusCreated, node)
}

// ListNodesHandler returns known peers
// GET /api/v1/nodes?active=true
func (h *NodeHandler) ListNodesHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	nodes, err := h.nodes.ListNodes(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list nodes")
		WriteError(w, http.StatusInternalServerError, "Failed to list nodes")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": nodes,
		"count": len(nodes),
	})
}

// HeartbeatHandler stamps a peer as recently seen
// POST /api/v1/nodes/{id}/heartbeat
func (h *NodeHandler) HeartbeatHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := h.nodes.TouchNode(r.Context(), nodeID); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "Heartbeat recorded")
}

// DiscoveryHandler describes this node to its peers
// GET /api/v1/discovery
func (h *NodeHandler) DiscoveryHandler(w http.ResponseWriter, r *http.Request) {
	catalogs := h.resolver.List()
	summaries := make([]map[string]interface{}, len(catalogs))
	for i, cat := range catalogs {
		summaries[i] = map[string]interface{}{
			"id":            cat.ID,
			"name":          cat.Name,
			"description":   cat.Description,
			"data_type":     cat.DataType,
			"privacy_level": cat.PrivacyLevel,
		}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"node_id":       h.config.Node.NodeID,
		"institution":   h.config.Node.InstitutionName,
		"version":       common.GetVersion(),
		"allowed_kinds": h.config.Execution.AllowedScriptKinds,
		"catalogs":      summaries,
	})
}
