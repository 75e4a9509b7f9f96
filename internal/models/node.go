package models

import "time"

// Node describes a peer node known to this one. The local node registers
// itself at startup; peers are added through the registry API.
type Node struct {
	ID          string    `json:"node_id" badgerhold:"key"`
	Name        string    `json:"name"`
	Institution string    `json:"institution"`
	EndpointURL string    `json:"endpoint_url"`
	IsActive    bool      `json:"is_active"`
	LastSeen    time.Time `json:"last_seen"`
	CreatedAt   time.Time `json:"created_at"`
}
