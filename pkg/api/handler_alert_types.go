package api

import (
	"net/http"
	"sort"

	echo "github.com/labstack/echo/v5"
)

// AlertTypesResponse is returned by GET /alert-types.
type AlertTypesResponse struct {
	AlertTypes []AlertTypeInfo `json:"alert_types"`
}

// AlertTypeInfo describes a single alert type and its associated chain.
type AlertTypeInfo struct {
	Type        string `json:"type"`
	ChainID     string `json:"chain_id"`
	Description string `json:"description"`
}

// alertTypesHandler handles GET /alert-types.
func (s *Server) alertTypesHandler(c *echo.Context) error {
	chains := s.cfg.ChainRegistry.GetAll()

	alertTypes := []AlertTypeInfo{}
	for chainID, chain := range chains {
		for _, alertType := range chain.AlertTypes {
			alertTypes = append(alertTypes, AlertTypeInfo{
				Type:        alertType,
				ChainID:     chainID,
				Description: chain.Description,
			})
		}
	}

	// Sort by alert type for deterministic output.
	sort.Slice(alertTypes, func(i, j int) bool {
		return alertTypes[i].Type < alertTypes[j].Type
	})

	return c.JSON(http.StatusOK, AlertTypesResponse{AlertTypes: alertTypes})
}
