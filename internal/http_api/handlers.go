package http_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bloomfund/relayer/pkg/validation"
)

// PolicyResponse wraps a mirror row and spells out that it is the
// eventually consistent off-chain copy, not chain truth.
type PolicyResponse struct {
	Address    string `json:"address"`
	Tier       uint64 `json:"tier"`
	LastPaidAt int64  `json:"last_paid_at"`
	TotalPaid  string `json:"total_paid"`
	Active     bool   `json:"active"`
	Source     string `json:"source"`
}

// ForceReauthorizationResponse reports how many authorizations were
// deactivated for the user.
type ForceReauthorizationResponse struct {
	Success     bool   `json:"success"`
	Address     string `json:"address"`
	Deactivated int64  `json:"deactivated"`
}

// health is a handler for the /health endpoint.
func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// lastRun returns the report of the most recent relayer run.
func (s *HTTPServer) lastRun(c *gin.Context) {
	report := s.relayer.LastRun()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "no run has completed yet",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// policy returns the off-chain policy mirror for an address.
func (s *HTTPServer) policy(c *gin.Context) {
	address := c.Param("address")
	if err := validation.ValidateAddress(address); err != nil {
		s.logger.Debug("Invalid address", "error", err, "address", address)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid address: " + err.Error(),
		})
		return
	}

	mirror, err := s.relayer.PolicyMirror(address)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "policy not found",
		})
		return
	}

	c.JSON(http.StatusOK, PolicyResponse{
		Address:    mirror.UserAddress,
		Tier:       mirror.Tier,
		LastPaidAt: mirror.LastPaidAt,
		TotalPaid:  mirror.TotalPaid,
		Active:     mirror.Active,
		Source:     "mirror",
	})
}

// forceReauthorization deactivates a user's authorizations so the next
// charge requires a fresh signature.
func (s *HTTPServer) forceReauthorization(c *gin.Context) {
	address := c.Param("address")

	deactivated, err := s.relayer.ForceReauthorization(address)
	if err != nil {
		s.logger.Debug("Invalid address", "error", err, "address", address)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid address: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, ForceReauthorizationResponse{
		Success:     true,
		Address:     validation.NormalizeAddress(address),
		Deactivated: deactivated,
	})
}
