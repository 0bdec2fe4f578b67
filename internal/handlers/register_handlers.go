package handlers

import (
	"net/http"

	portssvc "github.com/branchpay/transfer_processor/internal/core/ports/services"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires the read-only API onto the router group. The core has
// no write surface over HTTP: transfer requests are created by the intake
// collaborator and resolved by the background processor.
func RegisterRoutes(v1 *gin.RouterGroup, transferService portssvc.TransferSvcFacade, ledgerService portssvc.LedgerSvcFacade) {
	registerTransferRoutes(v1, transferService)
	registerLedgerRoutes(v1, ledgerService)
}

// Health is a liveness probe endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
