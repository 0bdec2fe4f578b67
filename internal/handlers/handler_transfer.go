package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/branchpay/transfer_processor/internal/apperrors"
	portssvc "github.com/branchpay/transfer_processor/internal/core/ports/services"
	"github.com/branchpay/transfer_processor/internal/dto"
	"github.com/branchpay/transfer_processor/internal/middleware"
	"github.com/gin-gonic/gin"
)

// transferHandler handles HTTP requests related to transfer request records.
type transferHandler struct {
	transferService portssvc.TransferSvcFacade
}

func newTransferHandler(ts portssvc.TransferSvcFacade) *transferHandler {
	return &transferHandler{transferService: ts}
}

// registerTransferRoutes registers routes related to transfer requests.
func registerTransferRoutes(rg *gin.RouterGroup, transferService portssvc.TransferSvcFacade) {
	h := newTransferHandler(transferService)

	transfers := rg.Group("/transfers")
	{
		transfers.GET("/:transferID", h.getTransfer)
	}
}

// getTransfer returns one transfer request record with its outcome. Transfers
// are never created or mutated through this API; the record's terminal state
// is the only externally visible artifact of processing.
func (h *transferHandler) getTransfer(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	transferID := c.Param("transferID")

	transfer, err := h.transferService.GetTransferByID(c.Request.Context(), transferID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transfer not found"})
		} else {
			logger.Error("Failed to retrieve transfer", slog.String("error", err.Error()), slog.String("transfer_id", transferID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve transfer"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ToTransferResponse(transfer))
}
