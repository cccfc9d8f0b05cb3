package api

import (
	"net/http"
	"strconv"

	"purchase-api/internal/database"
	"purchase-api/internal/response"

	"github.com/gin-gonic/gin"
)

// GetTransactionHistory returns persisted terminal transactions
// GET /api/transactions?product_id=&limit=
func (h *Handlers) GetTransactionHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	if productID := c.Query("product_id"); productID != "" {
		records, err := database.GetTransactionsByProduct(productID, limit)
		if err != nil {
			response.ErrorJSON(c, http.StatusInternalServerError, "Failed to load transaction history")
			return
		}
		response.SuccessJSON(c, records)
		return
	}

	records, err := database.GetTransactionHistory(limit)
	if err != nil {
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to load transaction history")
		return
	}
	response.SuccessJSON(c, records)
}
