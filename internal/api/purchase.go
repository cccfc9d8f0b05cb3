package api

import (
	"errors"
	"net/http"

	"purchase-api/internal/purchasing"
	"purchase-api/internal/response"
	"purchase-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// PurchaseRequest represents a purchase request
type PurchaseRequest struct {
	ProductID     string `json:"product_id" binding:"required"`
	TransactionID string `json:"transaction_id,omitempty"` // optional caller-supplied id
}

// TransactionView is the API representation of a transaction outcome.
type TransactionView struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
}

func transactionView(tx *purchasing.Transaction) TransactionView {
	return TransactionView{
		ID:        tx.ID(),
		ProductID: tx.Product().ID(),
		State:     string(tx.State()),
		Error:     tx.Err(),
	}
}

// PurchaseProduct drives a purchase to a terminal state and returns it
// POST /api/purchase
func (h *Handlers) PurchaseProduct(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	ctx := c.Request.Context()

	var tx *purchasing.Transaction
	var err error
	if req.TransactionID != "" {
		var product *purchasing.Product
		product, err = h.Service.FindProduct(req.ProductID)
		if err == nil {
			tx, err = h.Service.PurchaseTransaction(ctx, purchasing.NewTransaction(product, req.TransactionID))
		}
	} else {
		tx, err = h.Service.Purchase(ctx, req.ProductID)
	}

	if err != nil {
		logging.Errorf("Purchase of %q failed: %v", req.ProductID, err)
		switch {
		case errors.Is(err, purchasing.ErrNotFound):
			response.ErrorJSON(c, http.StatusNotFound, err.Error())
		case errors.Is(err, purchasing.ErrConflict):
			response.ErrorJSON(c, http.StatusConflict, err.Error())
		case errors.Is(err, purchasing.ErrNotInitialized), errors.Is(err, purchasing.ErrLifecycle):
			response.ErrorJSON(c, http.StatusServiceUnavailable, err.Error())
		default:
			response.ErrorJSON(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	response.SuccessJSON(c, transactionView(tx))
}

// ConfirmRequest represents an entitlement confirmation request
type ConfirmRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

// ConfirmProduct acknowledges the entitlement grant for a purchased product
// POST /api/confirm
func (h *Handlers) ConfirmProduct(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	product, err := h.Service.FindProduct(req.ProductID)
	if err != nil {
		if errors.Is(err, purchasing.ErrNotInitialized) {
			response.ErrorJSON(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		response.ErrorJSON(c, http.StatusNotFound, err.Error())
		return
	}

	if err := h.Service.Confirm(product); err != nil {
		response.ErrorJSON(c, http.StatusBadGateway, err.Error())
		return
	}

	response.SuccessJSON(c, productView(product))
}

// RestorePurchases replays prior entitlements from the store backend
// POST /api/restore
func (h *Handlers) RestorePurchases(c *gin.Context) {
	if err := h.Service.Restore(c.Request.Context()); err != nil {
		switch {
		case errors.Is(err, purchasing.ErrNotInitialized), errors.Is(err, purchasing.ErrLifecycle):
			response.ErrorJSON(c, http.StatusServiceUnavailable, err.Error())
		default:
			response.ErrorJSON(c, http.StatusBadGateway, err.Error())
		}
		return
	}
	response.SuccessJSON(c, gin.H{"restored": true})
}
