package api

import (
	"net/http"

	"purchase-api/internal/purchasing"
	"purchase-api/internal/response"
	"purchase-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// StoreNotificationRequest is the webhook payload the billing backend posts
// for asynchronous purchase outcomes.
type StoreNotificationRequest struct {
	NotificationID string `json:"notification_id"`
	Kind           string `json:"kind" binding:"required,oneof=purchased purchase_failed purchase_deferred"`
	StoreID        string `json:"store_id" binding:"required"`
	Receipt        string `json:"receipt,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// StoreNotification ingests a store webhook notification
// POST /api/store/notifications
//
// The backend retries deliveries on non-2xx responses, so duplicates are
// expected here; replayed notification ids are acknowledged without being
// re-processed, and anything that slips past lands in the orchestrator's own
// duplicate absorption.
func (h *Handlers) StoreNotification(c *gin.Context) {
	var req StoreNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logging.Errorf("Invalid store notification: %v", err)
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid notification format: "+err.Error())
		return
	}

	if h.Replay != nil && h.Replay.IsReplay(c.Request.Context(), req.NotificationID) {
		response.SuccessJSON(c, gin.H{"replayed": true})
		return
	}

	n := purchasing.Notification{
		Kind:    purchasing.NotificationKind(req.Kind),
		StoreID: req.StoreID,
		Receipt: req.Receipt,
		Reason:  purchasing.FailureReason(req.Reason),
	}

	if err := h.Ingest.Ingest(n); err != nil {
		// Not acknowledged: the backend should retry the delivery.
		logging.Errorf("Failed to ingest store notification for %s: %v", req.StoreID, err)
		response.ErrorJSON(c, http.StatusServiceUnavailable, "Notification not accepted: "+err.Error())
		return
	}

	logging.Infof("Store notification accepted - kind: %s, store_id: %s", req.Kind, req.StoreID)
	response.SuccessJSON(c, gin.H{"accepted": true})
}
