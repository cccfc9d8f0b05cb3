package api

import (
	"errors"
	"net/http"

	"purchase-api/internal/purchasing"
	"purchase-api/internal/response"

	"github.com/gin-gonic/gin"
)

// ProductView is the API representation of a catalog product.
type ProductView struct {
	ID      string           `json:"id"`
	StoreID string           `json:"store_id"`
	Kind    string           `json:"kind"`
	Status  string           `json:"status"`
	Price   purchasing.Price `json:"price"`
}

func productView(p *purchasing.Product) ProductView {
	return ProductView{
		ID:      p.ID(),
		StoreID: p.StoreID(),
		Kind:    string(p.Kind()),
		Status:  string(p.Status()),
		Price:   p.Price(),
	}
}

// ListProducts returns the catalog with live status
// GET /api/products
func (h *Handlers) ListProducts(c *gin.Context) {
	if !h.Service.IsInitialized() {
		response.ErrorJSON(c, http.StatusServiceUnavailable, "Purchase service is not initialized")
		return
	}

	products := h.Service.Products()
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, productView(p))
	}
	response.SuccessJSON(c, views)
}

// GetProduct returns a single product by application id
// GET /api/products/:id
func (h *Handlers) GetProduct(c *gin.Context) {
	product, err := h.Service.FindProduct(c.Param("id"))
	if err != nil {
		if errors.Is(err, purchasing.ErrNotInitialized) {
			response.ErrorJSON(c, http.StatusServiceUnavailable, "Purchase service is not initialized")
			return
		}
		response.ErrorJSON(c, http.StatusNotFound, err.Error())
		return
	}
	response.SuccessJSON(c, productView(product))
}
