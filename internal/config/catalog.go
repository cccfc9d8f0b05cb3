package config

import (
	"encoding/json"
	"fmt"
	"os"

	"purchase-api/internal/purchasing"
)

// CatalogFile is the on-disk product catalog format:
//
//	{"products": [{"id": "gold_100", "kind": "consumable",
//	               "store_ids": {"ios": "com.example.gold100"}}]}
type CatalogFile struct {
	Products []purchasing.ProductDef `json:"products"`
}

// LoadCatalog reads the product catalog definition file.
func LoadCatalog(path string) ([]purchasing.ProductDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file CatalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	if len(file.Products) == 0 {
		return nil, fmt.Errorf("catalog file %s declares no products", path)
	}
	return file.Products, nil
}
