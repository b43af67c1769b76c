package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

// CatalogServiceDeps bundles constructor inputs for the catalog reader.
type CatalogServiceDeps struct {
	Catalog repositories.CatalogRepository
}

type catalogService struct {
	repo repositories.CatalogRepository
}

// NewCatalogReader exposes the catalog repository as the read-only collaborator the engine
// consults at cart mutation and quote time. Inactive products read as missing.
func NewCatalogReader(deps CatalogServiceDeps) (CatalogReader, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	return &catalogService{repo: deps.Catalog}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		return Product{}, mapRepositoryError(err, "product "+productID)
	}
	if !product.Active {
		return Product{}, fmt.Errorf("%w: product %s is not available for sale", ErrNotFound, productID)
	}
	if product.Price < 0 {
		return Product{}, fmt.Errorf("%w: product %s has a negative price", ErrInvalidInput, productID)
	}
	return product, nil
}
