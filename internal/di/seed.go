package di

import (
	"context"
	"fmt"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/services"
)

type demoProduct struct {
	product domain.Product
	stock   int
}

func demoCatalog() []demoProduct {
	return []demoProduct{
		{product: domain.Product{ID: "sku-mug", Name: "Stoneware Mug", Price: domain.Cents(1800)}, stock: 40},
		{product: domain.Product{ID: "sku-tee", Name: "Organic Cotton Tee", Price: domain.Cents(2500), CompareAtPrice: domain.Cents(3200)}, stock: 25},
		{product: domain.Product{
			ID:    "sku-lamp",
			Name:  "Desk Lamp",
			Price: domain.Cents(6400),
			Deal:  &domain.Deal{ID: "deal-lamp-launch", Price: domain.Cents(4900), StockLimit: 5},
		}, stock: 12},
		{product: domain.Product{ID: "sku-notebook", Name: "Dot Grid Notebook", Price: domain.Cents(900)}, stock: 100},
	}
}

// seedDemo writes a small catalog, its stock levels, and a welcome coupon. Re-running it
// resets stock for the seeded products.
func seedDemo(ctx context.Context, reg repositories.Registry, inventory services.InventoryService, currency string, now time.Time) error {
	for _, item := range demoCatalog() {
		product := item.product
		product.Currency = currency
		product.Active = true
		if err := reg.Catalog().SaveProduct(ctx, product); err != nil {
			return fmt.Errorf("save product %s: %w", product.ID, err)
		}
		if _, err := inventory.SetStock(ctx, product.ID, item.stock); err != nil {
			return fmt.Errorf("set stock %s: %w", product.ID, err)
		}
	}

	coupon := domain.Coupon{
		Code:      "WELCOME10",
		Kind:      domain.CouponPercentage,
		BasisPts:  1000,
		MinSpend:  domain.Cents(2000),
		UsageCap:  500,
		Active:    true,
		UpdatedAt: now,
	}
	if err := reg.Coupons().Save(ctx, coupon); err != nil {
		return fmt.Errorf("save coupon %s: %w", coupon.Code, err)
	}
	return nil
}
