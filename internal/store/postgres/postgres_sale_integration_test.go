package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"tokomitra/backend/internal/domain"
	"tokomitra/backend/internal/store"
)

func TestConcurrentSaleOfLastUnit(t *testing.T) {
	databaseURL := os.Getenv("TOKOMITRA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TOKOMITRA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	userID := fmt.Sprintf("usr-it-%d", stamp)
	businessID := fmt.Sprintf("biz-it-%d", stamp)
	productID := fmt.Sprintf("prd-it-%d", stamp)
	barCode := fmt.Sprintf("899%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_line_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE business_id = $1`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE business_id = $1`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM business_members WHERE business_id = $1`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM businesses WHERE id = $1`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	})

	if _, err := s.CreateUser(ctx, domain.UserAccount{
		ID:        userID,
		Username:  fmt.Sprintf("it-user-%d", stamp),
		Password:  "$2a$10$integrationtesthashplaceholderxxxxxxxxxxxxxxxxxxxxxxxx",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := s.CreateBusiness(ctx, domain.Business{
		ID:        businessID,
		Name:      "Integration Test Shop",
		OwnerID:   userID,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create business: %v", err)
	}

	now := time.Now().UTC()
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:             productID,
		BusinessID:     businessID,
		BarCode:        barCode,
		Name:           "Last Unit",
		PriceCents:     9900,
		CostBasisCents: 6000,
		QuantityOnHand: 1,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, saleErr := s.CreateSale(ctx, businessID, userID, []domain.SaleLineItemRequest{
				{ProductID: productID, Quantity: 1},
			})
			results <- saleErr
		}()
	}
	wg.Wait()
	close(results)

	succeeded, failed := 0, 0
	for saleErr := range results {
		if saleErr == nil {
			succeeded++
			continue
		}
		if !errors.Is(saleErr, store.ErrInsufficientStock) {
			t.Fatalf("unexpected error from losing sale: %v", saleErr)
		}
		failed++
	}
	if succeeded != 1 || failed != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d failures", succeeded, failed)
	}

	product, err := s.GetProduct(ctx, businessID, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.QuantityOnHand != 0 {
		t.Fatalf("expected stock 0 after last unit sold, got %d", product.QuantityOnHand)
	}
	if product.QuantitySinceRestock != 1 {
		t.Fatalf("expected quantity since restock 1, got %d", product.QuantitySinceRestock)
	}
}
