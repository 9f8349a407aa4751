package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tokomitra/backend/internal/cache"
	"tokomitra/backend/internal/domain"
	"tokomitra/backend/internal/store"
	"tokomitra/backend/internal/store/memory"
)

const demoBusiness = "biz-demo"

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopReportCache{}, time.UTC)
}

func ownerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: "usr-demo-owner", Username: "owner"})
}

func sellerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: "usr-demo-seller", Username: "seller"})
}

func stockCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: "usr-demo-stock", Username: "stockkeeper"})
}

func strangerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: "usr-stranger", Username: "stranger"})
}

// mapReportCache is a ReportCache over a plain map, for asserting cache
// hits and invalidation without Redis.
type mapReportCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMapReportCache() *mapReportCache {
	return &mapReportCache{entries: make(map[string][]byte)}
}

func (c *mapReportCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(payload, dest)
}

func (c *mapReportCache) Set(_ context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = payload
	return nil
}

func (c *mapReportCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *mapReportCache) InvalidatePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func TestCreateSaleRequiresAuthentication(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(context.Background(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-mie", Quantity: 1},
	})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestCreateSaleEmptyCartBeforeMembershipCheck(t *testing.T) {
	svc := newTestService()

	// A stranger with an empty cart must see the cart error, not the
	// membership error: cart shape is validated first.
	_, err := svc.CreateSale(strangerCtx(), demoBusiness, nil)
	if !errors.Is(err, store.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCreateSaleRejectsNonMember(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(strangerCtx(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-mie", Quantity: 1},
	})
	if !errors.Is(err, store.ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
}

func TestCreateSaleRejectsInvalidQuantity(t *testing.T) {
	svc := newTestService()

	for _, qty := range []int{0, -3} {
		_, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
			{ProductID: "prd-demo-mie", Quantity: qty},
		})
		if !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("quantity %d: expected ErrInvalidInput, got %v", qty, err)
		}
	}
}

func TestCreateSaleDecrementsStockAndSnapshotsPricing(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-mie", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	if sale.TotalAmountCents != 3*3500 {
		t.Fatalf("expected total %d, got %d", 3*3500, sale.TotalAmountCents)
	}
	if sale.TotalBaseCostCents != 3*2700 {
		t.Fatalf("expected base cost %d, got %d", 3*2700, sale.TotalBaseCostCents)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(sale.Items))
	}
	line := sale.Items[0]
	if line.UnitPriceAtSaleCents != 3500 || line.UnitCostAtSaleCents != 2700 {
		t.Fatalf("unexpected snapshot pricing: price=%d cost=%d", line.UnitPriceAtSaleCents, line.UnitCostAtSaleCents)
	}
	if sale.UserID != "usr-demo-seller" {
		t.Fatalf("expected sale recorded for seller, got %s", sale.UserID)
	}

	products, err := svc.ListProducts(ctx, demoBusiness)
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	for _, p := range products {
		if p.ID != "prd-demo-mie" {
			continue
		}
		if p.QuantityOnHand != 117 {
			t.Fatalf("expected stock 117 after sale, got %d", p.QuantityOnHand)
		}
		if p.QuantitySinceRestock != 3 {
			t.Fatalf("expected quantity since restock 3, got %d", p.QuantitySinceRestock)
		}
	}
}

func TestCreateSaleInsufficientStockLeavesStateUnchanged(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	_, err := svc.CreateSale(ctx, demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-mie", Quantity: 121},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	product, err := svc.GetProductByBarCode(ctx, demoBusiness, "8991002100015")
	if err != nil {
		t.Fatalf("barcode lookup failed: %v", err)
	}
	if product.QuantityOnHand != 120 {
		t.Fatalf("expected stock untouched at 120, got %d", product.QuantityOnHand)
	}
}

func TestCreateSaleMixedCartIsAtomic(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	_, err := svc.CreateSale(ctx, demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-mie", Quantity: 2},
		{ProductID: "prd-demo-sabun", Quantity: 999},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The valid line must not have been applied either.
	product, err := svc.GetProductByBarCode(ctx, demoBusiness, "8991002100015")
	if err != nil {
		t.Fatalf("barcode lookup failed: %v", err)
	}
	if product.QuantityOnHand != 120 {
		t.Fatalf("expected stock untouched at 120 after failed mixed cart, got %d", product.QuantityOnHand)
	}
}

func TestCreateSaleInsufficientStockNamesProduct(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-mie", Quantity: 2},
		{ProductID: "prd-demo-sabun", Quantity: 999},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if !strings.Contains(err.Error(), "prd-demo-sabun") {
		t.Fatalf("expected error to name the offending product, got %q", err.Error())
	}
}

func TestCreateSaleUnknownProduct(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-missing", Quantity: 1},
	})
	if !errors.Is(err, store.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCreateSaleMergesDuplicateLines(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-kopi", Quantity: 2},
		{ProductID: "prd-demo-kopi", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("expected duplicate lines merged into 1, got %d", len(sale.Items))
	}
	if sale.Items[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", sale.Items[0].Quantity)
	}
}

func TestConcurrentLastUnitSaleExactlyOneSucceeds(t *testing.T) {
	svc := newTestService()
	ownerContext := ownerCtx()

	product, err := svc.CreateProduct(ownerContext, demoBusiness, domain.ProductCreateRequest{
		BarCode:        "8990000000017",
		Name:           "Barang Terakhir",
		PriceCents:     5000,
		CostBasisCents: 3000,
		InitialStock:   1,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, saleErr := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
				{ProductID: product.ID, Quantity: 1},
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
			t.Fatalf("unexpected error: %v", saleErr)
		}
		failed++
	}
	if succeeded != 1 || failed != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d failures", succeeded, failed)
	}

	after, err := svc.GetProductByBarCode(ownerContext, demoBusiness, "8990000000017")
	if err != nil {
		t.Fatalf("barcode lookup failed: %v", err)
	}
	if after.QuantityOnHand != 0 {
		t.Fatalf("expected stock 0 after last unit sold, got %d", after.QuantityOnHand)
	}
}

func TestPriceUpdateDoesNotRewriteSaleHistory(t *testing.T) {
	svc := newTestService()
	ownerContext := ownerCtx()

	sale, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-susu", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	newPrice := int64(21000)
	if _, err := svc.UpdateProduct(ownerContext, demoBusiness, "prd-demo-susu", domain.ProductUpdateRequest{
		PriceCents: &newPrice,
	}); err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	reloaded, err := svc.GetSale(ownerContext, demoBusiness, sale.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if reloaded.Items[0].UnitPriceAtSaleCents != 18900 {
		t.Fatalf("expected historical unit price 18900, got %d", reloaded.Items[0].UnitPriceAtSaleCents)
	}
	if reloaded.TotalAmountCents != 2*18900 {
		t.Fatalf("expected historical total %d, got %d", 2*18900, reloaded.TotalAmountCents)
	}
}

func TestRestockResetsQuantitySinceRestock(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-gula", Quantity: 4},
	}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	restocked, err := svc.RestockProduct(stockCtx(), demoBusiness, "prd-demo-gula", domain.RestockRequest{Quantity: 24})
	if err != nil {
		t.Fatalf("restock failed: %v", err)
	}
	if restocked.QuantityOnHand != 80-4+24 {
		t.Fatalf("expected stock %d, got %d", 80-4+24, restocked.QuantityOnHand)
	}
	if restocked.QuantitySinceRestock != 0 {
		t.Fatalf("expected quantity since restock reset to 0, got %d", restocked.QuantitySinceRestock)
	}
}

func TestRestockRejectsNonPositiveQuantity(t *testing.T) {
	svc := newTestService()

	_, err := svc.RestockProduct(stockCtx(), demoBusiness, "prd-demo-gula", domain.RestockRequest{Quantity: 0})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRoleGates(t *testing.T) {
	svc := newTestService()

	// Sales staff cannot manage the catalog.
	_, err := svc.CreateProduct(sellerCtx(), demoBusiness, domain.ProductCreateRequest{
		BarCode:    "8990000000024",
		Name:       "Tidak Boleh",
		PriceCents: 1000,
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for seller product create, got %v", err)
	}

	// Inventory staff cannot read owner reports.
	_, err = svc.DailyReport(stockCtx(), demoBusiness, "")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for stockkeeper daily report, got %v", err)
	}

	// But inventory staff can read restock candidates.
	if _, err := svc.RestockCandidates(stockCtx(), demoBusiness, 40); err != nil {
		t.Fatalf("restock candidates for stockkeeper failed: %v", err)
	}

	// Only the owner can add members.
	_, err = svc.AddMember(sellerCtx(), demoBusiness, domain.MemberAddRequest{UserID: "usr-x", Role: domain.RoleSales})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for seller add member, got %v", err)
	}
}

func TestAddMemberValidatesRole(t *testing.T) {
	svc := newTestService()

	_, err := svc.AddMember(ownerCtx(), demoBusiness, domain.MemberAddRequest{UserID: "usr-new", Role: "superadmin"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown role, got %v", err)
	}

	membership, err := svc.AddMember(ownerCtx(), demoBusiness, domain.MemberAddRequest{UserID: "usr-new", Role: "SALES"})
	if err != nil {
		t.Fatalf("add member failed: %v", err)
	}
	if membership.Role != domain.RoleSales {
		t.Fatalf("expected role normalized to %s, got %s", domain.RoleSales, membership.Role)
	}
}

func TestDailyReportCountsOnlyRequestedDay(t *testing.T) {
	svc := newTestService()

	for i := 0; i < 2; i++ {
		if _, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
			{ProductID: "prd-demo-kopi", Quantity: 1},
		}); err != nil {
			t.Fatalf("create sale failed: %v", err)
		}
	}

	today := time.Now().UTC().Format("2006-01-02")
	report, err := svc.DailyReport(ownerCtx(), demoBusiness, today)
	if err != nil {
		t.Fatalf("daily report failed: %v", err)
	}
	if report.SaleCount != 2 {
		t.Fatalf("expected 2 sales today, got %d", report.SaleCount)
	}
	if report.TotalAmountCents != 2*2600 {
		t.Fatalf("expected total %d, got %d", 2*2600, report.TotalAmountCents)
	}

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	empty, err := svc.DailyReport(ownerCtx(), demoBusiness, yesterday)
	if err != nil {
		t.Fatalf("daily report for yesterday failed: %v", err)
	}
	if empty.SaleCount != 0 || empty.TotalAmountCents != 0 {
		t.Fatalf("expected empty report for yesterday, got count=%d total=%d", empty.SaleCount, empty.TotalAmountCents)
	}
}

func TestDailyReportRejectsMalformedDate(t *testing.T) {
	svc := newTestService()

	_, err := svc.DailyReport(ownerCtx(), demoBusiness, "30-08-2026")
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for malformed date, got %v", err)
	}
}

func TestIntradayReportHasSixBucketsCoveringTheDay(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-telur", Quantity: 1},
	}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	report, err := svc.IntradayReport(ownerCtx(), demoBusiness, today)
	if err != nil {
		t.Fatalf("intraday report failed: %v", err)
	}
	if len(report.Buckets) != 6 {
		t.Fatalf("expected 6 four-hour buckets, got %d", len(report.Buckets))
	}

	var count int64
	var total int64
	for i, bucket := range report.Buckets {
		if got := bucket.End.Sub(bucket.Start); got != 4*time.Hour {
			t.Fatalf("bucket %d spans %s, expected 4h", i, got)
		}
		count += bucket.SaleCount
		total += bucket.TotalAmountCents
	}
	if count != 1 {
		t.Fatalf("expected bucket counts to sum to 1, got %d", count)
	}
	if total != 26500 {
		t.Fatalf("expected bucket totals to sum to 26500, got %d", total)
	}
}

func TestProfitReportMath(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-mie", Quantity: 10},
		{ProductID: "prd-demo-susu", Quantity: 2},
	}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	report, err := svc.ProfitReport(ownerCtx(), demoBusiness, today, today)
	if err != nil {
		t.Fatalf("profit report failed: %v", err)
	}

	wantAmount := int64(10*3500 + 2*18900)
	wantCost := int64(10*2700 + 2*13600)
	if report.TotalAmountCents != wantAmount {
		t.Fatalf("expected amount %d, got %d", wantAmount, report.TotalAmountCents)
	}
	if report.TotalBaseCostCents != wantCost {
		t.Fatalf("expected base cost %d, got %d", wantCost, report.TotalBaseCostCents)
	}
	if report.ProfitCents != wantAmount-wantCost {
		t.Fatalf("expected profit %d, got %d", wantAmount-wantCost, report.ProfitCents)
	}
}

func TestProfitReportRejectsInvertedRange(t *testing.T) {
	svc := newTestService()

	today := time.Now().UTC().Format("2006-01-02")
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	_, err := svc.ProfitReport(ownerCtx(), demoBusiness, tomorrow, today)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for inverted range, got %v", err)
	}
}

func TestTopProductsOrderingAndTieBreak(t *testing.T) {
	svc := newTestService()

	// kopi and mie tie on quantity; telur trails. The tie breaks on
	// product id ascending, and prd-demo-kopi sorts before prd-demo-mie.
	sales := [][]domain.SaleLineItemRequest{
		{{ProductID: "prd-demo-kopi", Quantity: 5}},
		{{ProductID: "prd-demo-mie", Quantity: 3}, {ProductID: "prd-demo-telur", Quantity: 2}},
		{{ProductID: "prd-demo-mie", Quantity: 2}},
	}
	for _, items := range sales {
		if _, err := svc.CreateSale(sellerCtx(), demoBusiness, items); err != nil {
			t.Fatalf("create sale failed: %v", err)
		}
	}

	today := time.Now().UTC().Format("2006-01-02")
	report, err := svc.TopProducts(ownerCtx(), demoBusiness, today, today, 2)
	if err != nil {
		t.Fatalf("top products failed: %v", err)
	}
	if len(report.Products) != 2 {
		t.Fatalf("expected 2 products with limit 2, got %d", len(report.Products))
	}
	if report.Products[0].ProductID != "prd-demo-kopi" || report.Products[0].QuantitySold != 5 {
		t.Fatalf("unexpected first product: %+v", report.Products[0])
	}
	if report.Products[1].ProductID != "prd-demo-mie" || report.Products[1].QuantitySold != 5 {
		t.Fatalf("unexpected second product: %+v", report.Products[1])
	}
}

func TestRestockCandidatesStrictThreshold(t *testing.T) {
	svc := newTestService()

	// Sabun sits at exactly 35 on hand: included at threshold 36, excluded at 35.
	resp, err := svc.RestockCandidates(ownerCtx(), demoBusiness, 36)
	if err != nil {
		t.Fatalf("restock candidates failed: %v", err)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].ProductID != "prd-demo-sabun" {
		t.Fatalf("expected only sabun below threshold 36, got %+v", resp.Candidates)
	}

	resp, err = svc.RestockCandidates(ownerCtx(), demoBusiness, 35)
	if err != nil {
		t.Fatalf("restock candidates failed: %v", err)
	}
	if len(resp.Candidates) != 0 {
		t.Fatalf("expected no candidates at threshold 35, got %+v", resp.Candidates)
	}

	_, err = svc.RestockCandidates(ownerCtx(), demoBusiness, 0)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for threshold 0, got %v", err)
	}
}

func TestCreateBusinessMakesActorOwner(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, cache.NoopReportCache{}, time.UTC)

	user, err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "perintis",
		Password: "rahasia-baru",
		Active:   true,
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	ctx := WithActor(context.Background(), domain.Actor{UserID: user.ID, Username: user.Username})

	business, err := svc.CreateBusiness(ctx, domain.BusinessCreateRequest{Name: "Warung Baru"})
	if err != nil {
		t.Fatalf("create business failed: %v", err)
	}
	if business.OwnerID != user.ID {
		t.Fatalf("expected owner %s, got %s", user.ID, business.OwnerID)
	}

	// The creator can immediately act as owner.
	if _, err := svc.DailyReport(ctx, business.ID, ""); err != nil {
		t.Fatalf("owner daily report on new business failed: %v", err)
	}
}

func TestSaleInvalidatesCachedTopProducts(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, newMapReportCache(), time.UTC)
	today := time.Now().UTC().Format("2006-01-02")

	if _, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-kopi", Quantity: 2},
	}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	first, err := svc.TopProducts(ownerCtx(), demoBusiness, today, today, 5)
	if err != nil {
		t.Fatalf("top products failed: %v", err)
	}
	if len(first.Products) != 1 || first.Products[0].QuantitySold != 2 {
		t.Fatalf("unexpected first report: %+v", first.Products)
	}

	// A second sale must show up even though the first report was cached.
	if _, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-kopi", Quantity: 3},
	}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	second, err := svc.TopProducts(ownerCtx(), demoBusiness, today, today, 5)
	if err != nil {
		t.Fatalf("top products failed: %v", err)
	}
	if len(second.Products) != 1 || second.Products[0].QuantitySold != 5 {
		t.Fatalf("expected refreshed report with quantity 5, got %+v", second.Products)
	}
}

func TestAuditLogsRecordSales(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateSale(sellerCtx(), demoBusiness, []domain.SaleLineItemRequest{
		{ProductID: "prd-demo-mie", Quantity: 1},
	}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	logs, err := svc.AuditLogs(ownerCtx(), demoBusiness, 10)
	if err != nil {
		t.Fatalf("audit logs failed: %v", err)
	}

	found := false
	for _, entry := range logs {
		if entry.Action == "sale_create" && entry.ActorID == "usr-demo-seller" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected a sale_create audit entry from the seller")
	}
}
