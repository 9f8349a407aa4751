package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tokomitra/backend/internal/cache"
	"tokomitra/backend/internal/domain"
	"tokomitra/backend/internal/store"
	"tokomitra/backend/internal/xid"
)

var (
	// ErrUnauthenticated means no actor was attached to the request context.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrPermissionDenied means the actor is a member but their role does not
	// allow the operation.
	ErrPermissionDenied = errors.New("permission denied")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service holds the business rules. All authorization happens here against
// the membership rows in the repository; the token only proves identity.
// reportLoc is the single timezone in which day boundaries are computed, so
// every report path slices time the same way.
type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	reportLoc *time.Location
}

func New(repo store.Repository, reports cache.ReportCache, reportLoc *time.Location) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportLoc == nil {
		reportLoc = time.UTC
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		reportLoc: reportLoc,
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

// requireMember resolves the actor's membership in the business. Any lookup
// failure, including transient repository errors, is reported as not a
// member: authorization fails closed.
func (s *Service) requireMember(ctx context.Context, businessID string) (domain.Actor, domain.Membership, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Actor{}, domain.Membership{}, err
	}
	if businessID == "" {
		return domain.Actor{}, domain.Membership{}, store.ErrNotAMember
	}

	membership, err := s.repo.GetMembership(ctx, actor.UserID, businessID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: membership lookup failed user=%s business=%s: %v", actor.UserID, businessID, err)
		}
		return domain.Actor{}, domain.Membership{}, store.ErrNotAMember
	}
	return actor, *membership, nil
}

func (s *Service) requireRole(ctx context.Context, businessID string, allowed ...string) (domain.Actor, error) {
	actor, membership, err := s.requireMember(ctx, businessID)
	if err != nil {
		return domain.Actor{}, err
	}
	for _, role := range allowed {
		if membership.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, ErrPermissionDenied
}

func (s *Service) CreateBusiness(ctx context.Context, req domain.BusinessCreateRequest) (domain.Business, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Business{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Business{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateBusiness(ctx, domain.Business{
		Name:    req.Name,
		OwnerID: actor.UserID,
	})
	if err != nil {
		return domain.Business{}, err
	}

	s.logAudit(ctx, created.ID, "business_create", "business", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) GetBusiness(ctx context.Context, businessID string) (domain.Business, error) {
	if _, _, err := s.requireMember(ctx, businessID); err != nil {
		return domain.Business{}, err
	}
	business, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return domain.Business{}, err
	}
	return *business, nil
}

func (s *Service) ListMyBusinesses(ctx context.Context) ([]domain.Business, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBusinessesForUser(ctx, actor.UserID)
}

func (s *Service) AddMember(ctx context.Context, businessID string, req domain.MemberAddRequest) (domain.Membership, error) {
	_, err := s.requireRole(ctx, businessID, domain.RoleOwner)
	if err != nil {
		return domain.Membership{}, err
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if req.UserID == "" || !domain.ValidRole(req.Role) {
		return domain.Membership{}, store.ErrInvalidInput
	}

	membership, err := s.repo.UpsertMembership(ctx, domain.Membership{
		UserID:     req.UserID,
		BusinessID: businessID,
		Role:       req.Role,
	})
	if err != nil {
		return domain.Membership{}, err
	}

	s.logAudit(ctx, businessID, "member_upsert", "membership", req.UserID, fmt.Sprintf("role=%s", req.Role))
	return *membership, nil
}

func (s *Service) ListMembers(ctx context.Context, businessID string) ([]domain.Membership, error) {
	if _, err := s.requireRole(ctx, businessID, domain.RoleOwner); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, businessID)
}

func (s *Service) CreateProduct(ctx context.Context, businessID string, req domain.ProductCreateRequest) (domain.Product, error) {
	_, err := s.requireRole(ctx, businessID, domain.RoleOwner, domain.RoleInventory)
	if err != nil {
		return domain.Product{}, err
	}

	req.BarCode = strings.TrimSpace(req.BarCode)
	req.Name = strings.TrimSpace(req.Name)
	if req.BarCode == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.PriceCents < 1 || req.CostBasisCents < 0 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		BusinessID:     businessID,
		BarCode:        req.BarCode,
		Name:           req.Name,
		PriceCents:     req.PriceCents,
		CostBasisCents: req.CostBasisCents,
		QuantityOnHand: req.InitialStock,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, businessID, "product_create", "product", created.ID,
		fmt.Sprintf("bar_code=%s,price=%d,stock=%d", created.BarCode, created.PriceCents, created.QuantityOnHand))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, businessID string, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	_, err := s.requireRole(ctx, businessID, domain.RoleOwner, domain.RoleInventory)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, businessID, productID)
	if err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.PriceCents != nil {
		existing.PriceCents = *req.PriceCents
	}
	if req.CostBasisCents != nil {
		existing.CostBasisCents = *req.CostBasisCents
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, businessID, "product_update", "product", updated.ID,
		fmt.Sprintf("price=%d,cost=%d,active=%t", updated.PriceCents, updated.CostBasisCents, updated.Active))
	return *updated, nil
}

func (s *Service) ListProducts(ctx context.Context, businessID string) ([]domain.Product, error) {
	if _, _, err := s.requireMember(ctx, businessID); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, businessID)
}

func (s *Service) GetProductByBarCode(ctx context.Context, businessID string, barCode string) (domain.Product, error) {
	if _, _, err := s.requireMember(ctx, businessID); err != nil {
		return domain.Product{}, err
	}
	barCode = strings.TrimSpace(barCode)
	if barCode == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProductByBarCode(ctx, businessID, barCode)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) RestockProduct(ctx context.Context, businessID string, productID string, req domain.RestockRequest) (domain.Product, error) {
	_, err := s.requireRole(ctx, businessID, domain.RoleOwner, domain.RoleInventory)
	if err != nil {
		return domain.Product{}, err
	}
	if req.Quantity < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.RestockProduct(ctx, businessID, productID, req.Quantity)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, businessID, "product_restock", "product", updated.ID,
		fmt.Sprintf("added=%d,on_hand=%d", req.Quantity, updated.QuantityOnHand))
	return *updated, nil
}

// CreateSale runs the ordered gate checks, then hands the merged cart to the
// repository, which owns atomicity. Checks run in a fixed order so a request
// with several problems always reports the same one: authentication, cart
// shape, membership, then per-product stock inside the store transaction.
func (s *Service) CreateSale(ctx context.Context, businessID string, items []domain.SaleLineItemRequest) (domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	if len(items) == 0 {
		return domain.Sale{}, store.ErrEmptyCart
	}
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity < 1 {
			return domain.Sale{}, store.ErrInvalidInput
		}
	}

	if _, _, err := s.requireMember(ctx, businessID); err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.repo.CreateSale(ctx, businessID, actor.UserID, mergeLineItems(items))
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, businessID, "sale_create", "sale", sale.ID,
		fmt.Sprintf("lines=%d,total=%d", len(sale.Items), sale.TotalAmountCents))
	s.invalidateReportCaches(ctx, businessID, sale.CreatedAt)
	return *sale, nil
}

func (s *Service) GetSale(ctx context.Context, businessID string, saleID string) (domain.Sale, error) {
	if _, _, err := s.requireMember(ctx, businessID); err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, businessID, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, businessID string, date string) ([]domain.Sale, error) {
	if _, err := s.requireRole(ctx, businessID, domain.RoleOwner); err != nil {
		return nil, err
	}
	from, to, _, err := s.dayRange(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, businessID, from, to)
}

func (s *Service) DailyReport(ctx context.Context, businessID string, date string) (domain.DailySalesReport, error) {
	if _, err := s.requireRole(ctx, businessID, domain.RoleOwner); err != nil {
		return domain.DailySalesReport{}, err
	}

	from, to, day, err := s.dayRange(date)
	if err != nil {
		return domain.DailySalesReport{}, err
	}

	cacheKey := fmt.Sprintf("report:daily:%s:%s", businessID, day)
	var cached domain.DailySalesReport
	if ok, err := s.reports.Get(ctx, cacheKey, &cached); err != nil {
		log.Printf("[service] WARN: report cache read failed key=%s: %v", cacheKey, err)
	} else if ok {
		return cached, nil
	}

	count, total, err := s.repo.DailySalesTotal(ctx, businessID, from, to)
	if err != nil {
		return domain.DailySalesReport{}, err
	}

	report := domain.DailySalesReport{
		BusinessID:       businessID,
		Date:             day,
		SaleCount:        count,
		TotalAmountCents: total,
	}
	if err := s.reports.Set(ctx, cacheKey, report); err != nil {
		log.Printf("[service] WARN: report cache write failed key=%s: %v", cacheKey, err)
	}
	return report, nil
}

// IntradayReport splits the day into six four-hour windows.
func (s *Service) IntradayReport(ctx context.Context, businessID string, date string) (domain.IntradayReport, error) {
	if _, err := s.requireRole(ctx, businessID, domain.RoleOwner); err != nil {
		return domain.IntradayReport{}, err
	}

	from, to, day, err := s.dayRange(date)
	if err != nil {
		return domain.IntradayReport{}, err
	}

	buckets, err := s.repo.IntervalSales(ctx, businessID, from, to, 4*time.Hour)
	if err != nil {
		return domain.IntradayReport{}, err
	}
	for i := range buckets {
		buckets[i].Start = buckets[i].Start.In(s.reportLoc)
		buckets[i].End = buckets[i].End.In(s.reportLoc)
	}

	return domain.IntradayReport{
		BusinessID: businessID,
		Date:       day,
		Buckets:    buckets,
	}, nil
}

func (s *Service) ProfitReport(ctx context.Context, businessID string, fromDate string, toDate string) (domain.ProfitReport, error) {
	if _, err := s.requireRole(ctx, businessID, domain.RoleOwner); err != nil {
		return domain.ProfitReport{}, err
	}

	from, _, fromDay, err := s.dayRange(fromDate)
	if err != nil {
		return domain.ProfitReport{}, err
	}
	_, to, toDay, err := s.dayRange(toDate)
	if err != nil {
		return domain.ProfitReport{}, err
	}
	if !from.Before(to) {
		return domain.ProfitReport{}, store.ErrInvalidInput
	}

	count, amount, baseCost, err := s.repo.ProfitTotals(ctx, businessID, from, to)
	if err != nil {
		return domain.ProfitReport{}, err
	}

	return domain.ProfitReport{
		BusinessID:         businessID,
		From:               fromDay,
		To:                 toDay,
		SaleCount:          count,
		TotalAmountCents:   amount,
		TotalBaseCostCents: baseCost,
		ProfitCents:        amount - baseCost,
	}, nil
}

func (s *Service) TopProducts(ctx context.Context, businessID string, fromDate string, toDate string, limit int) (domain.TopProductsReport, error) {
	if _, err := s.requireRole(ctx, businessID, domain.RoleOwner); err != nil {
		return domain.TopProductsReport{}, err
	}
	if limit < 1 {
		limit = 5
	}

	from, _, fromDay, err := s.dayRange(fromDate)
	if err != nil {
		return domain.TopProductsReport{}, err
	}
	_, to, toDay, err := s.dayRange(toDate)
	if err != nil {
		return domain.TopProductsReport{}, err
	}
	if !from.Before(to) {
		return domain.TopProductsReport{}, store.ErrInvalidInput
	}

	cacheKey := fmt.Sprintf("report:top:%s:%s:%s:%d", businessID, fromDay, toDay, limit)
	var cached domain.TopProductsReport
	if ok, err := s.reports.Get(ctx, cacheKey, &cached); err != nil {
		log.Printf("[service] WARN: report cache read failed key=%s: %v", cacheKey, err)
	} else if ok {
		return cached, nil
	}

	products, err := s.repo.TopProducts(ctx, businessID, from, to, limit)
	if err != nil {
		return domain.TopProductsReport{}, err
	}

	report := domain.TopProductsReport{
		BusinessID: businessID,
		From:       fromDay,
		To:         toDay,
		Products:   products,
	}
	if err := s.reports.Set(ctx, cacheKey, report); err != nil {
		log.Printf("[service] WARN: report cache write failed key=%s: %v", cacheKey, err)
	}
	return report, nil
}

func (s *Service) RestockCandidates(ctx context.Context, businessID string, threshold int) (domain.RestockCandidateResponse, error) {
	_, err := s.requireRole(ctx, businessID, domain.RoleOwner, domain.RoleInventory)
	if err != nil {
		return domain.RestockCandidateResponse{}, err
	}
	if threshold < 1 {
		return domain.RestockCandidateResponse{}, store.ErrInvalidInput
	}

	candidates, err := s.repo.RestockCandidates(ctx, businessID, threshold)
	if err != nil {
		return domain.RestockCandidateResponse{}, err
	}
	return domain.RestockCandidateResponse{
		BusinessID: businessID,
		Threshold:  threshold,
		Candidates: candidates,
	}, nil
}

func (s *Service) AuditLogs(ctx context.Context, businessID string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireRole(ctx, businessID, domain.RoleOwner); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, businessID, limit)
}

// dayRange resolves a YYYY-MM-DD string (empty means today) to the half-open
// [from, to) UTC instants covering that local day in the report timezone.
func (s *Service) dayRange(date string) (time.Time, time.Time, string, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := time.Now().In(s.reportLoc)
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.reportLoc)
	} else {
		parsed, err := time.ParseInLocation("2006-01-02", date, s.reportLoc)
		if err != nil {
			return time.Time{}, time.Time{}, "", store.ErrInvalidInput
		}
		day = parsed
	}
	from := day.UTC()
	to := day.AddDate(0, 0, 1).UTC()
	return from, to, day.Format("2006-01-02"), nil
}

func (s *Service) invalidateReportCaches(ctx context.Context, businessID string, at time.Time) {
	day := at.In(s.reportLoc).Format("2006-01-02")
	key := fmt.Sprintf("report:daily:%s:%s", businessID, day)
	if err := s.reports.Invalidate(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache invalidate failed key=%s: %v", key, err)
	}

	// Top-product keys carry the requested range and limit, so they cannot
	// be named exactly from here; clear the whole business prefix.
	topPrefix := fmt.Sprintf("report:top:%s:", businessID)
	if err := s.reports.InvalidatePrefix(ctx, topPrefix); err != nil {
		log.Printf("[service] WARN: report cache invalidate failed prefix=%s: %v", topPrefix, err)
	}
}

func (s *Service) logAudit(ctx context.Context, businessID string, action string, entityType string, entityID string, detail string) {
	actorID := "system"
	if actor, ok := ActorFromContext(ctx); ok {
		actorID = actor.UserID
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New(xid.Audit),
		BusinessID: businessID,
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// mergeLineItems folds duplicate product references into one line each,
// preserving first-seen order.
func mergeLineItems(items []domain.SaleLineItemRequest) []domain.SaleLineItemRequest {
	merged := make([]domain.SaleLineItemRequest, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if pos, ok := index[id]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, domain.SaleLineItemRequest{ProductID: id, Quantity: item.Quantity})
	}
	return merged
}
