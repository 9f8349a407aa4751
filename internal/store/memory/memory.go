package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokomitra/backend/internal/domain"
	"tokomitra/backend/internal/store"
	"tokomitra/backend/internal/xid"
)

// Store is the in-memory Repository used for dev mode and tests. A single
// mutex guards all state, so every sale commit is naturally atomic: either
// the whole cart is validated and applied under one lock hold, or nothing
// changes.
type Store struct {
	mu               sync.RWMutex
	usersByID        map[string]domain.UserAccount
	usersByUsername  map[string]string
	businessesByID   map[string]domain.Business
	membershipsByKey map[string]domain.Membership
	productsByID     map[string]domain.Product
	salesByID        map[string]*domain.Sale
	auditLogs        []domain.AuditLog
}

func New() *Store {
	return &Store{
		usersByID:        make(map[string]domain.UserAccount),
		usersByUsername:  make(map[string]string),
		businessesByID:   make(map[string]domain.Business),
		membershipsByKey: make(map[string]domain.Membership),
		productsByID:     make(map[string]domain.Product),
		salesByID:        make(map[string]*domain.Sale),
		auditLogs:        make([]domain.AuditLog, 0, 128),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() []domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 3)
	for _, u := range []struct {
		id       string
		username string
		password string
	}{
		{"usr-demo-owner", "owner", ownerPwd},
		{"usr-demo-stock", "stockkeeper", staffPwd},
		{"usr-demo-seller", "seller", staffPwd},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users = append(users, domain.UserAccount{
			ID:        u.id,
			Username:  u.username,
			Password:  string(hash),
			Active:    true,
			CreatedAt: now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store pre-loaded with one demo business, three users
// (owner, stockkeeper, seller) and a small product catalog.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, u := range seedUsers() {
		s.usersByID[u.ID] = u
		s.usersByUsername[u.Username] = u.ID
	}

	business := domain.Business{
		ID:        "biz-demo",
		Name:      "Toko Mitra Demo",
		OwnerID:   "usr-demo-owner",
		CreatedAt: now,
	}
	s.businessesByID[business.ID] = business

	for _, m := range []domain.Membership{
		{UserID: "usr-demo-owner", BusinessID: business.ID, Role: domain.RoleOwner, CreatedAt: now},
		{UserID: "usr-demo-stock", BusinessID: business.ID, Role: domain.RoleInventory, CreatedAt: now},
		{UserID: "usr-demo-seller", BusinessID: business.ID, Role: domain.RoleSales, CreatedAt: now},
	} {
		s.membershipsByKey[membershipKey(m.UserID, m.BusinessID)] = m
	}

	products := []domain.Product{
		{ID: "prd-demo-mie", BarCode: "8991002100015", Name: "Mie Goreng Instan", PriceCents: 3500, CostBasisCents: 2700, QuantityOnHand: 120},
		{ID: "prd-demo-telur", BarCode: "8991002100022", Name: "Telur 10 Butir", PriceCents: 26500, CostBasisCents: 23000, QuantityOnHand: 60},
		{ID: "prd-demo-susu", BarCode: "8991002100039", Name: "Susu UHT 1L", PriceCents: 18900, CostBasisCents: 13600, QuantityOnHand: 48},
		{ID: "prd-demo-kopi", BarCode: "8991002100046", Name: "Kopi Sachet", PriceCents: 2600, CostBasisCents: 1700, QuantityOnHand: 200},
		{ID: "prd-demo-gula", BarCode: "8991002100053", Name: "Gula 1kg", PriceCents: 17400, CostBasisCents: 15300, QuantityOnHand: 80},
		{ID: "prd-demo-sabun", BarCode: "8991002100060", Name: "Sabun Mandi", PriceCents: 7400, CostBasisCents: 5000, QuantityOnHand: 35},
	}
	for _, p := range products {
		p.BusinessID = business.ID
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.productsByID[p.ID] = p
	}

	return s
}

func membershipKey(userID, businessID string) string {
	return userID + "|" + businessID
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return nil, store.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = xid.New(xid.User)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	s.usersByUsername[user.Username] = user.ID

	created := user
	return &created, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user := s.usersByID[id]
	user.Password = password
	s.usersByID[id] = user
	return nil
}

func (s *Store) CreateBusiness(_ context.Context, business domain.Business) (*domain.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if business.Name == "" || business.OwnerID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.usersByID[business.OwnerID]; !ok {
		return nil, store.ErrNotFound
	}
	if business.ID == "" {
		business.ID = xid.New(xid.Business)
	}
	if business.CreatedAt.IsZero() {
		business.CreatedAt = time.Now().UTC()
	}
	s.businessesByID[business.ID] = business

	// Creator becomes the owner member in the same lock hold.
	s.membershipsByKey[membershipKey(business.OwnerID, business.ID)] = domain.Membership{
		UserID:     business.OwnerID,
		BusinessID: business.ID,
		Role:       domain.RoleOwner,
		CreatedAt:  business.CreatedAt,
	}

	created := business
	return &created, nil
}

func (s *Store) GetBusiness(_ context.Context, businessID string) (*domain.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	business, ok := s.businessesByID[businessID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &business, nil
}

func (s *Store) ListBusinesses(_ context.Context) ([]domain.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	businesses := make([]domain.Business, 0, len(s.businessesByID))
	for _, b := range s.businessesByID {
		businesses = append(businesses, b)
	}
	slices.SortFunc(businesses, func(a, b domain.Business) int {
		return cmpString(a.ID, b.ID)
	})
	return businesses, nil
}

func (s *Store) ListBusinessesForUser(_ context.Context, userID string) ([]domain.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	businesses := make([]domain.Business, 0, 4)
	for _, m := range s.membershipsByKey {
		if m.UserID != userID {
			continue
		}
		if b, ok := s.businessesByID[m.BusinessID]; ok {
			businesses = append(businesses, b)
		}
	}
	slices.SortFunc(businesses, func(a, b domain.Business) int {
		return cmpString(a.Name, b.Name)
	})
	return businesses, nil
}

func (s *Store) UpsertMembership(_ context.Context, membership domain.Membership) (*domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if membership.UserID == "" || membership.BusinessID == "" || !domain.ValidRole(membership.Role) {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.usersByID[membership.UserID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.businessesByID[membership.BusinessID]; !ok {
		return nil, store.ErrNotFound
	}
	if membership.CreatedAt.IsZero() {
		membership.CreatedAt = time.Now().UTC()
	}
	s.membershipsByKey[membershipKey(membership.UserID, membership.BusinessID)] = membership

	created := membership
	return &created, nil
}

func (s *Store) GetMembership(_ context.Context, userID string, businessID string) (*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	membership, ok := s.membershipsByKey[membershipKey(userID, businessID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &membership, nil
}

func (s *Store) ListMembers(_ context.Context, businessID string) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]domain.Membership, 0, 8)
	for _, m := range s.membershipsByKey {
		if m.BusinessID == businessID {
			members = append(members, m)
		}
	}
	slices.SortFunc(members, func(a, b domain.Membership) int {
		return cmpString(a.UserID, b.UserID)
	})
	return members, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.BusinessID == "" || product.BarCode == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if product.PriceCents < 1 || product.CostBasisCents < 0 || product.QuantityOnHand < 0 {
		return nil, store.ErrInvalidInput
	}
	for _, p := range s.productsByID {
		if p.BusinessID == product.BusinessID && p.BarCode == product.BarCode {
			return nil, store.ErrDuplicate
		}
	}
	if product.ID == "" {
		product.ID = xid.New(xid.Product)
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Active = true
	product.QuantitySinceRestock = 0
	s.productsByID[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.productsByID[product.ID]
	if !ok || existing.BusinessID != product.BusinessID {
		return nil, store.ErrProductNotFound
	}
	if product.Name == "" || product.PriceCents < 1 || product.CostBasisCents < 0 {
		return nil, store.ErrInvalidInput
	}

	existing.Name = product.Name
	existing.PriceCents = product.PriceCents
	existing.CostBasisCents = product.CostBasisCents
	existing.Active = product.Active
	existing.UpdatedAt = time.Now().UTC()
	s.productsByID[existing.ID] = existing

	updated := existing
	return &updated, nil
}

func (s *Store) GetProduct(_ context.Context, businessID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.productsByID[productID]
	if !ok || product.BusinessID != businessID {
		return nil, store.ErrProductNotFound
	}
	return &product, nil
}

func (s *Store) GetProductByBarCode(_ context.Context, businessID string, barCode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.productsByID {
		if p.BusinessID == businessID && p.BarCode == barCode {
			product := p
			return &product, nil
		}
	}
	return nil, store.ErrProductNotFound
}

func (s *Store) ListProducts(_ context.Context, businessID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if p.BusinessID != businessID || !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) RestockProduct(_ context.Context, businessID string, productID string, quantity int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	product, ok := s.productsByID[productID]
	if !ok || product.BusinessID != businessID || !product.Active {
		return nil, store.ErrProductNotFound
	}

	product.QuantityOnHand += quantity
	product.QuantitySinceRestock = 0
	product.UpdatedAt = time.Now().UTC()
	s.productsByID[productID] = product

	updated := product
	return &updated, nil
}

// CreateSale validates and applies the whole cart under one lock hold.
// Prices and costs are re-read from the product map here, never taken from
// the caller, and stock is checked line by line before anything is mutated.
func (s *Store) CreateSale(_ context.Context, businessID string, userID string, items []domain.SaleLineItemRequest) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 {
		return nil, store.ErrEmptyCart
	}
	if _, ok := s.businessesByID[businessID]; !ok {
		return nil, store.ErrNotFound
	}

	// Validate and decrement against working copies so repeated lines for
	// the same product draw from the same stock; nothing touches the live
	// map until the whole cart clears.
	working := make(map[string]domain.Product, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		product, ok := working[item.ProductID]
		if !ok {
			product, ok = s.productsByID[item.ProductID]
			if !ok || product.BusinessID != businessID || !product.Active {
				return nil, store.ErrProductNotFound
			}
		}
		if product.QuantityOnHand < item.Quantity {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrInsufficientStock)
		}
		product.QuantityOnHand -= item.Quantity
		product.QuantitySinceRestock += item.Quantity
		working[item.ProductID] = product
	}

	sale := &domain.Sale{
		ID:         xid.New(xid.Sale),
		BusinessID: businessID,
		UserID:     userID,
		CreatedAt:  time.Now().UTC(),
		Items:      make([]domain.SaleLineItem, 0, len(items)),
	}

	for _, item := range items {
		product := working[item.ProductID]
		sale.Items = append(sale.Items, domain.SaleLineItem{
			ID:                   xid.New(xid.SaleLine),
			SaleID:               sale.ID,
			ProductID:            product.ID,
			Quantity:             item.Quantity,
			UnitPriceAtSaleCents: product.PriceCents,
			UnitCostAtSaleCents:  product.CostBasisCents,
		})
		sale.TotalAmountCents += int64(item.Quantity) * product.PriceCents
		sale.TotalBaseCostCents += int64(item.Quantity) * product.CostBasisCents
	}

	for id, product := range working {
		s.productsByID[id] = product
	}
	s.salesByID[sale.ID] = sale
	return cloneSale(sale), nil
}

func (s *Store) GetSale(_ context.Context, businessID string, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[saleID]
	if !ok || sale.BusinessID != businessID {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, businessID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 32)
	for _, sale := range s.salesByID {
		if sale.BusinessID != businessID || !inRange(sale.CreatedAt, from, to) {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return sales, nil
}

func (s *Store) DailySalesTotal(_ context.Context, businessID string, from time.Time, to time.Time) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count, total int64
	for _, sale := range s.salesByID {
		if sale.BusinessID != businessID || !inRange(sale.CreatedAt, from, to) {
			continue
		}
		count++
		total += sale.TotalAmountCents
	}
	return count, total, nil
}

func (s *Store) IntervalSales(_ context.Context, businessID string, from time.Time, to time.Time, bucket time.Duration) ([]domain.IntervalBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bucket <= 0 || !from.Before(to) {
		return nil, store.ErrInvalidInput
	}

	buckets := make([]domain.IntervalBucket, 0, 8)
	for start := from; start.Before(to); start = start.Add(bucket) {
		end := start.Add(bucket)
		if end.After(to) {
			end = to
		}
		buckets = append(buckets, domain.IntervalBucket{Start: start, End: end})
	}

	for _, sale := range s.salesByID {
		if sale.BusinessID != businessID || !inRange(sale.CreatedAt, from, to) {
			continue
		}
		idx := int(sale.CreatedAt.Sub(from) / bucket)
		if idx < 0 || idx >= len(buckets) {
			continue
		}
		buckets[idx].SaleCount++
		buckets[idx].TotalAmountCents += sale.TotalAmountCents
	}
	return buckets, nil
}

func (s *Store) ProfitTotals(_ context.Context, businessID string, from time.Time, to time.Time) (int64, int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count, amount, baseCost int64
	for _, sale := range s.salesByID {
		if sale.BusinessID != businessID || !inRange(sale.CreatedAt, from, to) {
			continue
		}
		count++
		amount += sale.TotalAmountCents
		baseCost += sale.TotalBaseCostCents
	}
	return count, amount, baseCost, nil
}

func (s *Store) TopProducts(_ context.Context, businessID string, from time.Time, to time.Time, limit int) ([]domain.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		return nil, store.ErrInvalidInput
	}

	byProduct := make(map[string]*domain.TopProduct)
	for _, sale := range s.salesByID {
		if sale.BusinessID != businessID || !inRange(sale.CreatedAt, from, to) {
			continue
		}
		for _, line := range sale.Items {
			agg, ok := byProduct[line.ProductID]
			if !ok {
				name := ""
				if p, exists := s.productsByID[line.ProductID]; exists {
					name = p.Name
				}
				agg = &domain.TopProduct{ProductID: line.ProductID, Name: name}
				byProduct[line.ProductID] = agg
			}
			agg.QuantitySold += int64(line.Quantity)
			agg.TotalAmountCents += int64(line.Quantity) * line.UnitPriceAtSaleCents
		}
	}

	top := make([]domain.TopProduct, 0, len(byProduct))
	for _, agg := range byProduct {
		top = append(top, *agg)
	}
	slices.SortFunc(top, func(a, b domain.TopProduct) int {
		if a.QuantitySold != b.QuantitySold {
			if a.QuantitySold > b.QuantitySold {
				return -1
			}
			return 1
		}
		return cmpString(a.ProductID, b.ProductID)
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func (s *Store) RestockCandidates(_ context.Context, businessID string, threshold int) ([]domain.RestockCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if threshold < 1 {
		return nil, store.ErrInvalidInput
	}

	candidates := make([]domain.RestockCandidate, 0, 16)
	for _, p := range s.productsByID {
		if p.BusinessID != businessID || !p.Active || p.QuantityOnHand >= threshold {
			continue
		}
		candidates = append(candidates, domain.RestockCandidate{
			ProductID:            p.ID,
			BarCode:              p.BarCode,
			Name:                 p.Name,
			QuantityOnHand:       p.QuantityOnHand,
			QuantitySinceRestock: p.QuantitySinceRestock,
		})
	}
	slices.SortFunc(candidates, func(a, b domain.RestockCandidate) int {
		if a.QuantityOnHand != b.QuantityOnHand {
			return a.QuantityOnHand - b.QuantityOnHand
		}
		return cmpString(a.ProductID, b.ProductID)
	})
	return candidates, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New(xid.Audit)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, businessID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		if s.auditLogs[i].BusinessID == businessID {
			logs = append(logs, s.auditLogs[i])
		}
	}
	return logs, nil
}

func inRange(at, from, to time.Time) bool {
	return !at.Before(from) && at.Before(to)
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	cloned := *sale
	cloned.Items = make([]domain.SaleLineItem, len(sale.Items))
	copy(cloned.Items, sale.Items)
	return &cloned
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}
