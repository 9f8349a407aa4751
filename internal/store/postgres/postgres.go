package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokomitra/backend/internal/domain"
	"tokomitra/backend/internal/store"
	"tokomitra/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.Username == "" || user.Password == "" {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New(xid.User)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Username, user.Password, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.Password, &user.Active, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 32)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $1 WHERE username = $2
	`, password, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateBusiness inserts the business and its owner membership in one
// transaction so a business can never exist without an owner member.
func (s *Store) CreateBusiness(ctx context.Context, business domain.Business) (*domain.Business, error) {
	if business.Name == "" || business.OwnerID == "" {
		return nil, store.ErrInvalidInput
	}
	if business.ID == "" {
		business.ID = xid.New(xid.Business)
	}
	if business.CreatedAt.IsZero() {
		business.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO businesses (id, name, owner_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, business.ID, business.Name, business.OwnerID, business.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO business_members (user_id, business_id, role, created_at)
		VALUES ($1, $2, $3, $4)
	`, business.OwnerID, business.ID, domain.RoleOwner, business.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &business, nil
}

func (s *Store) GetBusiness(ctx context.Context, businessID string) (*domain.Business, error) {
	var business domain.Business
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, created_at
		FROM businesses
		WHERE id = $1
	`, businessID).Scan(&business.ID, &business.Name, &business.OwnerID, &business.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &business, nil
}

func (s *Store) ListBusinesses(ctx context.Context) ([]domain.Business, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, owner_id, created_at
		FROM businesses
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBusinesses(rows)
}

func (s *Store) ListBusinessesForUser(ctx context.Context, userID string) ([]domain.Business, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.name, b.owner_id, b.created_at
		FROM businesses b
		JOIN business_members m ON m.business_id = b.id
		WHERE m.user_id = $1
		ORDER BY b.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBusinesses(rows)
}

func scanBusinesses(rows *sql.Rows) ([]domain.Business, error) {
	businesses := make([]domain.Business, 0, 8)
	for rows.Next() {
		var b domain.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.OwnerID, &b.CreatedAt); err != nil {
			return nil, err
		}
		businesses = append(businesses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return businesses, nil
}

func (s *Store) UpsertMembership(ctx context.Context, membership domain.Membership) (*domain.Membership, error) {
	if membership.UserID == "" || membership.BusinessID == "" || !domain.ValidRole(membership.Role) {
		return nil, store.ErrInvalidInput
	}
	if membership.CreatedAt.IsZero() {
		membership.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO business_members (user_id, business_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, business_id) DO UPDATE SET role = EXCLUDED.role
	`, membership.UserID, membership.BusinessID, membership.Role, membership.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (s *Store) GetMembership(ctx context.Context, userID string, businessID string) (*domain.Membership, error) {
	var m domain.Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, business_id, role, created_at
		FROM business_members
		WHERE user_id = $1 AND business_id = $2
	`, userID, businessID).Scan(&m.UserID, &m.BusinessID, &m.Role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListMembers(ctx context.Context, businessID string) ([]domain.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, business_id, role, created_at
		FROM business_members
		WHERE business_id = $1
		ORDER BY user_id
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.Membership, 0, 8)
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.UserID, &m.BusinessID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.BusinessID == "" || product.BarCode == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if product.PriceCents < 1 || product.CostBasisCents < 0 || product.QuantityOnHand < 0 {
		return nil, store.ErrInvalidInput
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products
			(id, business_id, bar_code, name, price_cents, cost_basis_cents,
			 quantity_on_hand, quantity_since_restock, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, product.ID, product.BusinessID, product.BarCode, product.Name,
		product.PriceCents, product.CostBasisCents,
		product.QuantityOnHand, product.QuantitySinceRestock,
		product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 || product.CostBasisCents < 0 {
		return nil, store.ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $1, price_cents = $2, cost_basis_cents = $3, active = $4, updated_at = now()
		WHERE id = $5 AND business_id = $6
		RETURNING id, business_id, bar_code, name, price_cents, cost_basis_cents,
			quantity_on_hand, quantity_since_restock, active, created_at, updated_at
	`, product.Name, product.PriceCents, product.CostBasisCents, product.Active,
		product.ID, product.BusinessID)

	updated, err := scanProductRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) GetProduct(ctx context.Context, businessID string, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, bar_code, name, price_cents, cost_basis_cents,
			quantity_on_hand, quantity_since_restock, active, created_at, updated_at
		FROM products
		WHERE id = $1 AND business_id = $2
	`, productID, businessID)

	product, err := scanProductRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *Store) GetProductByBarCode(ctx context.Context, businessID string, barCode string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, bar_code, name, price_cents, cost_basis_cents,
			quantity_on_hand, quantity_since_restock, active, created_at, updated_at
		FROM products
		WHERE business_id = $1 AND bar_code = $2
	`, businessID, barCode)

	product, err := scanProductRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *Store) ListProducts(ctx context.Context, businessID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, bar_code, name, price_cents, cost_basis_cents,
			quantity_on_hand, quantity_since_restock, active, created_at, updated_at
		FROM products
		WHERE business_id = $1 AND active = true
		ORDER BY name
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.BusinessID, &p.BarCode, &p.Name,
			&p.PriceCents, &p.CostBasisCents,
			&p.QuantityOnHand, &p.QuantitySinceRestock,
			&p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) RestockProduct(ctx context.Context, businessID string, productID string, quantity int) (*domain.Product, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET quantity_on_hand = quantity_on_hand + $1,
			quantity_since_restock = 0,
			updated_at = now()
		WHERE id = $2 AND business_id = $3 AND active = true
		RETURNING id, business_id, bar_code, name, price_cents, cost_basis_cents,
			quantity_on_hand, quantity_since_restock, active, created_at, updated_at
	`, quantity, productID, businessID)

	product, err := scanProductRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

// CreateSale commits a whole cart or nothing. Inside one serializable
// transaction the referenced product rows are locked and re-read, stock is
// validated against the fresh quantities, and price/cost snapshots are taken
// from the locked rows. The client never supplies prices or timestamps.
//
// Serialization failures (two carts racing for the same rows) are retried a
// few times; the retry re-reads the rows, so a cart that lost a race for the
// last unit comes back as ErrInsufficientStock rather than a transient error.
func (s *Store) CreateSale(ctx context.Context, businessID string, userID string, items []domain.SaleLineItemRequest) (*domain.Sale, error) {
	if len(items) == 0 {
		return nil, store.ErrEmptyCart
	}
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
	}

	var sale *domain.Sale
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		sale, err = s.createSaleTx(ctx, businessID, userID, items)
		if err == nil || !isSerializationFailure(err) {
			return sale, err
		}
	}
	return nil, err
}

func (s *Store) createSaleTx(ctx context.Context, businessID string, userID string, items []domain.SaleLineItemRequest) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	productIDs := uniqueProductIDs(items)
	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, price_cents, cost_basis_cents, quantity_on_hand
		FROM products
		WHERE business_id = $1 AND active = true AND id = ANY($2)
		FOR UPDATE
	`, businessID, productIDs)
	if err != nil {
		return nil, err
	}
	type lockedProduct struct {
		name           string
		priceCents     int64
		costBasisCents int64
		quantityOnHand int
	}
	productMap := make(map[string]lockedProduct, len(productIDs))
	for productRows.Next() {
		var id string
		var p lockedProduct
		if err := productRows.Scan(&id, &p.name, &p.priceCents, &p.costBasisCents, &p.quantityOnHand); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[id] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	sale := domain.Sale{
		ID:         xid.New(xid.Sale),
		BusinessID: businessID,
		UserID:     userID,
		CreatedAt:  time.Now().UTC(),
		Items:      make([]domain.SaleLineItem, 0, len(items)),
	}

	for _, item := range items {
		product, exists := productMap[item.ProductID]
		if !exists {
			return nil, store.ErrProductNotFound
		}
		if product.quantityOnHand < item.Quantity {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrInsufficientStock)
		}
		product.quantityOnHand -= item.Quantity
		productMap[item.ProductID] = product

		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity_on_hand = quantity_on_hand - $1,
				quantity_since_restock = quantity_since_restock + $1,
				updated_at = now()
			WHERE id = $2
		`, item.Quantity, item.ProductID)
		if err != nil {
			return nil, err
		}

		sale.Items = append(sale.Items, domain.SaleLineItem{
			ID:                   xid.New(xid.SaleLine),
			SaleID:               sale.ID,
			ProductID:            item.ProductID,
			Quantity:             item.Quantity,
			UnitPriceAtSaleCents: product.priceCents,
			UnitCostAtSaleCents:  product.costBasisCents,
		})
		sale.TotalAmountCents += product.priceCents * int64(item.Quantity)
		sale.TotalBaseCostCents += product.costBasisCents * int64(item.Quantity)
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, business_id, user_id, total_amount_cents, total_base_cost_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sale.ID, sale.BusinessID, sale.UserID, sale.TotalAmountCents, sale.TotalBaseCostCents, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, line := range sale.Items {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_line_items
				(id, sale_id, product_id, quantity, unit_price_at_sale_cents, unit_cost_at_sale_cents)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, line.ID, line.SaleID, line.ProductID, line.Quantity,
			line.UnitPriceAtSaleCents, line.UnitCostAtSaleCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, businessID string, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, user_id, total_amount_cents, total_base_cost_cents, created_at
		FROM sales
		WHERE id = $1 AND business_id = $2
	`, saleID, businessID).Scan(&sale.ID, &sale.BusinessID, &sale.UserID,
		&sale.TotalAmountCents, &sale.TotalBaseCostCents, &sale.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := s.loadLineItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, businessID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, user_id, total_amount_cents, total_base_cost_cents, created_at
		FROM sales
		WHERE business_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at, id
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	saleIDs := make([]string, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.BusinessID, &sale.UserID,
			&sale.TotalAmountCents, &sale.TotalBaseCostCents, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(saleIDs) == 0 {
		return sales, nil
	}
	items, err := s.loadLineItems(ctx, saleIDs)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) loadLineItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleLineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price_at_sale_cents, unit_cost_at_sale_cents
		FROM sale_line_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[string][]domain.SaleLineItem, len(saleIDs))
	for rows.Next() {
		var line domain.SaleLineItem
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.Quantity,
			&line.UnitPriceAtSaleCents, &line.UnitCostAtSaleCents); err != nil {
			return nil, err
		}
		items[line.SaleID] = append(items[line.SaleID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DailySalesTotal(ctx context.Context, businessID string, from time.Time, to time.Time) (int64, int64, error) {
	var count, total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(total_amount_cents),0)::bigint
		FROM sales
		WHERE business_id = $1 AND created_at >= $2 AND created_at < $3
	`, businessID, from, to).Scan(&count, &total)
	if err != nil {
		return 0, 0, err
	}
	return count, total, nil
}

func (s *Store) IntervalSales(ctx context.Context, businessID string, from time.Time, to time.Time, bucket time.Duration) ([]domain.IntervalBucket, error) {
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

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			FLOOR(EXTRACT(EPOCH FROM (created_at - $2)) / $4)::int,
			COUNT(*)::bigint,
			COALESCE(SUM(total_amount_cents),0)::bigint
		FROM sales
		WHERE business_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY 1
	`, businessID, from, to, bucket.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var count, total int64
		if err := rows.Scan(&idx, &count, &total); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(buckets) {
			continue
		}
		buckets[idx].SaleCount = count
		buckets[idx].TotalAmountCents = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buckets, nil
}

func (s *Store) ProfitTotals(ctx context.Context, businessID string, from time.Time, to time.Time) (int64, int64, int64, error) {
	var count, amount, baseCost int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(total_amount_cents),0)::bigint,
			COALESCE(SUM(total_base_cost_cents),0)::bigint
		FROM sales
		WHERE business_id = $1 AND created_at >= $2 AND created_at < $3
	`, businessID, from, to).Scan(&count, &amount, &baseCost)
	if err != nil {
		return 0, 0, 0, err
	}
	return count, amount, baseCost, nil
}

func (s *Store) TopProducts(ctx context.Context, businessID string, from time.Time, to time.Time, limit int) ([]domain.TopProduct, error) {
	if limit < 1 {
		return nil, store.ErrInvalidInput
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			li.product_id,
			COALESCE(MAX(p.name), ''),
			SUM(li.quantity)::bigint,
			SUM(li.quantity * li.unit_price_at_sale_cents)::bigint
		FROM sale_line_items li
		JOIN sales s ON s.id = li.sale_id
		LEFT JOIN products p ON p.id = li.product_id
		WHERE s.business_id = $1 AND s.created_at >= $2 AND s.created_at < $3
		GROUP BY li.product_id
		ORDER BY 3 DESC, li.product_id ASC
		LIMIT $4
	`, businessID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := make([]domain.TopProduct, 0, limit)
	for rows.Next() {
		var tp domain.TopProduct
		if err := rows.Scan(&tp.ProductID, &tp.Name, &tp.QuantitySold, &tp.TotalAmountCents); err != nil {
			return nil, err
		}
		top = append(top, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return top, nil
}

func (s *Store) RestockCandidates(ctx context.Context, businessID string, threshold int) ([]domain.RestockCandidate, error) {
	if threshold < 1 {
		return nil, store.ErrInvalidInput
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bar_code, name, quantity_on_hand, quantity_since_restock
		FROM products
		WHERE business_id = $1 AND active = true AND quantity_on_hand < $2
		ORDER BY quantity_on_hand, id
	`, businessID, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]domain.RestockCandidate, 0, 16)
	for rows.Next() {
		var c domain.RestockCandidate
		if err := rows.Scan(&c.ProductID, &c.BarCode, &c.Name, &c.QuantityOnHand, &c.QuantitySinceRestock); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New(xid.Audit)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, business_id, actor_id, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.BusinessID, entry.ActorID, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, businessID string, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, actor_id, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.BusinessID, &entry.ActorID, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func scanProductRow(row *sql.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.BusinessID, &p.BarCode, &p.Name,
		&p.PriceCents, &p.CostBasisCents,
		&p.QuantityOnHand, &p.QuantitySinceRestock,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func uniqueProductIDs(items []domain.SaleLineItemRequest) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isSerializationFailure matches serialization (40001) and deadlock (40P01)
// aborts, both of which are safe to retry.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
