package store

import (
	"context"
	"errors"
	"time"

	"tokomitra/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("already exists")
	ErrNotAMember        = errors.New("not a member of business")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidInput      = errors.New("invalid input")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Repository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	CreateBusiness(ctx context.Context, business domain.Business) (*domain.Business, error)
	GetBusiness(ctx context.Context, businessID string) (*domain.Business, error)
	ListBusinessesForUser(ctx context.Context, userID string) ([]domain.Business, error)

	UpsertMembership(ctx context.Context, membership domain.Membership) (*domain.Membership, error)
	GetMembership(ctx context.Context, userID string, businessID string) (*domain.Membership, error)
	ListMembers(ctx context.Context, businessID string) ([]domain.Membership, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, businessID string, productID string) (*domain.Product, error)
	GetProductByBarCode(ctx context.Context, businessID string, barCode string) (*domain.Product, error)
	ListProducts(ctx context.Context, businessID string) ([]domain.Product, error)
	RestockProduct(ctx context.Context, businessID string, productID string, quantity int) (*domain.Product, error)

	CreateSale(ctx context.Context, businessID string, userID string, items []domain.SaleLineItemRequest) (*domain.Sale, error)
	GetSale(ctx context.Context, businessID string, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, businessID string, from time.Time, to time.Time) ([]domain.Sale, error)

	DailySalesTotal(ctx context.Context, businessID string, from time.Time, to time.Time) (int64, int64, error)
	IntervalSales(ctx context.Context, businessID string, from time.Time, to time.Time, bucket time.Duration) ([]domain.IntervalBucket, error)
	ProfitTotals(ctx context.Context, businessID string, from time.Time, to time.Time) (int64, int64, int64, error)
	TopProducts(ctx context.Context, businessID string, from time.Time, to time.Time, limit int) ([]domain.TopProduct, error)
	RestockCandidates(ctx context.Context, businessID string, threshold int) ([]domain.RestockCandidate, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, businessID string, limit int) ([]domain.AuditLog, error)

	ListBusinesses(ctx context.Context) ([]domain.Business, error)
}
