package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/duetrack/duetrack/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("company_not_found")
	ErrInvalidCompany = errors.New("invalid_company")
)

type CreateCompanyInput struct {
	Name         string
	ContactEmail string
}

type UpdateCompanyInput struct {
	Name         *string
	ContactEmail *string
}

type ListCompaniesRequest struct {
	pagination.Pagination
}

type ListCompaniesResponse struct {
	pagination.PageInfo
	Companies []Company `json:"companies"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, company *Company) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Company, error)
	List(ctx context.Context, db *gorm.DB, limit, offset int) ([]Company, int64, error)
	Update(ctx context.Context, db *gorm.DB, company *Company) error
}

type Service interface {
	Create(ctx context.Context, input CreateCompanyInput) (*Company, error)
	Get(ctx context.Context, id snowflake.ID) (*Company, error)
	List(ctx context.Context, req ListCompaniesRequest) (ListCompaniesResponse, error)
	Update(ctx context.Context, id snowflake.ID, input UpdateCompanyInput) (*Company, error)
}
