package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/duetrack/duetrack/internal/company/domain"
	"github.com/duetrack/duetrack/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("company.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, input domain.CreateCompanyInput) (*domain.Company, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.ErrInvalidCompany
	}

	now := time.Now().UTC()
	company := domain.Company{
		ID:           s.genID.Generate(),
		Name:         name,
		ContactEmail: strings.TrimSpace(input.ContactEmail),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, &company); err != nil {
		return nil, err
	}

	s.log.Info("company created",
		zap.String("company_id", company.ID.String()),
		zap.String("name", company.Name),
	)
	return &company, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Company, error) {
	if id == 0 {
		return nil, domain.ErrInvalidCompany
	}
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, req domain.ListCompaniesRequest) (domain.ListCompaniesResponse, error) {
	companies, total, err := s.repo.List(ctx, s.db, req.Limit(), req.Offset())
	if err != nil {
		return domain.ListCompaniesResponse{}, err
	}
	return domain.ListCompaniesResponse{
		PageInfo:  pagination.BuildPageInfo(req.Pagination, total),
		Companies: companies,
	}, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, input domain.UpdateCompanyInput) (*domain.Company, error) {
	company, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domain.ErrInvalidCompany
		}
		company.Name = name
	}
	if input.ContactEmail != nil {
		company.ContactEmail = strings.TrimSpace(*input.ContactEmail)
	}
	company.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, company); err != nil {
		return nil, err
	}
	return company, nil
}
