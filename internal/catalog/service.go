// Package catalog serves the category and service listings customers
// browse, and the admin CRUD behind them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/skilllink/skilllink/pkg/apperrors"
	"github.com/skilllink/skilllink/pkg/models"
)

// CategoryRequest creates or updates a category.
type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Icon        string `json:"icon" validate:"omitempty,url"`
	Image       string `json:"image" validate:"omitempty,url"`
	Description string `json:"description" validate:"omitempty,max=2000"`
	SortOrder   int    `json:"sort_order"`
	IsActive    *bool  `json:"is_active"`
}

// ServiceRequest creates or updates a service.
type ServiceRequest struct {
	Name        string    `json:"name" validate:"required,max=100"`
	CategoryID  uuid.UUID `json:"category_id" validate:"required,uuid"`
	Description string    `json:"description" validate:"omitempty,max=2000"`
	Icon        string    `json:"icon" validate:"omitempty,url"`
	Image       string    `json:"image" validate:"omitempty,url"`
	IsActive    *bool     `json:"is_active"`
}

// CatalogService defines catalog operations.
type CatalogService interface {
	Start() error
	Stop() error
	ListCategories(ctx context.Context, includeInactive bool) ([]*models.Category, error)
	ListServices(ctx context.Context, categoryID *uuid.UUID, includeInactive bool) ([]*models.Service, error)
	CreateCategory(ctx context.Context, req *CategoryRequest) (*models.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, req *CategoryRequest) (*models.Category, error)
	CreateService(ctx context.Context, req *ServiceRequest) (*models.Service, error)
	UpdateService(ctx context.Context, id uuid.UUID, req *ServiceRequest) (*models.Service, error)
}

// Service implements CatalogService.
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new CatalogService.
func NewService(logger *zap.Logger, db *gorm.DB) (*Service, error) {
	return &Service{logger: logger, db: db}, nil
}

// Start starts the catalog service.
func (s *Service) Start() error {
	s.logger.Info("Catalog service started")
	return nil
}

// Stop stops the catalog service.
func (s *Service) Stop() error {
	s.logger.Info("Catalog service stopped")
	return nil
}

// ListCategories returns categories in display order. Inactive ones are
// included only for admins.
func (s *Service) ListCategories(ctx context.Context, includeInactive bool) ([]*models.Category, error) {
	q := s.db.WithContext(ctx).Model(&models.Category{})
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var categories []*models.Category
	if err := q.Order("sort_order ASC, name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// ListServices returns services, optionally filtered to one category.
func (s *Service) ListServices(ctx context.Context, categoryID *uuid.UUID, includeInactive bool) ([]*models.Service, error) {
	q := s.db.WithContext(ctx).Model(&models.Service{})
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	if categoryID != nil {
		q = q.Where("category_id = ?", *categoryID)
	}
	var services []*models.Service
	if err := q.Order("name ASC").Find(&services).Error; err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

// CreateCategory adds a category. Names are unique.
func (s *Service) CreateCategory(ctx context.Context, req *CategoryRequest) (*models.Category, error) {
	now := time.Now()
	cat := &models.Category{
		ID:          uuid.New(),
		Name:        req.Name,
		Icon:        req.Icon,
		Image:       req.Image,
		Description: req.Description,
		SortOrder:   req.SortOrder,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.IsActive != nil {
		cat.IsActive = *req.IsActive
	}
	if err := s.db.WithContext(ctx).Create(cat).Error; err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return cat, nil
}

// UpdateCategory applies the provided fields to an existing category.
func (s *Service) UpdateCategory(ctx context.Context, id uuid.UUID, req *CategoryRequest) (*models.Category, error) {
	var cat models.Category
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("category")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load category: %w", err)
	}
	cat.Name = req.Name
	cat.Icon = req.Icon
	cat.Image = req.Image
	cat.Description = req.Description
	cat.SortOrder = req.SortOrder
	if req.IsActive != nil {
		cat.IsActive = *req.IsActive
	}
	cat.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&cat).Error; err != nil {
		return nil, fmt.Errorf("failed to save category: %w", err)
	}
	return &cat, nil
}

// CreateService adds a service under a category.
func (s *Service) CreateService(ctx context.Context, req *ServiceRequest) (*models.Service, error) {
	var cat models.Category
	err := s.db.WithContext(ctx).Where("id = ?", req.CategoryID).First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("category")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load category: %w", err)
	}

	now := time.Now()
	svc := &models.Service{
		ID:          uuid.New(),
		Name:        req.Name,
		CategoryID:  req.CategoryID,
		Description: req.Description,
		Icon:        req.Icon,
		Image:       req.Image,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.IsActive != nil {
		svc.IsActive = *req.IsActive
	}
	if err := s.db.WithContext(ctx).Create(svc).Error; err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}

// UpdateService applies the provided fields to an existing service.
func (s *Service) UpdateService(ctx context.Context, id uuid.UUID, req *ServiceRequest) (*models.Service, error) {
	var svc models.Service
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&svc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("service")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load service: %w", err)
	}
	svc.Name = req.Name
	svc.CategoryID = req.CategoryID
	svc.Description = req.Description
	svc.Icon = req.Icon
	svc.Image = req.Image
	if req.IsActive != nil {
		svc.IsActive = *req.IsActive
	}
	svc.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&svc).Error; err != nil {
		return nil, fmt.Errorf("failed to save service: %w", err)
	}
	return &svc, nil
}
