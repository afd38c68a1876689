package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/muhammadshahms/shoe-shop/internal/events"
	"github.com/muhammadshahms/shoe-shop/internal/logging"
	"github.com/muhammadshahms/shoe-shop/internal/models"
	"github.com/muhammadshahms/shoe-shop/internal/repo"
	"github.com/muhammadshahms/shoe-shop/internal/transport"
)

// ProductIndex is implemented by *search.Index.
type ProductIndex interface {
	IndexProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, id uint) error
	Search(ctx context.Context, query string, from, size int) (int64, []models.Product, error)
}

type CatalogService struct {
	Repo *repo.GormRepo
	// Index and Events are optional.
	Index  ProductIndex
	Events events.Publisher
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	p, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		return nil, notFound(err, "product")
	}
	return p, nil
}

func (s *CatalogService) GetProducts(ctx context.Context, offset, limit int) (int64, []models.Product, error) {
	return s.Repo.GetProducts(ctx, offset, limit)
}

func (s *CatalogService) CreateProduct(ctx context.Context, req transport.CreateProductRequest) (*models.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}

	p, err := s.Repo.CreateProduct(ctx, &models.Product{
		Name:        name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, events.TypeProductUpserted, *p)
	return p, nil
}

func (s *CatalogService) PatchProduct(ctx context.Context, req transport.PatchProductRequest, id uint) (*models.Product, error) {
	if req.Price != nil && req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}

	p, err := s.Repo.PatchProduct(ctx, req, id)
	if err != nil {
		return nil, notFound(err, "product")
	}
	s.changed(ctx, events.TypeProductUpserted, *p)
	return p, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id uint) error {
	if err := s.Repo.DeleteProduct(ctx, id); err != nil {
		return notFound(err, "product")
	}
	s.changed(ctx, events.TypeProductDeleted, models.Product{ID: id})
	return nil
}

// Search uses the search index when configured and falls back to a database
// substring match otherwise.
func (s *CatalogService) Search(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return 0, nil, fmt.Errorf("%w: query required", ErrValidation)
	}
	if s.Index != nil {
		return s.Index.Search(ctx, q, offset, limit)
	}
	return s.Repo.SearchProducts(ctx, q, offset, limit)
}

// changed keeps the search index and downstream consumers in step. Failures
// are logged; the database stays the source of truth.
func (s *CatalogService) changed(ctx context.Context, kind string, p models.Product) {
	l := logging.FromContext(ctx).With("svc", "catalog", "product_id", p.ID)

	if s.Index != nil {
		var err error
		if kind == events.TypeProductDeleted {
			err = s.Index.DeleteProduct(ctx, p.ID)
		} else {
			err = s.Index.IndexProduct(ctx, p)
		}
		if err != nil {
			l.Error("product_index_failed", "kind", kind, "error", err)
		}
	}

	if s.Events != nil {
		ev := events.ProductChanged{
			Type:       kind,
			ProductID:  p.ID,
			Name:       p.Name,
			Price:      p.Price,
			Quantity:   p.Quantity,
			OccurredAt: time.Now().UTC(),
		}
		if err := s.Events.Publish(ctx, fmt.Sprint(p.ID), ev); err != nil {
			l.Error("product_event_publish_failed", "kind", kind, "error", err)
		}
	}
}
