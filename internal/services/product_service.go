package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/cache"
	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/providers/crm"
)

const (
	productCacheKey = "products:catalog"
	// Short TTL so externally added products show up on the next request
	// rather than minutes later.
	productCacheTTL = 5 * time.Second
)

type ProductService interface {
	// Products returns the sellable catalog. An unavailable CRM yields an
	// empty catalog, not an error.
	Products(ctx context.Context) ([]models.Product, error)
}

type productService struct {
	crm   crm.Provider
	cache cache.Cache
	log   *logrus.Entry
}

func NewProductService(provider crm.Provider, c cache.Cache, log *logrus.Entry) ProductService {
	return &productService{crm: provider, cache: c, log: log}
}

func (s *productService) Products(ctx context.Context) ([]models.Product, error) {
	if !s.crm.Available() {
		return []models.Product{}, nil
	}

	if s.cache != nil {
		var cached []models.Product
		if hit, err := s.cache.GetJSON(ctx, productCacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	products, err := s.crm.ListProducts(ctx)
	if err != nil {
		s.log.WithError(err).Warn("could not list products from crm")
		return []models.Product{}, nil
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, productCacheKey, products, productCacheTTL); err != nil {
			s.log.WithError(err).Warn("could not cache product catalog")
		}
	}
	return products, nil
}
