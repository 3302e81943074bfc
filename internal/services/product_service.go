package services

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/go-playground/validator/v10"
)

// ProductService handles business logic related to the catalog.
type ProductService struct {
	repo     repositories.ProductRepository
	validate *validator.Validate
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository) *ProductService {
	return &ProductService{
		repo:     repo,
		validate: validator.New(),
	}
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	return s.repo.GetAll(ctx)
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateProduct validates and stores a new product.
func (s *ProductService) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := s.check(product); err != nil {
		return err
	}
	return s.repo.Create(ctx, product)
}

// UpdateProduct validates and replaces an existing product.
func (s *ProductService) UpdateProduct(ctx context.Context, product *models.Product) error {
	if err := s.check(product); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, product.ID); err != nil {
		return err
	}
	return s.repo.Update(ctx, product)
}

// DeleteProduct removes a product. Cart lines pointing at it drop out on their next refresh.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *ProductService) check(product *models.Product) error {
	if err := s.validate.Struct(product); err != nil {
		return validationError("%v", err)
	}
	if product.Price.IsNegative() {
		return validationError("price must not be negative")
	}
	return nil
}
