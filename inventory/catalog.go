/*
catalog.go - Products and suppliers

PURPOSE:
  Plain CRUD over the products and suppliers documents. Ledger entries point
  at catalog records by id only, so deleting a product or supplier leaves its
  history valid but orphaned.
*/
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultUnit = "pcs"

type ProductInput struct {
	ID          string          `json:"id" validate:"omitempty,max=64"`
	Name        string          `json:"name" validate:"required,max=200"`
	Unit        string          `json:"unit" validate:"max=32"`
	DefaultCost decimal.Decimal `json:"defaultCost" validate:"gte=0"`
	SalePrice   decimal.Decimal `json:"salePrice" validate:"gte=0"`
}

type SupplierInput struct {
	ID          string          `json:"id" validate:"omitempty,max=64"`
	Name        string          `json:"name" validate:"required,max=200"`
	Contact     string          `json:"contact" validate:"max=200"`
	CreditLimit decimal.Decimal `json:"creditLimit" validate:"gte=0"`
}

type Catalog struct {
	Store  Store
	Locker Locker
	Clock  func() time.Time
}

func (c *Catalog) now() time.Time {
	if c.Clock == nil {
		return time.Now().UTC()
	}
	return c.Clock().UTC()
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (c *Catalog) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.Store.ReadDocument(ctx, DocProducts, &products); err != nil {
		return nil, err
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

func (c *Catalog) GetProduct(ctx context.Context, id ProductID) (Product, error) {
	products, err := c.ListProducts(ctx)
	if err != nil {
		return Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, &NotFoundError{Kind: "product", ID: string(id)}
}

func (c *Catalog) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	if err := validateInput(in); err != nil {
		return Product{}, err
	}
	now := c.now()
	product := Product{
		ID:          ProductID(in.ID),
		Name:        in.Name,
		Unit:        in.Unit,
		DefaultCost: in.DefaultCost,
		SalePrice:   in.SalePrice,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if product.ID == "" {
		product.ID = ProductID(uuid.NewString())
	}
	if product.Unit == "" {
		product.Unit = defaultUnit
	}

	err := mutateDocument(ctx, c.Store, c.Locker, DocProducts, func(products *[]Product) error {
		for _, p := range *products {
			if p.ID == product.ID {
				return invalid("id", fmt.Sprintf("product %q already exists", product.ID))
			}
		}
		*products = append(*products, product)
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

func (c *Catalog) UpdateProduct(ctx context.Context, id ProductID, in ProductInput) (Product, error) {
	if err := validateInput(in); err != nil {
		return Product{}, err
	}
	var updated Product
	err := mutateDocument(ctx, c.Store, c.Locker, DocProducts, func(products *[]Product) error {
		for i := range *products {
			p := &(*products)[i]
			if p.ID != id {
				continue
			}
			p.Name = in.Name
			if in.Unit != "" {
				p.Unit = in.Unit
			}
			p.DefaultCost = in.DefaultCost
			p.SalePrice = in.SalePrice
			p.UpdatedAt = c.now()
			updated = *p
			return nil
		}
		return &NotFoundError{Kind: "product", ID: string(id)}
	})
	return updated, err
}

func (c *Catalog) DeleteProduct(ctx context.Context, id ProductID) error {
	return mutateDocument(ctx, c.Store, c.Locker, DocProducts, func(products *[]Product) error {
		for i, p := range *products {
			if p.ID == id {
				*products = append((*products)[:i], (*products)[i+1:]...)
				return nil
			}
		}
		return &NotFoundError{Kind: "product", ID: string(id)}
	})
}

// =============================================================================
// SUPPLIERS
// =============================================================================

func (c *Catalog) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	var suppliers []Supplier
	if err := c.Store.ReadDocument(ctx, DocSuppliers, &suppliers); err != nil {
		return nil, err
	}
	if suppliers == nil {
		suppliers = []Supplier{}
	}
	return suppliers, nil
}

func (c *Catalog) GetSupplier(ctx context.Context, id SupplierID) (Supplier, error) {
	suppliers, err := c.ListSuppliers(ctx)
	if err != nil {
		return Supplier{}, err
	}
	for _, s := range suppliers {
		if s.ID == id {
			return s, nil
		}
	}
	return Supplier{}, &NotFoundError{Kind: "supplier", ID: string(id)}
}

func (c *Catalog) CreateSupplier(ctx context.Context, in SupplierInput) (Supplier, error) {
	if err := validateInput(in); err != nil {
		return Supplier{}, err
	}
	now := c.now()
	supplier := Supplier{
		ID:          SupplierID(in.ID),
		Name:        in.Name,
		Contact:     in.Contact,
		CreditLimit: in.CreditLimit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if supplier.ID == "" {
		supplier.ID = SupplierID(uuid.NewString())
	}

	err := mutateDocument(ctx, c.Store, c.Locker, DocSuppliers, func(suppliers *[]Supplier) error {
		for _, s := range *suppliers {
			if s.ID == supplier.ID {
				return invalid("id", fmt.Sprintf("supplier %q already exists", supplier.ID))
			}
		}
		*suppliers = append(*suppliers, supplier)
		return nil
	})
	if err != nil {
		return Supplier{}, err
	}
	return supplier, nil
}

func (c *Catalog) UpdateSupplier(ctx context.Context, id SupplierID, in SupplierInput) (Supplier, error) {
	if err := validateInput(in); err != nil {
		return Supplier{}, err
	}
	var updated Supplier
	err := mutateDocument(ctx, c.Store, c.Locker, DocSuppliers, func(suppliers *[]Supplier) error {
		for i := range *suppliers {
			s := &(*suppliers)[i]
			if s.ID != id {
				continue
			}
			s.Name = in.Name
			s.Contact = in.Contact
			s.CreditLimit = in.CreditLimit
			s.UpdatedAt = c.now()
			updated = *s
			return nil
		}
		return &NotFoundError{Kind: "supplier", ID: string(id)}
	})
	return updated, err
}

func (c *Catalog) DeleteSupplier(ctx context.Context, id SupplierID) error {
	return mutateDocument(ctx, c.Store, c.Locker, DocSuppliers, func(suppliers *[]Supplier) error {
		for i, s := range *suppliers {
			if s.ID == id {
				*suppliers = append((*suppliers)[:i], (*suppliers)[i+1:]...)
				return nil
			}
		}
		return &NotFoundError{Kind: "supplier", ID: string(id)}
	})
}
