package products

import (
	"context"
	"log/slog"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/redisx"
)

// Store is the product repository; *Repo in production.
type Store interface {
	Create(ctx context.Context, in CreateInput) (Product, error)
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context) ([]Product, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Product, error)
	IDsBySeller(ctx context.Context, sellerID string) ([]string, error)
	GetMany(ctx context.Context, ids []string) ([]Product, error)
	Update(ctx context.Context, id, sellerID string, in UpdateInput) error
	SoftDelete(ctx context.Context, id, sellerID string) error
	Delete(ctx context.Context, id, sellerID string) error
}

type SellerDirectory interface {
	Sellers(ctx context.Context, ids []string) ([]Seller, error)
}

// Service serves product reads through the cache and keeps it coherent on writes.
type Service struct {
	Repo    Store
	Cache   *redisx.Cache
	Sellers SellerDirectory
	Log     *slog.Logger
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Product, error) {
	var created Product
	err := s.Cache.Mutate(ctx, redisx.ProductKeys("", in.SellerID), func(ctx context.Context) ([]string, error) {
		p, err := s.Repo.Create(ctx, in)
		if err != nil {
			return nil, err
		}
		created = p
		return []string{redisx.ProductKey(p.ID)}, nil
	})
	if err != nil {
		return Product{}, err
	}
	s.Log.Info("product created", "product_id", created.ID, "seller_id", created.SellerID)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	p, err := redisx.Load(ctx, s.Cache, redisx.ProductKey(id), func(ctx context.Context) (Product, error) {
		p, err := s.Repo.Get(ctx, id)
		if err != nil {
			return Product{}, err
		}
		return s.enrich(ctx, []Product{p})[0], nil
	})
	if err != nil {
		return Product{}, err
	}
	// bulk lookups also cache soft-deleted products under the same key
	if p.IsDeleted {
		return Product{}, apperr.NotFound("Product not found")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	return redisx.Load(ctx, s.Cache, redisx.KeyAllProducts, func(ctx context.Context) ([]Product, error) {
		ps, err := s.Repo.List(ctx)
		if err != nil {
			return nil, err
		}
		return s.enrich(ctx, ps), nil
	})
}

func (s *Service) BySeller(ctx context.Context, sellerID string) ([]Product, error) {
	return redisx.Load(ctx, s.Cache, redisx.SellerProductsKey(sellerID), func(ctx context.Context) ([]Product, error) {
		ps, err := s.Repo.ListBySeller(ctx, sellerID)
		if err != nil {
			return nil, err
		}
		return s.enrich(ctx, ps), nil
	})
}

func (s *Service) IDsBySeller(ctx context.Context, sellerID string) ([]string, error) {
	return redisx.Load(ctx, s.Cache, redisx.SellerProductIDsKey(sellerID), func(ctx context.Context) ([]string, error) {
		return s.Repo.IDsBySeller(ctx, sellerID)
	})
}

// Details returns the products that exist among ids, in request order.
func (s *Service) Details(ctx context.Context, ids []string) ([]Product, error) {
	ids = uniq(ids)
	found, err := redisx.LoadMany(ctx, s.Cache, ids, redisx.ProductKey,
		func(ctx context.Context, missing []string) (map[string]Product, error) {
			ps, err := s.Repo.GetMany(ctx, missing)
			if err != nil {
				return nil, err
			}
			out := make(map[string]Product, len(ps))
			for _, p := range s.enrich(ctx, ps) {
				out[p.ID] = p
			}
			return out, nil
		})
	if err != nil {
		return nil, err
	}
	res := make([]Product, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			res = append(res, p)
		}
	}
	return res, nil
}

func (s *Service) Update(ctx context.Context, id, sellerID string, in UpdateInput) error {
	return s.Cache.Mutate(ctx, redisx.ProductKeys(id, sellerID), func(ctx context.Context) ([]string, error) {
		return nil, s.Repo.Update(ctx, id, sellerID, in)
	})
}

func (s *Service) SoftDelete(ctx context.Context, id, sellerID string) error {
	return s.Cache.Mutate(ctx, redisx.ProductKeys(id, sellerID), func(ctx context.Context) ([]string, error) {
		return nil, s.Repo.SoftDelete(ctx, id, sellerID)
	})
}

func (s *Service) Delete(ctx context.Context, id, sellerID string) error {
	return s.Cache.Mutate(ctx, redisx.ProductKeys(id, sellerID), func(ctx context.Context) ([]string, error) {
		return nil, s.Repo.Delete(ctx, id, sellerID)
	})
}

// enrich embeds seller data. A failed lookup leaves products without seller.
func (s *Service) enrich(ctx context.Context, ps []Product) []Product {
	if s.Sellers == nil || len(ps) == 0 {
		return ps
	}
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.SellerID)
	}
	sellers, err := s.Sellers.Sellers(ctx, uniq(ids))
	if err != nil {
		s.Log.Warn("seller enrichment failed", "sellers", len(ids), "err", err)
		return ps
	}
	byID := make(map[string]Seller, len(sellers))
	for _, u := range sellers {
		byID[u.ID] = u
	}
	for i := range ps {
		if u, ok := byID[ps[i].SellerID]; ok {
			u := u
			ps[i].Seller = &u
		}
	}
	return ps
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
