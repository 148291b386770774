package redisx

import (
	"fmt"
	"time"
)

const (
	// product:{id} -> Product JSON
	KeyProduct = "product:%s"

	// products:all -> []Product JSON (non-deleted)
	KeyAllProducts = "products:all"

	// products:seller:{seller_id} -> []product_id
	KeySellerProductIDs = "products:seller:%s"

	// products:seller:full:{seller_id} -> []Product JSON dengan seller
	KeySellerProducts = "products:seller:full:%s"

	// gen:{key} -> counter, bumped by every invalidation of key
	keyGeneration = "gen:%s"
)

var (
	TTLCache      = 60 * time.Second
	TTLGeneration = 24 * time.Hour
)

func ProductKey(id string) string { return fmt.Sprintf(KeyProduct, id) }

func SellerProductIDsKey(sellerID string) string {
	return fmt.Sprintf(KeySellerProductIDs, sellerID)
}

func SellerProductsKey(sellerID string) string {
	return fmt.Sprintf(KeySellerProducts, sellerID)
}

// ProductKeys lists every key a mutation of the product can make stale.
// Empty ids are skipped.
func ProductKeys(productID, sellerID string) []string {
	keys := []string{KeyAllProducts}
	if productID != "" {
		keys = append(keys, ProductKey(productID))
	}
	if sellerID != "" {
		keys = append(keys, SellerProductIDsKey(sellerID), SellerProductsKey(sellerID))
	}
	return keys
}

func generationKey(key string) string { return fmt.Sprintf(keyGeneration, key) }
