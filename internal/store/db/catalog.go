package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/himanstore/dmpilot/internal/store"
)

// CatalogStore implements store.CatalogStore.
type CatalogStore struct {
	db *sql.DB
}

const productColumns = `id, slug, name, default_price, auto_reply, system_prompt, variant_exclusions`

func (s *CatalogStore) ProductByID(ctx context.Context, id string) (*store.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// ProductBySlugOrSKU resolves the key as a variant SKU first, then as a
// product slug or name.
func (s *CatalogStore) ProductBySlugOrSKU(ctx context.Context, key string) (*store.Product, error) {
	var productID string
	err := s.db.QueryRowContext(ctx,
		`SELECT product_id FROM product_variants WHERE sku = $1`, key).Scan(&productID)
	if err == nil {
		return s.ProductByID(ctx, productID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve sku: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE slug = $1 OR name = $2`, key, key)
	return scanProduct(row)
}

func scanProduct(row *sql.Row) (*store.Product, error) {
	var (
		p          store.Product
		price      sql.NullFloat64
		sysPrompt  sql.NullString
		exclusions sql.NullString
	)
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &price, &p.AutoReply, &sysPrompt, &exclusions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}
	p.DefaultPrice = price.Float64
	p.SystemPrompt = sysPrompt.String
	p.VariantExclusions = exclusions.String
	return &p, nil
}

func (s *CatalogStore) VariantsFor(ctx context.Context, productID string) ([]store.Variant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, product_id, name, color, size, price
		FROM product_variants WHERE product_id = $1 ORDER BY sku`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("variants: %w", err)
	}
	defer rows.Close()

	var out []store.Variant
	for rows.Next() {
		var (
			v                 store.Variant
			name, color, size sql.NullString
			price             sql.NullFloat64
		)
		if err := rows.Scan(&v.SKU, &v.ProductID, &name, &color, &size, &price); err != nil {
			return nil, fmt.Errorf("variants scan: %w", err)
		}
		v.Name = name.String
		v.Color = color.String
		v.Size = size.String
		v.Price = price.Float64
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *CatalogStore) ImagesFor(ctx context.Context, productID, variantKey string, limit int) ([]store.ProductImage, error) {
	if limit <= 0 {
		limit = 3
	}
	// Variant-specific images are allowed alongside generic ones (NULL key);
	// explicit send orders sort ahead of unordered images.
	query := `
		SELECT id, product_id, url, variant_key, send, send_order, position
		FROM product_images
		WHERE product_id = $1 AND send = TRUE`
	args := []any{productID}
	if variantKey != "" {
		query += ` AND (variant_key IS NULL OR variant_key = $2)`
		args = append(args, variantKey)
	}
	query += `
		ORDER BY CASE WHEN send_order IS NULL THEN 1 ELSE 0 END, send_order ASC, position ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("images: %w", err)
	}
	defer rows.Close()

	var out []store.ProductImage
	for rows.Next() {
		var (
			img       store.ProductImage
			vkey      sql.NullString
			sendOrder sql.NullInt64
		)
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &vkey, &img.Send, &sendOrder, &img.Position); err != nil {
			return nil, fmt.Errorf("images scan: %w", err)
		}
		img.VariantKey = vkey.String
		img.SendOrder = int(sendOrder.Int64)
		if img.URL == "" {
			continue
		}
		out = append(out, img)
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}
