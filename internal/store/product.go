package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/supermarx/karl/internal/logutil"
	"github.com/supermarx/karl/internal/querybuilder"
	"github.com/supermarx/karl/internal/rowcodec"
)

// ProductStore implements the product/productclass half of the data model:
// find-or-create products per supermarket, append-only price history, and
// productclass maintenance.
type ProductStore struct {
	db  *sql.DB
	log *zap.Logger
}

func NewProductStore(db *sql.DB, log *zap.Logger) *ProductStore {
	return &ProductStore{db: db, log: log}
}

// ProductBase is the caller-supplied shape of a product observation, before
// it is reconciled against any existing row.
type ProductBase struct {
	Identifier    string
	Name          string
	Volume        int
	VolumeMeasure VolumeMeasure
}

// AddProductInput is one crawler observation to register.
type AddProductInput struct {
	Product        ProductBase
	OrigPrice      int
	Price          int
	DiscountAmount int
	ValidOn        time.Time
	RetrievedOn    time.Time
	Confidence     Confidence
	Problems       []string
}

func findProductUnsafe(ctx context.Context, tx *sql.Tx, supermarketID SupermarketID, identifier string) (Product, error) {
	q := querybuilder.New("products").
		Select(rowcodec.Columns[Product]()...).
		Where("identifier", identifier).
		Where("supermarket_id", int64(supermarketID)).
		BuildSelect()

	rows, err := tx.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return Product{}, Wrap(KindBackendDown, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return Product{}, ErrNotFound
	}
	p, err := rowcodec.ScanRow[Product](rows)
	if err != nil {
		return Product{}, Wrap(KindBackendDown, err)
	}
	return p, nil
}

func fetchLastProductdetailsUnsafe(ctx context.Context, tx *sql.Tx, productID ProductID) (Productdetails, error) {
	q := querybuilder.New("productdetails").
		Select(rowcodec.Columns[Productdetails]()...).
		Where("product_id", int64(productID)).
		WhereRaw("valid_until", "NULL", querybuilder.Is).
		BuildSelect()

	rows, err := tx.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return Productdetails{}, Wrap(KindBackendDown, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return Productdetails{}, ErrNotFound
	}
	pd, err := rowcodec.ScanRow[Productdetails](rows)
	if err != nil {
		return Productdetails{}, Wrap(KindBackendDown, err)
	}
	return pd, nil
}

// FindAddProduct returns the existing product for (supermarketID,
// identifier) or creates it (and its productclass) if absent. It runs the
// two-phase lock from find_add_product: a cheap shared-lock read pass
// first, then an exclusive-lock pass that re-checks before inserting, so
// concurrent crawlers racing to register the same new product never
// double-insert.
func (s *ProductStore) FindAddProduct(ctx context.Context, supermarketID SupermarketID, pb ProductBase) (Product, error) {
	if p, err := s.findAddProductRead(ctx, supermarketID, pb.Identifier); err == nil {
		return p, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Product{}, err
	}

	return s.findAddProductWrite(ctx, supermarketID, pb)
}

func (s *ProductStore) findAddProductRead(ctx context.Context, supermarketID SupermarketID, identifier string) (Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Product{}, Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "LOCK TABLE products IN ACCESS SHARE MODE"); err != nil {
		return Product{}, Wrap(KindBackendDown, err)
	}

	p, err := findProductUnsafe(ctx, tx, supermarketID, identifier)
	if err != nil {
		return Product{}, err
	}
	return p, tx.Commit()
}

func (s *ProductStore) findAddProductWrite(ctx context.Context, supermarketID SupermarketID, pb ProductBase) (Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Product{}, Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "LOCK TABLE products IN ACCESS EXCLUSIVE MODE"); err != nil {
		return Product{}, Wrap(KindBackendDown, err)
	}

	if p, err := findProductUnsafe(ctx, tx, supermarketID, pb.Identifier); err == nil {
		return p, tx.Commit()
	} else if !errors.Is(err, ErrNotFound) {
		return Product{}, err
	}

	pcQuery := querybuilder.New("productclasses").Set("name", pb.Name).BuildInsertReturningID()
	var productclassID int64
	if err := tx.QueryRowContext(ctx, pcQuery.SQL, pcQuery.Args...).Scan(&productclassID); err != nil {
		return Product{}, Wrap(KindBackendDown, err)
	}

	pQuery := querybuilder.New("products").
		Set("identifier", pb.Identifier).
		Set("supermarket_id", int64(supermarketID)).
		Set("productclass_id", productclassID).
		Set("name", pb.Name).
		Set("volume", pb.Volume).
		Set("volume_measure", pb.VolumeMeasure).
		BuildInsertReturningID()

	var productID int64
	if err := tx.QueryRowContext(ctx, pQuery.SQL, pQuery.Args...).Scan(&productID); err != nil {
		return Product{}, Wrap(KindBackendDown, err)
	}

	if err := tx.Commit(); err != nil {
		return Product{}, Wrap(KindBackendDown, err)
	}

	return Product{
		ID:             ProductID(productID),
		Identifier:     pb.Identifier,
		SupermarketID:  supermarketID,
		ProductclassID: ProductclassID(productclassID),
		Name:           pb.Name,
		Volume:         pb.Volume,
		VolumeMeasure:  pb.VolumeMeasure,
	}, nil
}

func registerProductdetailsrecord(ctx context.Context, tx *sql.Tx, pdID ProductdetailsID, retrievedOn time.Time, confidence Confidence, problems []string) error {
	q := querybuilder.New("productdetailsrecords").
		Set("productdetails_id", int64(pdID)).
		Set("retrieved_on", retrievedOn).
		Set("confidence", confidence).
		BuildInsertReturningID()

	var recordID int64
	if err := tx.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&recordID); err != nil {
		return Wrap(KindBackendDown, err)
	}

	for _, problem := range problems {
		lq := querybuilder.New("productlogs").
			Set("productdetailsrecord_id", recordID).
			Set("description", problem).
			BuildInsert()
		if _, err := tx.ExecContext(ctx, lq.SQL, lq.Args...); err != nil {
			return Wrap(KindBackendDown, err)
		}
	}
	return nil
}

// AddProduct registers one crawler observation: finds or creates the
// product, updates its descriptive fields if they drifted, and either
// appends a new observation record to the current price configuration or
// invalidates it and starts a new one. Two observations are the same
// configuration when (discount_amount, orig_price, price) match exactly;
// name and volume drift flows through the product row instead.
func (s *ProductStore) AddProduct(ctx context.Context, supermarketID SupermarketID, in AddProductInput) error {
	p, err := s.FindAddProduct(ctx, supermarketID, in.Product)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	if p.Name != in.Product.Name || p.Volume != in.Product.Volume || p.VolumeMeasure != in.Product.VolumeMeasure {
		uq := querybuilder.New("products").
			Set("name", in.Product.Name).
			Set("volume", in.Product.Volume).
			Set("volume_measure", in.Product.VolumeMeasure).
			Where("id", int64(p.ID)).
			BuildUpdate()
		if _, err := tx.ExecContext(ctx, uq.SQL, uq.Args...); err != nil {
			return Wrap(KindBackendDown, err)
		}
		s.log.Info("updated product", logutil.Values(
			zap.Int64("product_id", int64(p.ID)),
			zap.String("identifier", p.Identifier)))
	}

	pdOld, err := fetchLastProductdetailsUnsafe(ctx, tx, p.ID)
	switch {
	case err == nil:
		similar := in.DiscountAmount == pdOld.DiscountAmount && in.OrigPrice == pdOld.OrigPrice && in.Price == pdOld.Price
		if similar {
			if err := registerProductdetailsrecord(ctx, tx, pdOld.ID, in.RetrievedOn, in.Confidence, in.Problems); err != nil {
				return err
			}
			return tx.Commit()
		}

		invQ := querybuilder.New("productdetails").
			Set("valid_until", in.ValidOn).
			Where("id", int64(pdOld.ID)).
			BuildUpdate()
		if _, err := tx.ExecContext(ctx, invQ.SQL, invQ.Args...); err != nil {
			return Wrap(KindBackendDown, err)
		}
	case errors.Is(err, ErrNotFound):
		// no prior configuration; fall through to insert the first one
	default:
		return err
	}

	pdQuery := querybuilder.New("productdetails").
		Set("product_id", int64(p.ID)).
		Set("orig_price", in.OrigPrice).
		Set("price", in.Price).
		Set("discount_amount", in.DiscountAmount).
		Set("valid_on", in.ValidOn).
		Set("retrieved_on", in.RetrievedOn).
		BuildInsertReturningID()

	var productdetailsID int64
	if err := tx.QueryRowContext(ctx, pdQuery.SQL, pdQuery.Args...).Scan(&productdetailsID); err != nil {
		return Wrap(KindBackendDown, err)
	}
	s.log.Info("inserted new productdetails", logutil.Values(
		zap.Int64("productdetails_id", productdetailsID),
		zap.String("identifier", p.Identifier),
		zap.Int64("product_id", int64(p.ID))))

	if err := registerProductdetailsrecord(ctx, tx, ProductdetailsID(productdetailsID), in.RetrievedOn, in.Confidence, in.Problems); err != nil {
		return err
	}

	return tx.Commit()
}

// ProductSummary is a product merged with its current price configuration.
type ProductSummary struct {
	Product
	OrigPrice      int
	Price          int
	DiscountAmount int
	ValidOn        time.Time
}

func merge(p Product, pd Productdetails) ProductSummary {
	return ProductSummary{
		Product:        p,
		OrigPrice:      pd.OrigPrice,
		Price:          pd.Price,
		DiscountAmount: pd.DiscountAmount,
		ValidOn:        pd.ValidOn,
	}
}

// FindProduct returns the bare Product row for (supermarketID, identifier)
// with no locking, for read paths that don't need the find-or-create
// guarantee (e.g. resolving an id to attach an image citation).
func (s *ProductStore) FindProduct(ctx context.Context, supermarketID SupermarketID, identifier string) (Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Product{}, Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	p, err := findProductUnsafe(ctx, tx, supermarketID, identifier)
	if err != nil {
		return Product{}, err
	}
	return p, tx.Commit()
}

// GetProduct returns the current price configuration of a product.
func (s *ProductStore) GetProduct(ctx context.Context, supermarketID SupermarketID, identifier string) (ProductSummary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ProductSummary{}, Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "LOCK TABLE products IN ACCESS SHARE MODE"); err != nil {
		return ProductSummary{}, Wrap(KindBackendDown, err)
	}

	p, err := findProductUnsafe(ctx, tx, supermarketID, identifier)
	if err != nil {
		return ProductSummary{}, err
	}

	pd, err := fetchLastProductdetailsUnsafe(ctx, tx, p.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ProductSummary{}, Wrapf(KindLogic, "product %d has no current productdetails", p.ID)
		}
		return ProductSummary{}, err
	}

	return merge(p, pd), tx.Commit()
}

// PricePoint is one entry of a product's price history.
type PricePoint struct {
	ValidOn time.Time
	Price   int
}

// ProductHistory is the full observed price timeline of one product.
type ProductHistory struct {
	Identifier   string
	Name         string
	PriceHistory []PricePoint
}

// GetProductHistory returns every observation of a product's price, one
// point per productdetailsrecord in record-id order. A point's effective
// timestamp is whichever is later: when the configuration became valid or
// when this observation of it was retrieved.
func (s *ProductStore) GetProductHistory(ctx context.Context, supermarketID SupermarketID, identifier string) (ProductHistory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ProductHistory{}, Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	p, err := findProductUnsafe(ctx, tx, supermarketID, identifier)
	if err != nil {
		return ProductHistory{}, err
	}

	rows, err := tx.QueryContext(ctx, `
SELECT pd.valid_on, pdr.retrieved_on, pd.price
FROM productdetailsrecords pdr
INNER JOIN productdetails pd ON pd.id = pdr.productdetails_id
WHERE pd.product_id = $1
ORDER BY pdr.id ASC`, int64(p.ID))
	if err != nil {
		return ProductHistory{}, Wrap(KindBackendDown, err)
	}
	defer rows.Close()

	history := ProductHistory{Identifier: p.Identifier, Name: p.Name}
	for rows.Next() {
		var validOn, retrievedOn time.Time
		var price int
		if err := rows.Scan(&validOn, &retrievedOn, &price); err != nil {
			return ProductHistory{}, Wrap(KindBackendDown, err)
		}
		if validOn.Before(retrievedOn) {
			validOn = retrievedOn
		}
		history.PriceHistory = append(history.PriceHistory, PricePoint{ValidOn: validOn, Price: price})
	}
	if err := rows.Err(); err != nil {
		return ProductHistory{}, Wrap(KindBackendDown, err)
	}

	return history, tx.Commit()
}

// currentProductsSelect joins products to their live (valid_until IS NULL)
// productdetails row; both the by-supermarket and by-name listings are
// built over this same join.
const currentProductsSelect = `
SELECT p.id, p.identifier, p.supermarket_id, p.productclass_id, p.name, p.volume, p.volume_measure, p.imagecitation_id,
       pd.orig_price, pd.price, pd.discount_amount, pd.valid_on
FROM products p
INNER JOIN productdetails pd ON pd.product_id = p.id AND pd.valid_until IS NULL
WHERE p.supermarket_id = $1`

func scanProductSummaries(rows *sql.Rows) ([]ProductSummary, error) {
	defer rows.Close()
	var out []ProductSummary
	for rows.Next() {
		var s ProductSummary
		if err := rows.Scan(
			&s.ID, &s.Identifier, &s.SupermarketID, &s.ProductclassID, &s.Name, &s.Volume, &s.VolumeMeasure, &s.ImageCitationID,
			&s.OrigPrice, &s.Price, &s.DiscountAmount, &s.ValidOn,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetProducts returns every product in a supermarket with its current
// price configuration.
func (s *ProductStore) GetProducts(ctx context.Context, supermarketID SupermarketID) ([]ProductSummary, error) {
	rows, err := s.db.QueryContext(ctx, currentProductsSelect, int64(supermarketID))
	if err != nil {
		return nil, Wrap(KindBackendDown, err)
	}
	summaries, err := scanProductSummaries(rows)
	if err != nil {
		return nil, Wrap(KindBackendDown, err)
	}
	return summaries, nil
}

// GetProductsByName returns every product in a supermarket whose name
// contains the given substring, case-insensitively. Callers pass the raw
// substring; the % wrapping happens here.
func (s *ProductStore) GetProductsByName(ctx context.Context, supermarketID SupermarketID, name string) ([]ProductSummary, error) {
	rows, err := s.db.QueryContext(ctx, currentProductsSelect+" AND lower(p.name) LIKE lower($2)", int64(supermarketID), "%"+name+"%")
	if err != nil {
		return nil, Wrap(KindBackendDown, err)
	}
	summaries, err := scanProductSummaries(rows)
	if err != nil {
		return nil, Wrap(KindBackendDown, err)
	}
	return summaries, nil
}

// ProductLogEntry groups every problem reported for one product's most
// recent observation, keyed by product identifier.
type ProductLogEntry struct {
	Identifier  string
	Name        string
	RetrievedOn time.Time
	Messages    []string
}

// Only the newest productdetailsrecord per productdetails carries the
// "recent" log; older observations of the same configuration are history.
const recentProductlogSelect = `
SELECT p.identifier, p.name, pdr.retrieved_on, pl.description
FROM productlogs pl
INNER JOIN productdetailsrecords pdr ON pdr.id = pl.productdetailsrecord_id
INNER JOIN productdetails pd ON pd.id = pdr.productdetails_id
INNER JOIN products p ON p.id = pd.product_id
WHERE p.supermarket_id = $1
  AND pdr.id IN (SELECT max(id) FROM productdetailsrecords GROUP BY productdetails_id)
ORDER BY pdr.retrieved_on DESC`

// GetRecentProductlog returns the problems reported against each product's
// latest observations, one entry per product, grouped in memory by
// identifier.
func (s *ProductStore) GetRecentProductlog(ctx context.Context, supermarketID SupermarketID) ([]ProductLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, recentProductlogSelect, int64(supermarketID))
	if err != nil {
		return nil, Wrap(KindBackendDown, err)
	}
	defer rows.Close()

	order := make([]string, 0)
	byIdentifier := make(map[string]*ProductLogEntry)
	for rows.Next() {
		var identifier, name, description string
		var retrievedOn time.Time
		if err := rows.Scan(&identifier, &name, &retrievedOn, &description); err != nil {
			return nil, Wrap(KindBackendDown, err)
		}
		entry, ok := byIdentifier[identifier]
		if !ok {
			entry = &ProductLogEntry{Identifier: identifier, Name: name, RetrievedOn: retrievedOn}
			byIdentifier[identifier] = entry
			order = append(order, identifier)
		}
		entry.Messages = append(entry.Messages, description)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(KindBackendDown, err)
	}

	out := make([]ProductLogEntry, len(order))
	for i, id := range order {
		out[i] = *byIdentifier[id]
	}
	return out, nil
}

// ProductclassSummary is a productclass together with its member products'
// current price configurations and the tags bound to it.
type ProductclassSummary struct {
	Name     string
	Products []ProductSummary
	Tags     []Tag
}

// GetProductclass returns a productclass's name, member products, and
// bound tags.
func (s *ProductStore) GetProductclass(ctx context.Context, productclassID ProductclassID) (ProductclassSummary, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM productclasses WHERE id = $1", int64(productclassID)).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return ProductclassSummary{}, ErrNotFound
		}
		return ProductclassSummary{}, Wrap(KindBackendDown, err)
	}

	prows, err := s.db.QueryContext(ctx, `
SELECT p.id, p.identifier, p.supermarket_id, p.productclass_id, p.name, p.volume, p.volume_measure, p.imagecitation_id,
       pd.orig_price, pd.price, pd.discount_amount, pd.valid_on
FROM products p
INNER JOIN productdetails pd ON pd.product_id = p.id AND pd.valid_until IS NULL
WHERE p.productclass_id = $1`, int64(productclassID))
	if err != nil {
		return ProductclassSummary{}, Wrap(KindBackendDown, err)
	}
	products, err := scanProductSummaries(prows)
	if err != nil {
		return ProductclassSummary{}, Wrap(KindBackendDown, err)
	}

	trows, err := s.db.QueryContext(ctx, `
SELECT t.id, t.parent_id, t.tagcategory_id, t.name
FROM tags t
INNER JOIN tag_productclass tp ON tp.tag_id = t.id
WHERE tp.productclass_id = $1`, int64(productclassID))
	if err != nil {
		return ProductclassSummary{}, Wrap(KindBackendDown, err)
	}
	tags, err := rowcodec.ScanAll[Tag](trows)
	if err != nil {
		return ProductclassSummary{}, Wrap(KindBackendDown, err)
	}

	return ProductclassSummary{Name: name, Products: products, Tags: tags}, nil
}

// AbsorbProductclass merges src into dest in one transaction: repoint
// products, drop tag bindings dest already has, repoint the rest, delete
// src. Repeating the same (src, dest) call is a no-op.
func (s *ProductStore) AbsorbProductclass(ctx context.Context, srcID, destID ProductclassID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE products SET productclass_id = $2 WHERE productclass_id = $1", int64(srcID), int64(destID)); err != nil {
		return Wrap(KindBackendDown, err)
	}

	// Drop src bindings that dest already has, then repoint the rest.
	if _, err := tx.ExecContext(ctx, `
DELETE FROM tag_productclass src
USING tag_productclass dest
WHERE src.productclass_id = $1
  AND dest.productclass_id = $2
  AND src.tag_id = dest.tag_id`, int64(srcID), int64(destID)); err != nil {
		return Wrap(KindBackendDown, err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE tag_productclass SET productclass_id = $2 WHERE productclass_id = $1", int64(srcID), int64(destID)); err != nil {
		return Wrap(KindBackendDown, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM productclasses WHERE id = $1", int64(srcID)); err != nil {
		return Wrap(KindBackendDown, err)
	}

	return tx.Commit()
}
