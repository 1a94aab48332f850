// Package facade is the public operation surface consumed by the API
// layer, fanning out to the product/tag/session stores, the identity
// service, the similarity engine, and the image-citation sink, and
// enforcing session checks on the operations that require one.
package facade

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/supermarx/karl/internal/identity"
	"github.com/supermarx/karl/internal/imaging"
	"github.com/supermarx/karl/internal/similarity"
	"github.com/supermarx/karl/internal/store"
)

// Facade wires together every store and service the public operations need.
type Facade struct {
	Products *store.ProductStore
	Tags     *store.TagStore
	Images   *store.ImageCitationStore
	Identity *identity.Service
	Sink     *imaging.Sink
	log      *zap.Logger
}

// New constructs a Facade over already-opened stores and services.
func New(products *store.ProductStore, tags *store.TagStore, images *store.ImageCitationStore, ident *identity.Service, sink *imaging.Sink, log *zap.Logger) *Facade {
	return &Facade{Products: products, Tags: tags, Images: images, Identity: ident, Sink: sink, log: log}
}

// --- C7 identity passthrough, session-checked where the original checks it ---

func (f *Facade) CreateUser(ctx context.Context, name, password string) (store.KaruserID, error) {
	return f.Identity.CreateUser(ctx, name, password)
}

func (f *Facade) GenerateSessionticket(ctx context.Context, name string) (identity.Sessionticket, error) {
	return f.Identity.GenerateSessionticket(ctx, name)
}

func (f *Facade) CreateSession(ctx context.Context, ticketID store.SessionticketID, ticketPassword []byte) ([]byte, error) {
	return f.Identity.CreateSession(ctx, ticketID, ticketPassword)
}

// CheckSession validates a session token, translating a missing token into
// session_expected (distinct from session_invalid) so the API layer can
// tell "you forgot the header" from "your session expired".
func (f *Facade) CheckSession(ctx context.Context, token []byte) error {
	if len(token) == 0 {
		if !f.Identity.CheckPerms {
			return nil
		}
		return store.ErrSessionExpected
	}
	return f.Identity.CheckSession(ctx, token)
}

// CheckPermissions exposes whether this Facade enforces session/password
// checks at all; the API layer surfaces it so dev deployments running
// --no-perms can flag themselves.
func (f *Facade) CheckPermissions() bool {
	return f.Identity.CheckPerms
}

// --- C4 product operations ---

func (f *Facade) AddProduct(ctx context.Context, session []byte, supermarketID store.SupermarketID, in store.AddProductInput) error {
	if err := f.CheckSession(ctx, session); err != nil {
		return err
	}
	return f.Products.AddProduct(ctx, supermarketID, in)
}

// GetProduct translates "product exists but has no current details" (a
// race with a first ingest still in flight) into not_found for external
// callers; the underlying diagnosis is still logged.
func (f *Facade) GetProduct(ctx context.Context, supermarketID store.SupermarketID, identifier string) (store.ProductSummary, error) {
	summary, err := f.Products.GetProduct(ctx, supermarketID, identifier)
	if errors.Is(err, store.ErrLogic) {
		f.log.Error("product without current details", zap.String("identifier", identifier), zap.Error(err))
		return store.ProductSummary{}, store.ErrNotFound
	}
	return summary, err
}

func (f *Facade) GetProducts(ctx context.Context, supermarketID store.SupermarketID) ([]store.ProductSummary, error) {
	return f.Products.GetProducts(ctx, supermarketID)
}

func (f *Facade) GetProductsByName(ctx context.Context, supermarketID store.SupermarketID, name string) ([]store.ProductSummary, error) {
	return f.Products.GetProductsByName(ctx, supermarketID, name)
}

func (f *Facade) GetProductHistory(ctx context.Context, supermarketID store.SupermarketID, identifier string) (store.ProductHistory, error) {
	return f.Products.GetProductHistory(ctx, supermarketID, identifier)
}

func (f *Facade) GetRecentProductlog(ctx context.Context, supermarketID store.SupermarketID) ([]store.ProductLogEntry, error) {
	return f.Products.GetRecentProductlog(ctx, supermarketID)
}

func (f *Facade) GetProductclass(ctx context.Context, id store.ProductclassID) (store.ProductclassSummary, error) {
	return f.Products.GetProductclass(ctx, id)
}

func (f *Facade) AbsorbProductclass(ctx context.Context, session []byte, src, dst store.ProductclassID) error {
	if err := f.CheckSession(ctx, session); err != nil {
		return err
	}
	return f.Products.AbsorbProductclass(ctx, src, dst)
}

// --- C5 tag operations ---

func (f *Facade) FindAddTagcategory(ctx context.Context, session []byte, name string) (store.TagcategoryID, error) {
	if err := f.CheckSession(ctx, session); err != nil {
		return 0, err
	}
	return f.Tags.FindAddTagcategory(ctx, name)
}

func (f *Facade) FindAddTag(ctx context.Context, session []byte, tagcategoryID store.TagcategoryID, name string) (store.TagID, error) {
	if err := f.CheckSession(ctx, session); err != nil {
		return 0, err
	}
	return f.Tags.FindAddTag(ctx, tagcategoryID, name)
}

func (f *Facade) GetTags(ctx context.Context) ([]store.Tag, error) {
	return f.Tags.GetTags(ctx)
}

func (f *Facade) BindTag(ctx context.Context, session []byte, productclassID store.ProductclassID, tagID store.TagID) error {
	if err := f.CheckSession(ctx, session); err != nil {
		return err
	}
	return f.Tags.BindTag(ctx, productclassID, tagID)
}

func (f *Facade) UpdateTagSetParent(ctx context.Context, session []byte, tagID store.TagID, parentID *store.TagID) error {
	if err := f.CheckSession(ctx, session); err != nil {
		return err
	}
	return f.Tags.UpdateTagSetParent(ctx, tagID, parentID)
}

func (f *Facade) AbsorbTag(ctx context.Context, session []byte, src, dst store.TagID) error {
	if err := f.CheckSession(ctx, session); err != nil {
		return err
	}
	return f.Tags.AbsorbTag(ctx, src, dst)
}

// --- C8 image citation sink ---

// AddProductImageCitation decodes image geometry, inserts the citation
// row, persists the original and thumbnail files, then links the citation
// to the product. In that order: a product never points at a citation
// whose files don't yet exist.
func (f *Facade) AddProductImageCitation(ctx context.Context, session []byte, supermarketID store.SupermarketID, productIdentifier, originalURI, sourceURI string, retrievedOn time.Time, imageBytes []byte) (store.ImageCitationID, error) {
	if err := f.CheckSession(ctx, session); err != nil {
		return 0, err
	}

	w, h, err := imaging.Size(imageBytes)
	if err != nil {
		return 0, err
	}

	icID, err := f.Images.AddImageCitation(ctx, store.ImageCitation{
		SupermarketID:  supermarketID,
		OriginalURI:    originalURI,
		SourceURI:      sourceURI,
		OriginalWidth:  w,
		OriginalHeight: h,
		RetrievedOn:    retrievedOn,
	})
	if err != nil {
		return 0, err
	}

	if err := f.Sink.Commit(int64(icID), imageBytes); err != nil {
		return 0, err
	}

	product, err := f.Products.FindProduct(ctx, supermarketID, productIdentifier)
	if err != nil {
		return 0, err
	}

	if err := f.Images.SetProductImageCitation(ctx, product.ID, icID); err != nil {
		return 0, err
	}

	f.log.Info("added product image citation", zap.Int64("imagecitation_id", int64(icID)), zap.String("identifier", productIdentifier))
	return icID, nil
}

// --- C9 similarity engine (CPU-bound, no transaction) ---

// toComparable adapts a ProductSummary to the similarity engine's input
// shape.
func toComparable(p store.ProductSummary) similarity.Comparable {
	return similarity.Comparable{
		Name:          p.Name,
		Price:         float64(p.Price),
		Volume:        float64(p.Volume),
		VolumeMeasure: string(p.VolumeMeasure),
	}
}

// Similarity scores two product summaries; it takes no transaction and may
// be called freely off the hot path of any store operation.
func (f *Facade) Similarity(x, y store.ProductSummary) similarity.Valuation {
	return similarity.Exec(toComparable(x), toComparable(y))
}

// Match is one candidate cross-supermarket pairing produced by SweepSimilar.
type Match struct {
	A, B  store.ProductSummary
	Score similarity.Valuation
}

// SweepSimilar scores every product in supermarket A against every product
// in supermarket B and returns matches sorted by descending collapsed
// score. This backs the CLI's "test" action.
func (f *Facade) SweepSimilar(ctx context.Context, a, b store.SupermarketID) ([]Match, error) {
	as, err := f.Products.GetProducts(ctx, a)
	if err != nil {
		return nil, err
	}
	bs, err := f.Products.GetProducts(ctx, b)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(as)*len(bs))
	for _, pa := range as {
		for _, pb := range bs {
			matches = append(matches, Match{A: pa, B: pb, Score: f.Similarity(pa, pb)})
		}
	}

	// Simple insertion sort by descending Collapse(): sweeps are run
	// offline from the CLI, not on a request path, so O(n^2) on a
	// realistically small product catalog is acceptable.
	for i := 1; i < len(matches); i++ {
		j := i
		for j > 0 && matches[j-1].Score.Collapse() < matches[j].Score.Collapse() {
			matches[j-1], matches[j] = matches[j], matches[j-1]
			j--
		}
	}

	return matches, nil
}
