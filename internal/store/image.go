package store

import (
	"context"
	"database/sql"
	"time"
)

// ImageCitationStore persists ImageCitation rows and the Product reference
// that points at the winning citation. The file-writing half lives in
// internal/imaging.
type ImageCitationStore struct {
	db *sql.DB
}

func NewImageCitationStore(db *sql.DB) *ImageCitationStore {
	return &ImageCitationStore{db: db}
}

// AddImageCitation inserts a new ImageCitation row and returns its id. The
// caller writes the original/thumbnail files under this id before calling
// SetProductImageCitation.
func (s *ImageCitationStore) AddImageCitation(ctx context.Context, ic ImageCitation) (ImageCitationID, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO imagecitations (supermarket_id, original_uri, source_uri, original_width, original_height, retrieved_on)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		int64(ic.SupermarketID), ic.OriginalURI, ic.SourceURI, ic.OriginalWidth, ic.OriginalHeight, ic.RetrievedOn,
	).Scan(&id)
	if err != nil {
		return 0, Wrap(KindBackendDown, err)
	}
	return ImageCitationID(id), nil
}

// SetProductImageCitation points a product at an already-persisted
// ImageCitation. Calling this before the citation's files exist on disk
// would let a reader observe a dangling reference, so callers must write
// files first.
func (s *ImageCitationStore) SetProductImageCitation(ctx context.Context, productID ProductID, icID ImageCitationID) error {
	res, err := s.db.ExecContext(ctx, "UPDATE products SET imagecitation_id = $2 WHERE id = $1", int64(productID), int64(icID))
	if err != nil {
		return Wrap(KindBackendDown, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetImageCitation fetches one citation by id.
func (s *ImageCitationStore) GetImageCitation(ctx context.Context, id ImageCitationID) (ImageCitation, error) {
	var ic ImageCitation
	var retrievedOn time.Time
	err := s.db.QueryRowContext(ctx, `
SELECT id, supermarket_id, original_uri, source_uri, original_width, original_height, retrieved_on
FROM imagecitations WHERE id = $1`, int64(id)).Scan(
		&ic.ID, &ic.SupermarketID, &ic.OriginalURI, &ic.SourceURI, &ic.OriginalWidth, &ic.OriginalHeight, &retrievedOn,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return ImageCitation{}, ErrNotFound
		}
		return ImageCitation{}, Wrap(KindBackendDown, err)
	}
	ic.RetrievedOn = retrievedOn
	return ic, nil
}
