package store

import "time"

// VolumeMeasure is the unit family of a product's volume.
type VolumeMeasure string

const (
	MeasureUnits       VolumeMeasure = "UNITS"
	MeasureMillilitres VolumeMeasure = "MILLILITRES"
	MeasureMilligrams  VolumeMeasure = "MILLIGRAMS"
	MeasureMillimetres VolumeMeasure = "MILLIMETRES"
)

// Confidence is the crawler-declared quality of an observation.
type Confidence string

const (
	ConfidenceLow     Confidence = "LOW"
	ConfidenceNeutral Confidence = "NEUTRAL"
	ConfidenceHigh    Confidence = "HIGH"
	ConfidencePerfect Confidence = "PERFECT"
)

// Supermarket is a fixed reference entity; this core never mutates it.
type Supermarket struct {
	ID   SupermarketID `db:"id"`
	Name string        `db:"name"`
}

// Product is unique on (supermarket_id, identifier).
type Product struct {
	ID              ProductID        `db:"id"`
	Identifier      string           `db:"identifier"`
	SupermarketID   SupermarketID    `db:"supermarket_id"`
	ProductclassID  ProductclassID   `db:"productclass_id"`
	Name            string           `db:"name"`
	Volume          int              `db:"volume"`
	VolumeMeasure   VolumeMeasure    `db:"volume_measure"`
	ImageCitationID *ImageCitationID `db:"imagecitation_id"`
}

// Productclass groups products across supermarkets that represent the same
// real-world article.
type Productclass struct {
	ID   ProductclassID `db:"id"`
	Name string         `db:"name"`
}

// Productdetails is one distinct (price, packaging) configuration of a
// product. Immutable after insert except ValidUntil, which transitions once
// from nil to a timestamp.
type Productdetails struct {
	ID             ProductdetailsID `db:"id"`
	ProductID      ProductID        `db:"product_id"`
	OrigPrice      int              `db:"orig_price"`
	Price          int              `db:"price"`
	DiscountAmount int              `db:"discount_amount"`
	ValidOn        time.Time        `db:"valid_on"`
	ValidUntil     *time.Time       `db:"valid_until"`
	RetrievedOn    time.Time        `db:"retrieved_on"`
}

// Productdetailsrecord is one observation of a Productdetails configuration
// at a point in time.
type Productdetailsrecord struct {
	ID               ProductdetailsrecordID `db:"id"`
	ProductdetailsID ProductdetailsID       `db:"productdetails_id"`
	RetrievedOn      time.Time              `db:"retrieved_on"`
	Confidence       Confidence             `db:"confidence"`
}

// Productlog is a problem reported by the crawler for one observation.
type Productlog struct {
	ID                     ProductlogID           `db:"id"`
	ProductdetailsrecordID ProductdetailsrecordID `db:"productdetailsrecord_id"`
	Description            string                 `db:"description"`
}

// Tag forms a forest via Parent.
type Tag struct {
	ID            TagID          `db:"id"`
	ParentID      *TagID         `db:"parent_id"`
	TagcategoryID *TagcategoryID `db:"tagcategory_id"`
	Name          string         `db:"name"`
}

// Tagalias is a case-insensitive lookup key for a Tag.
type Tagalias struct {
	ID            TagaliasID     `db:"id"`
	TagID         TagID          `db:"tag_id"`
	TagcategoryID *TagcategoryID `db:"tagcategory_id"`
	Name          string         `db:"name"`
}

type Tagcategory struct {
	ID   TagcategoryID `db:"id"`
	Name string        `db:"name"`
}

type Tagcategoryalias struct {
	ID            TagcategoryaliasID `db:"id"`
	TagcategoryID TagcategoryID      `db:"tagcategory_id"`
	Name          string             `db:"name"`
}

// Karluser is a crawler/operator account.
type Karluser struct {
	ID             KaruserID `db:"id"`
	Name           string    `db:"name"`
	PasswordSalt   []byte    `db:"password_salt"`
	PasswordHashed []byte    `db:"password_hashed"`
}

// Sessionticket is the first half of the challenge protocol.
type Sessionticket struct {
	ID        SessionticketID `db:"id"`
	KaruserID KaruserID       `db:"karluser_id"`
	Nonce     []byte          `db:"nonce"`
	Creation  time.Time       `db:"creation"`
}

// Session is an authenticated, time-limited grant.
type Session struct {
	ID        SessionID `db:"id"`
	KaruserID KaruserID `db:"karluser_id"`
	Token     []byte    `db:"token"`
	Creation  time.Time `db:"creation"`
}

// ImageCitation records provenance and geometry of a fetched product image.
type ImageCitation struct {
	ID             ImageCitationID `db:"id"`
	SupermarketID  SupermarketID   `db:"supermarket_id"`
	OriginalURI    string          `db:"original_uri"`
	SourceURI      string          `db:"source_uri"`
	OriginalWidth  int             `db:"original_width"`
	OriginalHeight int             `db:"original_height"`
	RetrievedOn    time.Time       `db:"retrieved_on"`
}
