package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/supermarx/karl/internal/store"
	"github.com/supermarx/karl/internal/storetest"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func appleflaps(t *testing.T, retrievedOn string) store.AddProductInput {
	t.Helper()
	return store.AddProductInput{
		Product: store.ProductBase{
			Identifier:    "wi210145",
			Name:          "Appleflaps",
			Volume:        500,
			VolumeMeasure: store.MeasureMillilitres,
		},
		OrigPrice:      2000,
		Price:          2000,
		DiscountAmount: 0,
		ValidOn:        mustParse(t, "2024-01-01T00:00:00Z"),
		RetrievedOn:    mustParse(t, retrievedOn),
		Confidence:     store.ConfidenceNeutral,
	}
}

func TestAddProductFresh(t *testing.T) {
	ctx := context.Background()
	sbx, ps := newProductStore(t)
	sm := addSupermarket(t, sbx, "coop")

	if err := ps.AddProduct(ctx, sm, appleflaps(t, "2024-01-01T00:05:00Z")); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	if n := countRows(t, sbx, "productclasses"); n != 1 {
		t.Errorf("productclasses = %d, want 1", n)
	}
	if n := countRows(t, sbx, "products"); n != 1 {
		t.Errorf("products = %d, want 1", n)
	}
	if n := countRows(t, sbx, "productdetails"); n != 1 {
		t.Errorf("productdetails = %d, want 1", n)
	}
	if n := countRows(t, sbx, "productdetailsrecords"); n != 1 {
		t.Errorf("productdetailsrecords = %d, want 1", n)
	}

	var nullCount int
	if err := sbx.DB.QueryRow("SELECT count(*) FROM productdetails WHERE valid_until IS NULL").Scan(&nullCount); err != nil {
		t.Fatal(err)
	}
	if nullCount != 1 {
		t.Errorf("current productdetails = %d, want 1", nullCount)
	}

	summary, err := ps.GetProduct(ctx, sm, "wi210145")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if summary.Name != "Appleflaps" || summary.Price != 2000 || summary.Volume != 500 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

// Re-observing identical price details must not grow the configuration
// history, only the record trail.
func TestAddProductDedup(t *testing.T) {
	ctx := context.Background()
	sbx, ps := newProductStore(t)
	sm := addSupermarket(t, sbx, "coop")

	if err := ps.AddProduct(ctx, sm, appleflaps(t, "2024-01-01T00:05:00Z")); err != nil {
		t.Fatalf("AddProduct #1: %v", err)
	}
	if err := ps.AddProduct(ctx, sm, appleflaps(t, "2024-01-01T01:00:00Z")); err != nil {
		t.Fatalf("AddProduct #2: %v", err)
	}

	if n := countRows(t, sbx, "productdetails"); n != 1 {
		t.Errorf("productdetails = %d, want 1", n)
	}
	if n := countRows(t, sbx, "productdetailsrecords"); n != 2 {
		t.Errorf("productdetailsrecords = %d, want 2", n)
	}
}

func TestAddProductPriceChange(t *testing.T) {
	ctx := context.Background()
	sbx, ps := newProductStore(t)
	sm := addSupermarket(t, sbx, "coop")

	if err := ps.AddProduct(ctx, sm, appleflaps(t, "2024-01-01T00:05:00Z")); err != nil {
		t.Fatalf("AddProduct #1: %v", err)
	}
	if err := ps.AddProduct(ctx, sm, appleflaps(t, "2024-01-01T01:00:00Z")); err != nil {
		t.Fatalf("AddProduct #2: %v", err)
	}

	discounted := appleflaps(t, "2024-01-02T00:00:00Z")
	discounted.Price = 1800
	discounted.ValidOn = mustParse(t, "2024-01-02T00:00:00Z")
	if err := ps.AddProduct(ctx, sm, discounted); err != nil {
		t.Fatalf("AddProduct #3: %v", err)
	}

	if n := countRows(t, sbx, "productdetails"); n != 2 {
		t.Fatalf("productdetails = %d, want 2", n)
	}

	var validUntil time.Time
	if err := sbx.DB.QueryRow("SELECT valid_until FROM productdetails WHERE valid_until IS NOT NULL").Scan(&validUntil); err != nil {
		t.Fatalf("old details: %v", err)
	}
	if !validUntil.Equal(mustParse(t, "2024-01-02T00:00:00Z")) {
		t.Errorf("valid_until = %v, want 2024-01-02T00:00Z", validUntil)
	}

	var currentPrice int
	if err := sbx.DB.QueryRow("SELECT price FROM productdetails WHERE valid_until IS NULL").Scan(&currentPrice); err != nil {
		t.Fatalf("current details: %v", err)
	}
	if currentPrice != 1800 {
		t.Errorf("current price = %d, want 1800", currentPrice)
	}
}

// A long alternating sequence of prices must keep invariant 1 (at most one
// current detail) and the monotone valid_until <= next valid_on chain.
func TestAddProductChainInvariants(t *testing.T) {
	ctx := context.Background()
	sbx, ps := newProductStore(t)
	sm := addSupermarket(t, sbx, "coop")

	base := mustParse(t, "2024-01-01T00:00:00Z")
	prices := []int{100, 100, 120, 100, 150, 150, 90}
	for i, price := range prices {
		in := appleflaps(t, "2024-01-01T00:05:00Z")
		in.OrigPrice = price
		in.Price = price
		in.ValidOn = base.Add(time.Duration(i) * 24 * time.Hour)
		in.RetrievedOn = in.ValidOn.Add(5 * time.Minute)
		if err := ps.AddProduct(ctx, sm, in); err != nil {
			t.Fatalf("AddProduct #%d: %v", i, err)
		}
	}

	var current int
	if err := sbx.DB.QueryRow("SELECT count(*) FROM productdetails WHERE valid_until IS NULL").Scan(&current); err != nil {
		t.Fatal(err)
	}
	if current != 1 {
		t.Fatalf("current productdetails = %d, want 1", current)
	}

	rows, err := sbx.DB.Query("SELECT valid_on, valid_until FROM productdetails ORDER BY id")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	var prevUntil *time.Time
	for rows.Next() {
		var validOn time.Time
		var validUntil *time.Time
		if err := rows.Scan(&validOn, &validUntil); err != nil {
			t.Fatal(err)
		}
		if prevUntil != nil && prevUntil.After(validOn) {
			t.Errorf("chain broken: previous valid_until %v after next valid_on %v", prevUntil, validOn)
		}
		prevUntil = validUntil
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestAddProductUpdatesDescriptiveFields(t *testing.T) {
	ctx := context.Background()
	sbx, ps := newProductStore(t)
	sm := addSupermarket(t, sbx, "coop")

	if err := ps.AddProduct(ctx, sm, appleflaps(t, "2024-01-01T00:05:00Z")); err != nil {
		t.Fatalf("AddProduct #1: %v", err)
	}

	renamed := appleflaps(t, "2024-01-01T01:00:00Z")
	renamed.Product.Name = "Appleflaps XL"
	renamed.Product.Volume = 750
	if err := ps.AddProduct(ctx, sm, renamed); err != nil {
		t.Fatalf("AddProduct #2: %v", err)
	}

	summary, err := ps.GetProduct(ctx, sm, "wi210145")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if summary.Name != "Appleflaps XL" || summary.Volume != 750 {
		t.Errorf("product fields not updated: %+v", summary)
	}
	// name/volume drift does not open a new price configuration
	if n := countRows(t, sbx, "productdetails"); n != 1 {
		t.Errorf("productdetails = %d, want 1", n)
	}
}

func TestGetProductNotFound(t *testing.T) {
	ctx := context.Background()
	sbx, ps := newProductStore(t)
	sm := addSupermarket(t, sbx, "coop")

	_, err := ps.GetProduct(ctx, sm, "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestGetProductsByNameCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	sbx, ps := newProductStore(t)
	sm := addSupermarket(t, sbx, "coop")

	if err := ps.AddProduct(ctx, sm, appleflaps(t, "2024-01-01T00:05:00Z")); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	for _, q := range []string{"apple", "APPLE", "Flaps"} {
		got, err := ps.GetProductsByName(ctx, sm, q)
		if err != nil {
			t.Fatalf("GetProductsByName(%q): %v", q, err)
		}
		if len(got) != 1 {
			t.Errorf("GetProductsByName(%q) = %d results, want 1", q, len(got))
		}
	}

	got, err := ps.GetProductsByName(ctx, sm, "zzz")
	if err != nil {
		t.Fatalf("GetProductsByName(zzz): %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetProductsByName(zzz) = %d results, want 0", len(got))
	}
}

func TestGetProductHistory(t *testing.T) {
	ctx := context.Background()
	sbx, ps := newProductStore(t)
	sm := addSupermarket(t, sbx, "coop")

	if err := ps.AddProduct(ctx, sm, appleflaps(t, "2024-01-01T00:05:00Z")); err != nil {
		t.Fatalf("AddProduct #1: %v", err)
	}
	if err := ps.AddProduct(ctx, sm, appleflaps(t, "2024-01-01T01:00:00Z")); err != nil {
		t.Fatalf("AddProduct #2: %v", err)
	}
	discounted := appleflaps(t, "2024-01-02T00:00:00Z")
	discounted.Price = 1800
	discounted.ValidOn = mustParse(t, "2024-01-02T00:00:00Z")
	if err := ps.AddProduct(ctx, sm, discounted); err != nil {
		t.Fatalf("AddProduct #3: %v", err)
	}

	hist, err := ps.GetProductHistory(ctx, sm, "wi210145")
	if err != nil {
		t.Fatalf("GetProductHistory: %v", err)
	}
	if hist.Identifier != "wi210145" {
		t.Errorf("identifier = %q", hist.Identifier)
	}
	if len(hist.PriceHistory) != 3 {
		t.Fatalf("history points = %d, want 3 (one per observation)", len(hist.PriceHistory))
	}

	wantPrices := []int{2000, 2000, 1800}
	// Every observation was retrieved at or after the moment its
	// configuration became valid, so the effective timestamp is the
	// retrieval time.
	wantTimes := []string{"2024-01-01T00:05:00Z", "2024-01-01T01:00:00Z", "2024-01-02T00:00:00Z"}
	for i, p := range hist.PriceHistory {
		if p.Price != wantPrices[i] {
			t.Errorf("point %d price = %d, want %d", i, p.Price, wantPrices[i])
		}
		if !p.ValidOn.Equal(mustParse(t, wantTimes[i])) {
			t.Errorf("point %d time = %v, want %s", i, p.ValidOn, wantTimes[i])
		}
	}
}

func TestGetRecentProductlogKeepsOnlyLatestRecord(t *testing.T) {
	ctx := context.Background()
	sbx, ps := newProductStore(t)
	sm := addSupermarket(t, sbx, "coop")

	first := appleflaps(t, "2024-01-01T00:05:00Z")
	first.Problems = []string{"stale listing"}
	if err := ps.AddProduct(ctx, sm, first); err != nil {
		t.Fatalf("AddProduct #1: %v", err)
	}

	second := appleflaps(t, "2024-01-01T01:00:00Z")
	second.Problems = []string{"price tag blurry", "volume guessed"}
	if err := ps.AddProduct(ctx, sm, second); err != nil {
		t.Fatalf("AddProduct #2: %v", err)
	}

	log, err := ps.GetRecentProductlog(ctx, sm)
	if err != nil {
		t.Fatalf("GetRecentProductlog: %v", err)
	}
	if len(log) != 1 {
		t.Fatalf("log entries = %d, want 1", len(log))
	}
	entry := log[0]
	if entry.Identifier != "wi210145" {
		t.Errorf("identifier = %q", entry.Identifier)
	}
	if len(entry.Messages) != 2 {
		t.Fatalf("messages = %v, want only the latest observation's two", entry.Messages)
	}
	for _, m := range entry.Messages {
		if m == "stale listing" {
			t.Errorf("message from a superseded observation leaked into the recent log")
		}
	}
}

func addSecondProduct(t *testing.T, ps *store.ProductStore, sm store.SupermarketID, identifier, name string) {
	t.Helper()
	in := store.AddProductInput{
		Product: store.ProductBase{
			Identifier:    identifier,
			Name:          name,
			Volume:        1000,
			VolumeMeasure: store.MeasureMillilitres,
		},
		OrigPrice:   129,
		Price:       129,
		ValidOn:     mustParse(t, "2024-01-01T00:00:00Z"),
		RetrievedOn: mustParse(t, "2024-01-01T00:05:00Z"),
		Confidence:  store.ConfidenceHigh,
	}
	if err := ps.AddProduct(context.Background(), sm, in); err != nil {
		t.Fatalf("AddProduct %s: %v", identifier, err)
	}
}

func productclassOf(t *testing.T, sbx *storetest.Sandbox, identifier string) store.ProductclassID {
	t.Helper()
	var id int64
	if err := sbx.DB.QueryRow("SELECT productclass_id FROM products WHERE identifier = $1", identifier).Scan(&id); err != nil {
		t.Fatalf("productclass of %s: %v", identifier, err)
	}
	return store.ProductclassID(id)
}

func TestAbsorbProductclass(t *testing.T) {
	ctx := context.Background()
	sbx, ps := newProductStore(t)
	smA := addSupermarket(t, sbx, "coop")
	smB := addSupermarket(t, sbx, "edeka")

	if err := ps.AddProduct(ctx, smA, appleflaps(t, "2024-01-01T00:05:00Z")); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	addSecondProduct(t, ps, smB, "ed-77", "Appelsap literpak")

	src := productclassOf(t, sbx, "ed-77")
	dst := productclassOf(t, sbx, "wi210145")

	ts := store.NewTagStore(sbx.DB)
	cat, err := ts.FindAddTagcategory(ctx, "drinks")
	if err != nil {
		t.Fatalf("FindAddTagcategory: %v", err)
	}
	tag, err := ts.FindAddTag(ctx, cat, "juice")
	if err != nil {
		t.Fatalf("FindAddTag: %v", err)
	}
	// bind the same tag to both sides so absorb has a duplicate to drop
	if err := ts.BindTag(ctx, src, tag); err != nil {
		t.Fatalf("BindTag src: %v", err)
	}
	if err := ts.BindTag(ctx, dst, tag); err != nil {
		t.Fatalf("BindTag dst: %v", err)
	}

	if err := ps.AbsorbProductclass(ctx, src, dst); err != nil {
		t.Fatalf("AbsorbProductclass: %v", err)
	}

	merged, err := ps.GetProductclass(ctx, dst)
	if err != nil {
		t.Fatalf("GetProductclass(dst): %v", err)
	}
	if len(merged.Products) != 2 {
		t.Errorf("merged products = %d, want 2", len(merged.Products))
	}
	if len(merged.Tags) != 1 {
		t.Errorf("merged tags = %d, want 1 (duplicate binding dropped)", len(merged.Tags))
	}

	if _, err := ps.GetProductclass(ctx, src); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetProductclass(src) err = %v, want not_found", err)
	}

	// repeating the same absorb is a no-op
	if err := ps.AbsorbProductclass(ctx, src, dst); err != nil {
		t.Fatalf("second AbsorbProductclass: %v", err)
	}
	again, err := ps.GetProductclass(ctx, dst)
	if err != nil {
		t.Fatalf("GetProductclass after repeat: %v", err)
	}
	if len(again.Products) != 2 || len(again.Tags) != 1 {
		t.Errorf("repeat absorb changed state: %d products, %d tags", len(again.Products), len(again.Tags))
	}
}

func TestGetProducts(t *testing.T) {
	ctx := context.Background()
	sbx, ps := newProductStore(t)
	sm := addSupermarket(t, sbx, "coop")

	if err := ps.AddProduct(ctx, sm, appleflaps(t, "2024-01-01T00:05:00Z")); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	addSecondProduct(t, ps, sm, "wi-2", "Peer sap")

	got, err := ps.GetProducts(ctx, sm)
	if err != nil {
		t.Fatalf("GetProducts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("products = %d, want 2", len(got))
	}
}

func TestSchemaVersion(t *testing.T) {
	sbx := storetest.New(t)
	var value string
	if err := sbx.DB.QueryRow("SELECT value FROM karlinfo WHERE key = 'schemaversion'").Scan(&value); err != nil {
		t.Fatalf("karlinfo: %v", err)
	}
	if value != "2" {
		t.Errorf("schemaversion = %q, want \"2\"", value)
	}
}
