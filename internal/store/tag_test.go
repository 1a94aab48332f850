package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/supermarx/karl/internal/store"
)

func TestFindAddTagcategoryCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	_, ts := newTagStore(t)

	first, err := ts.FindAddTagcategory(ctx, "Dairy")
	if err != nil {
		t.Fatalf("FindAddTagcategory: %v", err)
	}
	second, err := ts.FindAddTagcategory(ctx, "dairy")
	if err != nil {
		t.Fatalf("FindAddTagcategory lowercase: %v", err)
	}
	if first != second {
		t.Errorf("ids differ: %d vs %d", first, second)
	}
}

func TestFindAddTagCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	_, ts := newTagStore(t)

	cat, err := ts.FindAddTagcategory(ctx, "dairy")
	if err != nil {
		t.Fatalf("FindAddTagcategory: %v", err)
	}

	t1, err := ts.FindAddTag(ctx, cat, "Milk")
	if err != nil {
		t.Fatalf("FindAddTag: %v", err)
	}
	t2, err := ts.FindAddTag(ctx, cat, "milk")
	if err != nil {
		t.Fatalf("FindAddTag lowercase: %v", err)
	}
	if t1 != t2 {
		t.Errorf("ids differ: %d vs %d", t1, t2)
	}
}

func TestUpdateTagSetParent(t *testing.T) {
	ctx := context.Background()
	_, ts := newTagStore(t)

	cat, err := ts.FindAddTagcategory(ctx, "dairy")
	if err != nil {
		t.Fatal(err)
	}
	parent, err := ts.FindAddTag(ctx, cat, "drinks")
	if err != nil {
		t.Fatal(err)
	}
	child, err := ts.FindAddTag(ctx, cat, "milk")
	if err != nil {
		t.Fatal(err)
	}

	if err := ts.UpdateTagSetParent(ctx, child, &parent); err != nil {
		t.Fatalf("UpdateTagSetParent: %v", err)
	}

	tags, err := ts.GetTags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, tag := range tags {
		if tag.ID == child {
			found = true
			if tag.ParentID == nil || *tag.ParentID != parent {
				t.Errorf("child parent = %v, want %d", tag.ParentID, parent)
			}
		}
	}
	if !found {
		t.Fatal("child tag missing from GetTags")
	}

	// clearing the parent makes it a root again
	if err := ts.UpdateTagSetParent(ctx, child, nil); err != nil {
		t.Fatalf("clear parent: %v", err)
	}
}

func TestUpdateTagSetParentSelfCycle(t *testing.T) {
	ctx := context.Background()
	sbx, ts := newTagStore(t)

	cat, err := ts.FindAddTagcategory(ctx, "dairy")
	if err != nil {
		t.Fatal(err)
	}
	tag, err := ts.FindAddTag(ctx, cat, "Milk")
	if err != nil {
		t.Fatal(err)
	}

	err = ts.UpdateTagSetParent(ctx, tag, &tag)
	if !errors.Is(err, store.ErrIntegrityViolation) {
		t.Fatalf("err = %v, want integrity_violation", err)
	}

	// the failed transaction must leave the tag a root
	var parent *int64
	if err := sbx.DB.QueryRow("SELECT parent_id FROM tags WHERE id = $1", int64(tag)).Scan(&parent); err != nil {
		t.Fatal(err)
	}
	if parent != nil {
		t.Errorf("parent_id = %d after aborted update, want NULL", *parent)
	}
}

func TestUpdateTagSetParentTwoNodeCycle(t *testing.T) {
	ctx := context.Background()
	_, ts := newTagStore(t)

	cat, err := ts.FindAddTagcategory(ctx, "dairy")
	if err != nil {
		t.Fatal(err)
	}
	a, err := ts.FindAddTag(ctx, cat, "a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ts.FindAddTag(ctx, cat, "b")
	if err != nil {
		t.Fatal(err)
	}

	if err := ts.UpdateTagSetParent(ctx, b, &a); err != nil {
		t.Fatalf("b -> a: %v", err)
	}
	if err := ts.UpdateTagSetParent(ctx, a, &b); !errors.Is(err, store.ErrIntegrityViolation) {
		t.Fatalf("a -> b err = %v, want integrity_violation", err)
	}
}

func TestUpdateTagSetParentUnknownTag(t *testing.T) {
	ctx := context.Background()
	_, ts := newTagStore(t)

	if err := ts.UpdateTagSetParent(ctx, store.TagID(999), nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestAbsorbTag(t *testing.T) {
	ctx := context.Background()
	sbx, ts := newTagStore(t)

	cat, err := ts.FindAddTagcategory(ctx, "dairy")
	if err != nil {
		t.Fatal(err)
	}
	src, err := ts.FindAddTag(ctx, cat, "melk")
	if err != nil {
		t.Fatal(err)
	}
	dst, err := ts.FindAddTag(ctx, cat, "milk")
	if err != nil {
		t.Fatal(err)
	}
	child, err := ts.FindAddTag(ctx, cat, "skim milk")
	if err != nil {
		t.Fatal(err)
	}
	if err := ts.UpdateTagSetParent(ctx, child, &src); err != nil {
		t.Fatal(err)
	}

	// both tags bound to one productclass: absorb must not duplicate
	var pc int64
	if err := sbx.DB.QueryRow("INSERT INTO productclasses (name) VALUES ('milk') RETURNING id").Scan(&pc); err != nil {
		t.Fatal(err)
	}
	if err := ts.BindTag(ctx, store.ProductclassID(pc), src); err != nil {
		t.Fatal(err)
	}
	if err := ts.BindTag(ctx, store.ProductclassID(pc), dst); err != nil {
		t.Fatal(err)
	}

	if err := ts.AbsorbTag(ctx, src, dst); err != nil {
		t.Fatalf("AbsorbTag: %v", err)
	}

	// the src alias now resolves to dst
	found, err := ts.FindAddTag(ctx, cat, "melk")
	if err != nil {
		t.Fatal(err)
	}
	if found != dst {
		t.Errorf("alias resolves to %d, want %d", found, dst)
	}

	// the orphaned child was repointed at dst
	tags, err := ts.GetTags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, tag := range tags {
		if tag.ID == src {
			t.Error("src tag still present after absorb")
		}
		if tag.ID == child && (tag.ParentID == nil || *tag.ParentID != dst) {
			t.Errorf("child parent = %v, want %d", tag.ParentID, dst)
		}
	}

	var bindings int
	if err := sbx.DB.QueryRow("SELECT count(*) FROM tag_productclass WHERE productclass_id = $1", pc).Scan(&bindings); err != nil {
		t.Fatal(err)
	}
	if bindings != 1 {
		t.Errorf("bindings = %d, want 1", bindings)
	}
}

func TestAbsorbTagcategory(t *testing.T) {
	ctx := context.Background()
	_, ts := newTagStore(t)

	src, err := ts.FindAddTagcategory(ctx, "zuivel")
	if err != nil {
		t.Fatal(err)
	}
	dst, err := ts.FindAddTagcategory(ctx, "dairy")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ts.FindAddTag(ctx, src, "melk"); err != nil {
		t.Fatal(err)
	}

	if err := ts.AbsorbTagcategory(ctx, src, dst); err != nil {
		t.Fatalf("AbsorbTagcategory: %v", err)
	}

	found, err := ts.FindAddTagcategory(ctx, "zuivel")
	if err != nil {
		t.Fatal(err)
	}
	if found != dst {
		t.Errorf("alias resolves to %d, want %d", found, dst)
	}

	// the tag moved along with its category
	tags, err := ts.GetTags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, tag := range tags {
		if tag.Name == "melk" && (tag.TagcategoryID == nil || *tag.TagcategoryID != dst) {
			t.Errorf("tag category = %v, want %d", tag.TagcategoryID, dst)
		}
	}
}
