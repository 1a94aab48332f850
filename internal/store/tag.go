package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/supermarx/karl/internal/rowcodec"
)

// TagStore implements the tag/tagcategory forest: alias-based find-or-create,
// absorb/merge operations, and the forest consistency check.
type TagStore struct {
	db *sql.DB
}

func NewTagStore(db *sql.DB) *TagStore {
	return &TagStore{db: db}
}

// FindAddTagcategory looks up a tagcategory by case-insensitive alias,
// creating the category (and its self-alias) if none matches.
func (s *TagStore) FindAddTagcategory(ctx context.Context, name string) (TagcategoryID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	var tagcategoryID int64
	err = tx.QueryRowContext(ctx, "SELECT tagcategory_id FROM tagcategoryaliases WHERE lower(name) = lower($1)", name).Scan(&tagcategoryID)
	if err == nil {
		return TagcategoryID(tagcategoryID), tx.Commit()
	}
	if err != sql.ErrNoRows {
		return 0, Wrap(KindBackendDown, err)
	}

	if err := tx.QueryRowContext(ctx, "INSERT INTO tagcategories (name) VALUES ($1) RETURNING id", name).Scan(&tagcategoryID); err != nil {
		return 0, Wrap(KindBackendDown, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO tagcategoryaliases (tagcategory_id, name) VALUES ($1, $2)", tagcategoryID, name); err != nil {
		return 0, Wrap(KindBackendDown, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, Wrap(KindBackendDown, err)
	}
	return TagcategoryID(tagcategoryID), nil
}

// FindAddTag looks up a tag by (tagcategory, case-insensitive alias),
// creating the tag (and its self-alias) if none matches. New tags have no
// parent; attach one via UpdateTagSetParent.
func (s *TagStore) FindAddTag(ctx context.Context, tagcategoryID TagcategoryID, name string) (TagID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	var tagID int64
	err = tx.QueryRowContext(ctx, "SELECT tag_id FROM tagaliases WHERE tagcategory_id = $1 AND lower(name) = lower($2)", int64(tagcategoryID), name).Scan(&tagID)
	if err == nil {
		return TagID(tagID), tx.Commit()
	}
	if err != sql.ErrNoRows {
		return 0, Wrap(KindBackendDown, err)
	}

	if err := tx.QueryRowContext(ctx, "INSERT INTO tags (tagcategory_id, name) VALUES ($1, $2) RETURNING id", int64(tagcategoryID), name).Scan(&tagID); err != nil {
		return 0, Wrap(KindBackendDown, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO tagaliases (tag_id, tagcategory_id, name) VALUES ($1, $2, $3)", tagID, int64(tagcategoryID), name); err != nil {
		return 0, Wrap(KindBackendDown, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, Wrap(KindBackendDown, err)
	}
	return TagID(tagID), nil
}

// GetTags returns every tag in the forest.
func (s *TagStore) GetTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, parent_id, tagcategory_id, name FROM tags")
	if err != nil {
		return nil, Wrap(KindBackendDown, err)
	}
	tags, err := rowcodec.ScanAll[Tag](rows)
	if err != nil {
		return nil, Wrap(KindBackendDown, err)
	}
	return tags, nil
}

// BindTag associates a tag with a productclass.
func (s *TagStore) BindTag(ctx context.Context, productclassID ProductclassID, tagID TagID) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO tag_productclass (tag_id, productclass_id) VALUES ($1, $2)", int64(tagID), int64(productclassID))
	if err != nil {
		return Wrap(KindBackendDown, err)
	}
	return nil
}

// UpdateTagSetParent rewires a tag's parent (nil clears it to a root),
// then re-validates the whole forest.
func (s *TagStore) UpdateTagSetParent(ctx context.Context, tagID TagID, parentID *TagID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	var parentArg any
	if parentID != nil {
		parentArg = int64(*parentID)
	}
	res, err := tx.ExecContext(ctx, "UPDATE tags SET parent_id = $2 WHERE id = $1", int64(tagID), parentArg)
	if err != nil {
		return Wrap(KindBackendDown, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := checkTagConsistency(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

// AbsorbTagcategory merges src into dest: reassigns every tag, tagalias,
// and tagcategoryalias pointing at src, then deletes src.
func (s *TagStore) AbsorbTagcategory(ctx context.Context, srcID, destID TagcategoryID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	stmts := []string{
		"UPDATE tags SET tagcategory_id = $2 WHERE tagcategory_id = $1",
		"UPDATE tagaliases SET tagcategory_id = $2 WHERE tagcategory_id = $1",
		"UPDATE tagcategoryaliases SET tagcategory_id = $2 WHERE tagcategory_id = $1",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, int64(srcID), int64(destID)); err != nil {
			return Wrap(KindBackendDown, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tagcategories WHERE id = $1", int64(srcID)); err != nil {
		return Wrap(KindBackendDown, err)
	}

	return tx.Commit()
}

// AbsorbTag merges src into dest: repoints any tag whose parent is src,
// repoints aliases, merges tag_productclass bindings (deduped), then
// deletes src and re-validates the forest.
func (s *TagStore) AbsorbTag(ctx context.Context, srcID, destID TagID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap(KindBackendDown, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE tags SET parent_id = $2 WHERE parent_id = $1", int64(srcID), int64(destID)); err != nil {
		return Wrap(KindBackendDown, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE tagaliases SET tag_id = $2 WHERE tag_id = $1", int64(srcID), int64(destID)); err != nil {
		return Wrap(KindBackendDown, err)
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM tag_productclass src
USING tag_productclass dest
WHERE src.tag_id = $1
  AND dest.tag_id = $2
  AND src.productclass_id = dest.productclass_id`, int64(srcID), int64(destID)); err != nil {
		return Wrap(KindBackendDown, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE tag_productclass SET tag_id = $2 WHERE tag_id = $1", int64(srcID), int64(destID)); err != nil {
		return Wrap(KindBackendDown, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tags WHERE id = $1", int64(srcID)); err != nil {
		return Wrap(KindBackendDown, err)
	}

	if err := checkTagConsistency(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

// checkTagConsistency walks the tag forest from every root (parent_id IS
// NULL) and fails if it finds a node reachable twice or a node unreachable
// from any root (a closed cycle). Runs inside the mutating transaction so a
// failed check aborts the mutation with it.
func checkTagConsistency(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "SELECT id, parent_id, tagcategory_id, name FROM tags")
	if err != nil {
		return Wrap(KindBackendDown, err)
	}
	tags, err := rowcodec.ScanAll[Tag](rows)
	if err != nil {
		return Wrap(KindBackendDown, err)
	}

	allIDs := make(map[TagID]struct{}, len(tags))
	children := make(map[TagID][]TagID)
	var roots []TagID
	for _, t := range tags {
		allIDs[t.ID] = struct{}{}
		if t.ParentID != nil {
			children[*t.ParentID] = append(children[*t.ParentID], t.ID)
		} else {
			roots = append(roots, t.ID)
		}
	}

	visited := make(map[TagID]struct{}, len(tags))
	stack := append([]TagID{}, roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[id]; seen {
			return Wrapf(KindIntegrityViolation, "tag tree is not consistent (cycle detected with id: %d)", int64(id))
		}
		visited[id] = struct{}{}

		stack = append(stack, children[id]...)
	}

	if len(visited) < len(allIDs) {
		var diff []string
		for id := range allIDs {
			if _, ok := visited[id]; !ok {
				diff = append(diff, fmt.Sprintf("%d", int64(id)))
			}
		}
		return Wrapf(KindIntegrityViolation, "tag tree is not consistent (closed cycles detected with ids: %s)", strings.Join(diff, " "))
	}

	return nil
}
