package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/supermarx/karl/internal/store"
)

var testTopN int

var testCmd = &cobra.Command{
	Use:   "test [supermarket-a] [supermarket-b]",
	Short: "Run a cross-supermarket similarity sweep",
	Long: `Scores every product in supermarket A against every product in
supermarket B with the similarity engine and prints the top-N most similar
cross-supermarket pairs by collapsed score. With no arguments, uses the
first two supermarkets found.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runTest,
}

func init() {
	testCmd.Flags().IntVar(&testTopN, "top", 20, "number of top matches to print")
}

func runTest(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	var smA, smB store.SupermarketID
	if len(args) == 2 {
		ia, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("karl: invalid supermarket id %q: %w", args[0], err)
		}
		ib, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("karl: invalid supermarket id %q: %w", args[1], err)
		}
		smA, smB = store.SupermarketID(ia), store.SupermarketID(ib)
	} else {
		ids, err := firstTwoSupermarkets(ctx, a)
		if err != nil {
			return err
		}
		smA, smB = ids[0], ids[1]
	}

	matches, err := a.f.SweepSimilar(ctx, smA, smB)
	if err != nil {
		return err
	}

	n := testTopN
	if n > len(matches) {
		n = len(matches)
	}
	for i := 0; i < n; i++ {
		m := matches[i]
		fmt.Printf("%.4f  %q (%s) <-> %q (%s)\n", m.Score.Collapse(), m.A.Name, m.A.Identifier, m.B.Name, m.B.Identifier)
	}
	return nil
}

func firstTwoSupermarkets(ctx context.Context, a *app) ([2]store.SupermarketID, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT id FROM supermarkets ORDER BY id LIMIT 2")
	if err != nil {
		return [2]store.SupermarketID{}, err
	}
	defer rows.Close()

	var ids []store.SupermarketID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return [2]store.SupermarketID{}, err
		}
		ids = append(ids, store.SupermarketID(id))
	}
	if err := rows.Err(); err != nil {
		return [2]store.SupermarketID{}, err
	}
	if len(ids) < 2 {
		return [2]store.SupermarketID{}, fmt.Errorf("karl: need at least two supermarkets to run a similarity sweep")
	}
	return [2]store.SupermarketID{ids[0], ids[1]}, nil
}
