package rentals

import (
	"context"
	"fmt"
	"sort"
)

type AvailabilityReader interface {
	ProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error)
	CommittedQuantity(ctx context.Context, productID string, w Window) (int, error)
}

// CheckAvailability is the read-then-decide capacity check: for every product, the
// quantity already committed to non-cancelled rentals overlapping w plus the requested
// quantity must fit the product's capacity. It is advisory; CreateRental repeats the
// check inside its insert transaction.
func CheckAvailability(ctx context.Context, r AvailabilityReader, w Window, want map[string]int) error {
	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	products, err := r.ProductsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		committed, err := r.CommittedQuantity(ctx, id, w)
		if err != nil {
			return err
		}
		if committed+want[id] > p.AvailableQuantity {
			return fmt.Errorf("%w: product %s has %d of %d committed, requested %d",
				ErrInsufficientAvailability, id, committed, p.AvailableQuantity, want[id])
		}
	}
	return nil
}
