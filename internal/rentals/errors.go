package rentals

import "errors"

var (
	ErrRentalNotFound           = errors.New("rental not found")
	ErrInsufficientAvailability = errors.New("insufficient availability")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrProductNotFound          = errors.New("product not found")
	ErrCustomerNotFound         = errors.New("customer not found")
)
