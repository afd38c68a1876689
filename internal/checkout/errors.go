package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation")
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("out of stock")
	ErrPersistence     = errors.New("persistence failure")
)

const persistenceMessage = "We could not place your order. Please try again."

// Error is the single outward-facing failure of a checkout attempt. Error()
// returns the message meant for the customer; errors.Is matches Kind.
type Error struct {
	Kind    error
	Message string
	State   State
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func validationError(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(productID uint, cause error) *Error {
	return &Error{
		Kind:    ErrProductNotFound,
		Message: fmt.Sprintf("Product %d not found.", productID),
		Err:     cause,
	}
}

func outOfStockError(name string, cause error) *Error {
	return &Error{
		Kind:    ErrOutOfStock,
		Message: fmt.Sprintf("Product %s is out of stock.", name),
		Err:     cause,
	}
}

func persistenceError(cause error) *Error {
	return &Error{Kind: ErrPersistence, Message: persistenceMessage, Err: cause}
}
