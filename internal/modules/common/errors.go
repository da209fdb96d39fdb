package common

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported payload format")
	ErrUnexpectedPayload = errors.New("unexpected payload shape")
	ErrMissingSetting    = errors.New("required setting missing")
)

// Require returns ErrMissingSetting naming key when value is empty.
func Require(key, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrMissingSetting, key)
	}
	return nil
}

// HandleErrors drains errCh and joins every non-nil error.
func HandleErrors(errCh <-chan error) error {
	var errs []error
	for err := range errCh {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
