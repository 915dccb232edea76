//go:build !linux

package gpio

import "fmt"

func newBackend(driver string, opts Options) (Backend, error) {
	return nil, fmt.Errorf("%w: driver %q requires linux", ErrInit, driver)
}
