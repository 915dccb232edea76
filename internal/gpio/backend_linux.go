//go:build linux

package gpio

func newBackend(driver string, opts Options) (Backend, error) {
	switch driver {
	case DriverRpio:
		return NewRpioBackend(opts.Lines), nil
	case DriverMCP:
		return NewMCPBackend(), nil
	default:
		return NewChipBackend(opts.Lines), nil
	}
}
