package models

import "errors"

// ErrUnsupportedFormat is returned by exporters and renderers for an unknown output format
var ErrUnsupportedFormat = errors.New("unsupported format")
