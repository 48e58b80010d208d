package ports

import "context"

// MeasurementSource produces one raw performance sample per invocation. The
// payload is opaque JSON whose schema may vary across source versions; the
// normalizer decides whether it is usable.
type MeasurementSource interface {
	Measure(ctx context.Context) ([]byte, error)
	Name() string
}
