package deviceauth

import "context"

type identityContextKey struct{}
type deviceContextKey struct{}

// WithIdentity attaches a validated identity to ctx. Middleware uses it to
// hand the result of Validate to downstream handlers.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok && id != nil
}

// WithDevice attaches the caller's device descriptor to ctx.
func WithDevice(ctx context.Context, d DeviceInfo) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, d)
}

// DeviceFromContext returns the descriptor attached by WithDevice, or the
// zero value.
func DeviceFromContext(ctx context.Context) DeviceInfo {
	if ctx == nil {
		return DeviceInfo{}
	}
	d, _ := ctx.Value(deviceContextKey{}).(DeviceInfo)
	return d
}
