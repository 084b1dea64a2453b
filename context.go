package odoosync

import "context"

type importingKey struct{}

// WithImporting marks ctx as carrying a pull from Odoo. Local writes made
// under such a context must not enqueue a push back to Odoo.
func WithImporting(ctx context.Context) context.Context {
	return context.WithValue(ctx, importingKey{}, true)
}

// IsImporting reports whether ctx was produced by WithImporting.
func IsImporting(ctx context.Context) bool {
	v, _ := ctx.Value(importingKey{}).(bool)
	return v
}
