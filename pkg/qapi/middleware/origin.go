// Package middleware holds huma middleware shared by the API routes.
package middleware

import (
	"context"
	"net/netip"

	"github.com/danielgtaylor/huma/v2"
	"github.com/quatton/qhook/pkg/qpolicy"
)

type originKey struct{}

// Origin records the request method and caller address for the admission
// policy. The address comes from RemoteAddr, which chi's RealIP middleware
// rewrites when the server sits behind a trusted proxy.
func Origin(ctx huma.Context, next func(huma.Context)) {
	origin := &qpolicy.Origin{
		Method: ctx.Method(),
		Addr:   ParseRemoteAddr(ctx.RemoteAddr()),
	}
	next(huma.WithValue(ctx, originKey{}, origin))
}

// OriginFrom returns the origin stored by Origin, or nil.
func OriginFrom(ctx context.Context) *qpolicy.Origin {
	o, _ := ctx.Value(originKey{}).(*qpolicy.Origin)
	return o
}

// ParseRemoteAddr accepts "host:port" or a bare address. The zero Addr is
// returned when neither parses.
func ParseRemoteAddr(remote string) netip.Addr {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap()
	}
	if a, err := netip.ParseAddr(remote); err == nil {
		return a.Unmap()
	}
	return netip.Addr{}
}
