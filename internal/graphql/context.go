package graphql

import (
	"context"
	"errors"
	"net/netip"
)

type contextKey string

const (
	userIDKey     contextKey = "graphql.userID"
	remoteAddrKey contextKey = "graphql.remoteAddr"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("missing permission")
)

func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (uint, error) {
	if ctx == nil {
		return 0, ErrUnauthenticated
	}
	if raw, ok := ctx.Value(userIDKey).(uint); ok && raw > 0 {
		return raw, nil
	}
	return 0, ErrUnauthenticated
}

// WithRemoteAddr carries the caller's address so mutations can log it.
func WithRemoteAddr(ctx context.Context, addr netip.Addr) context.Context {
	return context.WithValue(ctx, remoteAddrKey, addr)
}

func addrFromContext(ctx context.Context) netip.Addr {
	if ctx == nil {
		return netip.Addr{}
	}
	if addr, ok := ctx.Value(remoteAddrKey).(netip.Addr); ok {
		return addr
	}
	return netip.Addr{}
}
