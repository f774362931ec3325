package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const (
	// NodeIdentityKey is the key used to store/retrieve the caller's node
	// identity in context.
	NodeIdentityKey contextKey = "node_identity"

	// nodeTokenHeader is the metadata key a caller must present to open a
	// Subscribe stream - management/dashboard callers within the mail
	// server's own node set, not end users, so a single shared bearer token
	// suffices. This is a stream interceptor only: the unary Control call
	// is not checked by it.
	nodeTokenHeader = "x-node-token"
)

// NodeAuthenticator validates a presented token and returns the caller's
// node identity.
type NodeAuthenticator interface {
	Authenticate(token string) (nodeID string, err error)
}

// NewStreamAuthInterceptor builds a stream interceptor for the management
// gRPC surface: pre-auth check, context enrichment, then stream wrapping.
// Identity is per-node rather than per-user since this service's callers
// are other mail-server nodes and dashboards, not end users.
func NewStreamAuthInterceptor(auth NodeAuthenticator) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return status.Error(codes.Unauthenticated, "missing metadata")
		}
		tokens := md.Get(nodeTokenHeader)
		if len(tokens) == 0 {
			return status.Error(codes.Unauthenticated, "missing node token")
		}

		nodeID, err := auth.Authenticate(tokens[0])
		if err != nil {
			return status.Errorf(codes.Unauthenticated, "authentication failed: %v", err)
		}

		newCtx := context.WithValue(ctx, NodeIdentityKey, nodeID)
		wrapped := &wrappedStream{ServerStream: ss, ctx: newCtx}
		return handler(srv, wrapped)
	}
}

// wrappedStream is a thin wrapper to inject a new context into a gRPC stream.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}

// NodeIdentity extracts the authenticated node id from context, if present.
func NodeIdentity(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(NodeIdentityKey).(string)
	return id, ok
}
