package grpc

import (
	"context"

	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/identity"
)

const validateTokenMethod = "/auth.AuthService/ValidateToken"

// AuthClient resolves bearer credentials against the auth service.
// Requests and responses travel as google.protobuf.Struct messages.
type AuthClient struct {
	conn ggrpc.ClientConnInterface
}

// NewAuthClient constructs the wrapper.
func NewAuthClient(conn ggrpc.ClientConnInterface) *AuthClient {
	return &AuthClient{conn: conn}
}

// ValidateToken verifies the token and returns the authenticated identity.
func (a *AuthClient) ValidateToken(ctx context.Context, token string) (identity.Identity, error) {
	req, err := structpb.NewStruct(map[string]any{"token": token})
	if err != nil {
		return identity.Identity{}, err
	}

	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, validateTokenMethod, req, resp); err != nil {
		if code := status.Code(err); code == codes.Unauthenticated || code == codes.InvalidArgument {
			return identity.Identity{}, identity.ErrInvalidCredential
		}
		return identity.Identity{}, err
	}

	fields := resp.GetFields()
	userID := int64(fields["user_id"].GetNumberValue())
	if !fields["valid"].GetBoolValue() || userID == 0 {
		return identity.Identity{}, identity.ErrInvalidCredential
	}

	active := true
	if v, ok := fields["active"]; ok {
		active = v.GetBoolValue()
	}
	return identity.Identity{UserID: userID, Active: active}, nil
}

// Authenticate implements identity.Provider.
func (a *AuthClient) Authenticate(ctx context.Context, token string) (identity.Identity, error) {
	return a.ValidateToken(ctx, token)
}
