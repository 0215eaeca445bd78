package grpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/identity"
)

// fakeConn answers Invoke with a canned Struct per method.
type fakeConn struct {
	responses map[string]map[string]any
	errs      map[string]error
	requests  map[string]*structpb.Struct
}

func (f *fakeConn) Invoke(_ context.Context, method string, args, reply any, _ ...ggrpc.CallOption) error {
	if f.requests == nil {
		f.requests = map[string]*structpb.Struct{}
	}
	f.requests[method] = args.(*structpb.Struct)
	if err := f.errs[method]; err != nil {
		return err
	}
	resp, err := structpb.NewStruct(f.responses[method])
	if err != nil {
		return err
	}
	proto.Merge(reply.(*structpb.Struct), resp)
	return nil
}

func (f *fakeConn) NewStream(context.Context, *ggrpc.StreamDesc, string, ...ggrpc.CallOption) (ggrpc.ClientStream, error) {
	return nil, status.Error(codes.Unimplemented, "streams not supported")
}

func TestValidateToken(t *testing.T) {
	conn := &fakeConn{responses: map[string]map[string]any{
		validateTokenMethod: {"valid": true, "user_id": 12, "active": true},
	}}
	client := NewAuthClient(conn)

	id, err := client.Authenticate(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, identity.Identity{UserID: 12, Active: true}, id)
	assert.Equal(t, "tok", conn.requests[validateTokenMethod].GetFields()["token"].GetStringValue())
}

func TestValidateTokenInvalid(t *testing.T) {
	conn := &fakeConn{responses: map[string]map[string]any{
		validateTokenMethod: {"valid": false},
	}}
	_, err := NewAuthClient(conn).ValidateToken(context.Background(), "tok")
	assert.ErrorIs(t, err, identity.ErrInvalidCredential)

	conn = &fakeConn{errs: map[string]error{
		validateTokenMethod: status.Error(codes.Unauthenticated, "expired"),
	}}
	_, err = NewAuthClient(conn).ValidateToken(context.Background(), "tok")
	assert.ErrorIs(t, err, identity.ErrInvalidCredential)

	conn = &fakeConn{errs: map[string]error{
		validateTokenMethod: status.Error(codes.Unavailable, "down"),
	}}
	_, err = NewAuthClient(conn).ValidateToken(context.Background(), "tok")
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestValidateTokenInactive(t *testing.T) {
	conn := &fakeConn{responses: map[string]map[string]any{
		validateTokenMethod: {"valid": true, "user_id": 3, "active": false},
	}}
	_, err := identity.Resolve(context.Background(), NewAuthClient(conn), "tok")
	assert.ErrorIs(t, err, identity.ErrInactive)
}

func TestBulkUsersAndDirectory(t *testing.T) {
	conn := &fakeConn{responses: map[string]map[string]any{
		bulkUsersMethod: {"users": []any{
			map[string]any{"id": 1, "username": "nino", "avatar_url": "a.png"},
			map[string]any{"id": 2, "username": "giorgi"},
		}},
	}}
	client := NewUserClient(conn)

	users, err := client.Users(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "nino", users[1].Username)
	assert.Equal(t, "a.png", users[1].AvatarURL)
	assert.Equal(t, "giorgi", users[2].Username)
	assert.Equal(t, int64(3), users[3].ID)
	assert.Len(t, conn.requests[bulkUsersMethod].GetFields()["ids"].GetListValue().GetValues(), 3)

	empty, err := client.BulkUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
