package grpc

import (
	"context"

	ggrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
)

const bulkUsersMethod = "/user.UserInternal/BulkUsers"

// UserClient fetches profile summaries from the user service.
type UserClient struct {
	conn ggrpc.ClientConnInterface
}

// NewUserClient constructs the wrapper.
func NewUserClient(conn ggrpc.ClientConnInterface) *UserClient {
	return &UserClient{conn: conn}
}

// BulkUsers fetches multiple users in one call.
func (u *UserClient) BulkUsers(ctx context.Context, ids []int64) ([]models.UserSummary, error) {
	if len(ids) == 0 {
		return []models.UserSummary{}, nil
	}

	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, float64(id))
	}
	req, err := structpb.NewStruct(map[string]any{"ids": values})
	if err != nil {
		return nil, err
	}

	resp := &structpb.Struct{}
	if err := u.conn.Invoke(ctx, bulkUsersMethod, req, resp); err != nil {
		return nil, err
	}

	list := resp.GetFields()["users"].GetListValue().GetValues()
	users := make([]models.UserSummary, 0, len(list))
	for _, v := range list {
		f := v.GetStructValue().GetFields()
		id := int64(f["id"].GetNumberValue())
		if id == 0 {
			continue
		}
		users = append(users, models.UserSummary{
			ID:        id,
			Username:  f["username"].GetStringValue(),
			AvatarURL: f["avatar_url"].GetStringValue(),
		})
	}
	return users, nil
}

// Users implements identity.Directory. Identities the user service does not return get an ID-only summary.
func (u *UserClient) Users(ctx context.Context, ids []int64) (map[int64]models.UserSummary, error) {
	users, err := u.BulkUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]models.UserSummary, len(ids))
	for _, id := range ids {
		out[id] = models.UserSummary{ID: id}
	}
	for _, user := range users {
		out[user.ID] = user
	}
	return out, nil
}
