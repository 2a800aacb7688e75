package api

import (
	"context"
	"net/http"

	"github.com/ASDFGHan123/unichat/internal/chat"
)

type loginResponse struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

// Login exchanges credentials for a token and installs it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (chat.User, error) {
	var resp loginResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login/", body, &resp); err != nil {
		return chat.User{}, err
	}
	c.SetToken(resp.Token)
	c.SetSelf(resp.User.ID)
	return resp.User.toUser(), nil
}

// Logout invalidates the token server-side and clears it locally. The local
// clear happens even if the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/auth/logout/", nil, nil)
	c.SetToken("")
	c.SetSelf("")
	return err
}

// Me fetches the authenticated user's profile, validating a restored token.
func (c *Client) Me(ctx context.Context) (chat.User, error) {
	var dto userDTO
	if err := c.doJSON(ctx, http.MethodGet, "/users/me/", nil, &dto); err != nil {
		return chat.User{}, err
	}
	c.SetSelf(dto.ID)
	return dto.toUser(), nil
}
