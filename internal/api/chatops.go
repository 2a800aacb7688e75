package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/ASDFGHan123/unichat/internal/chat"
)

// SetSelf records the authenticated user's id, used to tag FromMe on
// fetched history.
func (c *Client) SetSelf(userID string) {
	c.mu.Lock()
	c.selfID = userID
	c.mu.Unlock()
}

func (c *Client) self() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfID
}

// ListConversations fetches the unified conversation list (individual + group).
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var dtos []conversationDTO
	if err := c.doJSON(ctx, http.MethodGet, "/chat/conversations/", nil, &dtos); err != nil {
		return nil, err
	}
	var out []chat.Conversation
	for _, d := range dtos {
		out = append(out, d.toConversation())
	}
	return out, nil
}

// ListMessages fetches message history for a conversation.
func (c *Client) ListMessages(ctx context.Context, conv chat.Conversation) ([]chat.Message, error) {
	group, path := messagesPath(conv)
	var dtos []messageDTO
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, err
	}
	self := c.self()
	var out []chat.Message
	for _, d := range dtos {
		out = append(out, d.toMessage(conv.Core().ID, group, self))
	}
	return out, nil
}

// SendMessage posts a message. Attachment references are sent as a multipart
// form, plain text as JSON.
func (c *Client) SendMessage(ctx context.Context, conv chat.Conversation, content string, attachments []chat.Attachment) (chat.Message, error) {
	group, path := messagesPath(conv)

	var dto messageDTO
	if len(attachments) == 0 {
		body := map[string]string{"content": content}
		if err := c.doJSON(ctx, http.MethodPost, path, body, &dto); err != nil {
			return nil, err
		}
	} else {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := w.WriteField("content", content); err != nil {
			return nil, fmt.Errorf("encode form: %w", err)
		}
		for _, a := range attachments {
			if err := w.WriteField("attachment_ids", a.ID); err != nil {
				return nil, fmt.Errorf("encode form: %w", err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("encode form: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		if err := c.do(req, &dto); err != nil {
			return nil, err
		}
	}
	return dto.toMessage(conv.Core().ID, group, c.self()), nil
}

// EditMessage patches a message's content. Group messages use the
// group-scoped endpoint, individual messages the generic one.
func (c *Client) EditMessage(ctx context.Context, conv chat.Conversation, messageID, content string) error {
	path := messagePath(conv, messageID)
	return c.doJSON(ctx, http.MethodPatch, path, map[string]string{"content": content}, nil)
}

// DeleteMessage deletes a message, symmetric with EditMessage.
func (c *Client) DeleteMessage(ctx context.Context, conv chat.Conversation, messageID string) error {
	return c.doJSON(ctx, http.MethodDelete, messagePath(conv, messageID), nil, nil)
}

// CreateGroup creates a group and returns its conversation.
func (c *Client) CreateGroup(ctx context.Context, req chat.GroupRequest) (*chat.GroupConversation, error) {
	body := map[string]any{
		"name":        req.Name,
		"description": req.Description,
		"member_ids":  req.MemberIDs,
		"is_private":  req.Private,
	}
	var dto groupDTO
	if err := c.doJSON(ctx, http.MethodPost, "/chat/groups/", body, &dto); err != nil {
		return nil, err
	}
	var members []chat.User
	for _, m := range dto.Members {
		members = append(members, m.toUser())
	}
	conv := chat.NewGroupConversation(dto.ID, dto.Name, members)
	conv.Description = dto.Description
	conv.GroupAvatar = dto.Avatar
	conv.Private = dto.IsPrivate
	return conv, nil
}

// DeleteConversation removes a server-known conversation.
func (c *Client) DeleteConversation(ctx context.Context, conv chat.Conversation) error {
	if g, ok := conv.(*chat.GroupConversation); ok {
		return c.doJSON(ctx, http.MethodDelete, "/chat/groups/"+url.PathEscape(g.GroupID)+"/", nil, nil)
	}
	return c.doJSON(ctx, http.MethodDelete, "/chat/conversations/"+url.PathEscape(conv.Core().ID)+"/", nil, nil)
}

// MarkRead tells the backend the conversation has been viewed.
func (c *Client) MarkRead(ctx context.Context, conv chat.Conversation) error {
	if g, ok := conv.(*chat.GroupConversation); ok {
		return c.doJSON(ctx, http.MethodPost, "/chat/groups/"+url.PathEscape(g.GroupID)+"/read/", nil, nil)
	}
	return c.doJSON(ctx, http.MethodPost, "/chat/conversations/"+url.PathEscape(conv.Core().ID)+"/read/", nil, nil)
}

// ListUsers fetches the available-users directory.
func (c *Client) ListUsers(ctx context.Context) ([]chat.User, error) {
	var dtos []userDTO
	if err := c.doJSON(ctx, http.MethodGet, "/users/", nil, &dtos); err != nil {
		return nil, err
	}
	var out []chat.User
	for _, d := range dtos {
		out = append(out, d.toUser())
	}
	return out, nil
}

func messagesPath(conv chat.Conversation) (group bool, path string) {
	if g, ok := conv.(*chat.GroupConversation); ok {
		return true, "/chat/groups/" + url.PathEscape(g.GroupID) + "/messages/"
	}
	return false, "/chat/conversations/" + url.PathEscape(conv.Core().ID) + "/messages/"
}

func messagePath(conv chat.Conversation, messageID string) string {
	if g, ok := conv.(*chat.GroupConversation); ok {
		return "/chat/groups/" + url.PathEscape(g.GroupID) + "/messages/" + url.PathEscape(messageID) + "/"
	}
	return "/chat/messages/" + url.PathEscape(messageID) + "/"
}
