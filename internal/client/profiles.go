package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/provider"
)

// GetProfile returns id's profile, or nil, nil when there is none.
func (c *Client) GetProfile(ctx context.Context, id uuid.UUID) (*profile.Profile, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var p profile.Profile
	err = c.send(ctx, request{method: http.MethodGet, path: "/profiles/" + id.String(), token: tok}, &p)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	return &p, nil
}

// UsernameExists reports whether any profile holds username.
func (c *Client) UsernameExists(ctx context.Context, username string) (bool, error) {
	var resp struct {
		Available bool `json:"available"`
	}
	err := c.send(ctx, request{method: http.MethodGet, path: "/usernames/" + url.PathEscape(username)}, &resp)
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return !resp.Available, nil
}

type insertProfileRequest struct {
	ID        uuid.UUID `json:"id"`
	Username  *string   `json:"username,omitempty"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	UserType  string    `json:"user_type"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Bio       *string   `json:"bio,omitempty"`
	Location  *string   `json:"location,omitempty"`
	Interests []string  `json:"interests"`
}

// InsertProfile creates p for the signed-in identity.
func (c *Client) InsertProfile(ctx context.Context, p *profile.Profile) (*profile.Profile, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := jsonRequest(http.MethodPost, "/profiles", insertProfileRequest{
		ID:        p.ID,
		Username:  p.Username,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		UserType:  string(p.UserType),
		AvatarURL: p.AvatarURL,
		Bio:       p.Bio,
		Location:  p.Location,
		Interests: p.Interests,
	})
	if err != nil {
		return nil, err
	}
	req.token = tok

	var created profile.Profile
	if err := c.send(ctx, req, &created); err != nil {
		return nil, fmt.Errorf("inserting profile: %w", err)
	}
	return &created, nil
}

// UpdateProfile applies u to id's profile.
func (c *Client) UpdateProfile(ctx context.Context, id uuid.UUID, u profile.Update) (*profile.Profile, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := jsonRequest(http.MethodPatch, "/profiles/"+id.String(), u)
	if err != nil {
		return nil, err
	}
	req.token = tok

	var updated profile.Profile
	if err := c.send(ctx, req, &updated); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return &updated, nil
}
