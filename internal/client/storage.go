package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/studentfund/studentfund/internal/storage"
)

func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

// UploadFile stores data at bucket/path. Existing objects are never replaced;
// a collision is reported as provider.ErrObjectExists.
func (c *Client) UploadFile(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	req := request{
		method:      http.MethodPut,
		path:        "/storage/" + url.PathEscape(bucket) + "/" + escapePath(strings.TrimPrefix(path, "/")),
		body:        data,
		contentType: contentType,
		token:       tok,
	}
	if err := c.send(ctx, req, nil); err != nil {
		return fmt.Errorf("uploading %s/%s: %w", bucket, path, err)
	}
	return nil
}

// GetPublicURL returns the unauthenticated URL of bucket/path. It does not
// check that the object exists.
func (c *Client) GetPublicURL(bucket, path string) string {
	return c.baseURL + "/storage/public/" + url.PathEscape(bucket) + "/" + escapePath(strings.TrimPrefix(path, "/"))
}

// ListFiles lists the objects in folder prefix, newest first.
func (c *Client) ListFiles(ctx context.Context, bucket, prefix string) ([]storage.Object, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req := request{
		method: http.MethodGet,
		path:   "/storage/" + url.PathEscape(bucket),
		query:  url.Values{"prefix": {prefix}},
		token:  tok,
	}
	var objects []storage.Object
	if err := c.send(ctx, req, &objects); err != nil {
		return nil, fmt.Errorf("listing %s/%s: %w", bucket, prefix, err)
	}
	return objects, nil
}

// DeleteFiles removes paths from bucket.
func (c *Client) DeleteFiles(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	req, err := jsonRequest(http.MethodDelete, "/storage/"+url.PathEscape(bucket), map[string][]string{"paths": paths})
	if err != nil {
		return err
	}
	req.token = tok
	if err := c.send(ctx, req, nil); err != nil {
		return fmt.Errorf("deleting from %s: %w", bucket, err)
	}
	return nil
}
