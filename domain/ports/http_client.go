package ports

import (
	"context"
	"io"
)

// HTTPClient is the shared HTTP service used for extension downloads.
type HTTPClient interface {
	// Fetch performs a GET and streams the body to w, returning the status code.
	Fetch(ctx context.Context, url string, w io.Writer) (int, error)
}
