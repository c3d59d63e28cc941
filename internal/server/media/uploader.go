// Package media is the boundary to the external object store that hosts
// user images.
package media

import "context"

// Uploader pushes a local file to the media store and returns its public
// URL. An error means nothing was stored; the caller owns the local file
// and its cleanup either way.
type Uploader interface {
	Upload(ctx context.Context, localFilePath string) (string, error)
}
