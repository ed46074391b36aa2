package storage

import (
	"context"
	"io"
	"net/url"

	"github.com/storagelite/storagelite/internal/blob"
	"github.com/storagelite/storagelite/internal/dfs"
	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/pkg/errors"
	"github.com/storagelite/storagelite/pkg/outcome"
)

// Blob service.

// ListContainers returns one page of the account's containers. Pass the
// result's NextMarker back as opts.Marker for the next page.
func (c *Client) ListContainers(ctx context.Context, opts ListContainersOptions) (outcome.Outcome[ListContainersResult], error) {
	return Do(ctx, c, blob.ListContainers(opts))
}

func (c *Client) CreateContainer(ctx context.Context, container string, metadata map[string]string) (outcome.Outcome[Void], error) {
	return Do(ctx, c, blob.CreateContainer(container, metadata))
}

func (c *Client) DeleteContainer(ctx context.Context, container string) (outcome.Outcome[Void], error) {
	return Do(ctx, c, blob.DeleteContainer(container))
}

// SetContainerMetadata replaces the container's metadata.
func (c *Client) SetContainerMetadata(ctx context.Context, container string, metadata map[string]string) (outcome.Outcome[Void], error) {
	return Do(ctx, c, blob.SetContainerMetadata(container, metadata))
}

func (c *Client) GetContainerProperties(ctx context.Context, container string) (outcome.Outcome[ContainerProperties], error) {
	return Do(ctx, c, blob.GetContainerProperties(container))
}

// ContainerExists reports whether the container exists. A not-found response
// is a successful false.
func (c *Client) ContainerExists(ctx context.Context, container string) (outcome.Outcome[bool], error) {
	return exists(c, Submit(ctx, c, blob.GetContainerProperties(container)).Wait())
}

// PutBlob uploads data in a single request.
func (c *Client) PutBlob(ctx context.Context, container, name string, data []byte, opts PutOptions) (outcome.Outcome[Void], error) {
	return Do(ctx, c, blob.PutBlob(container, name, request.BytesBody(data), opts))
}

func (c *Client) GetBlobProperties(ctx context.Context, container, name string) (outcome.Outcome[BlobProperties], error) {
	return Do(ctx, c, blob.GetProperties(container, name))
}

// BlobExists reports whether the blob exists. A not-found response is a
// successful false.
func (c *Client) BlobExists(ctx context.Context, container, name string) (outcome.Outcome[bool], error) {
	return exists(c, Submit(ctx, c, blob.GetProperties(container, name)).Wait())
}

// SetBlobMetadata replaces the blob's user metadata.
func (c *Client) SetBlobMetadata(ctx context.Context, container, name string, metadata map[string]string) (outcome.Outcome[Void], error) {
	return Do(ctx, c, blob.SetMetadata(container, name, metadata))
}

func (c *Client) DeleteBlob(ctx context.Context, container, name string, includeSnapshots bool) (outcome.Outcome[Void], error) {
	return Do(ctx, c, blob.DeleteBlob(container, name, includeSnapshots))
}

// GetBlockList returns the committed and staged blocks of a block blob.
func (c *Client) GetBlockList(ctx context.Context, container, name string) (outcome.Outcome[BlockList], error) {
	return Do(ctx, c, blob.GetBlockList(container, name))
}

// StartCopy copies a blob within the account. The result reports whether the
// service finished the copy or left it pending.
func (c *Client) StartCopy(ctx context.Context, sourceContainer, sourceBlob, container, name string) (outcome.Outcome[CopyResult], error) {
	source, err := url.JoinPath(c.config.BlobEndpointURL(), sourceContainer, sourceBlob)
	if err != nil {
		return result(c, outcome.Failure[CopyResult](
			errors.NewConfigError(errors.ErrCodeInvalidConfig, "copy source %s/%s: %v", sourceContainer, sourceBlob, err)))
	}
	return Do(ctx, c, blob.StartCopy(source, container, name))
}

// CreatePageBlob creates a zero-filled page blob. size must be a multiple of 512.
func (c *Client) CreatePageBlob(ctx context.Context, container, name string, size int64, opts PutOptions) (outcome.Outcome[Void], error) {
	return Do(ctx, c, blob.CreatePageBlob(container, name, size, opts))
}

// PutPageFromStream writes length bytes from r at offset. Both must be
// multiples of 512. The attempt is retried only when r implements io.Seeker.
func (c *Client) PutPageFromStream(ctx context.Context, container, name string, offset int64, r io.Reader, length int64) (outcome.Outcome[Void], error) {
	return Do(ctx, c, blob.PutPage(container, name, offset, request.StreamBody(r, length)))
}

// ClearPage zeroes the pages in [offset, offset+length).
func (c *Client) ClearPage(ctx context.Context, container, name string, offset, length int64) (outcome.Outcome[Void], error) {
	return Do(ctx, c, blob.ClearPage(container, name, offset, length))
}

// GetPageRanges lists the written ranges of a page blob within [offset,
// offset+length). A length of 0 lists to the end.
func (c *Client) GetPageRanges(ctx context.Context, container, name string, offset, length int64) (outcome.Outcome[[]PageRange], error) {
	return Do(ctx, c, blob.GetPageRanges(container, name, offset, length))
}

// CreateAppendBlob creates an empty append blob.
func (c *Client) CreateAppendBlob(ctx context.Context, container, name string, opts PutOptions) (outcome.Outcome[Void], error) {
	return Do(ctx, c, blob.CreateAppendBlob(container, name, opts))
}

// AppendBlockFromStream appends length bytes from r to an append blob and
// returns the offset they were written at.
func (c *Client) AppendBlockFromStream(ctx context.Context, container, name string, r io.Reader, length int64) (outcome.Outcome[int64], error) {
	return Do(ctx, c, blob.AppendBlock(container, name, request.StreamBody(r, length), -1))
}

// ListBlobs returns one page of the container listing. Pass the result's
// NextMarker back as opts.Marker for the next page.
func (c *Client) ListBlobs(ctx context.Context, container string, opts ListBlobsOptions) (outcome.Outcome[ListBlobsResult], error) {
	return Do(ctx, c, blob.ListBlobs(container, opts))
}

// Filesystem service.

func (c *Client) CreateFilesystem(ctx context.Context, filesystem string, properties map[string]string) (outcome.Outcome[Void], error) {
	return Do(ctx, c, dfs.CreateFilesystem(filesystem, properties))
}

func (c *Client) DeleteFilesystem(ctx context.Context, filesystem string) (outcome.Outcome[Void], error) {
	return Do(ctx, c, dfs.DeleteFilesystem(filesystem))
}

func (c *Client) CreateDirectory(ctx context.Context, filesystem, path string, properties map[string]string) (outcome.Outcome[Void], error) {
	return Do(ctx, c, dfs.CreatePath(filesystem, path, dfs.ResourceDirectory, properties))
}

// DeletePath removes a file or directory. Non-empty directories need recursive.
func (c *Client) DeletePath(ctx context.Context, filesystem, path string, recursive bool) (outcome.Outcome[Void], error) {
	return Do(ctx, c, dfs.DeletePath(filesystem, path, recursive))
}

func (c *Client) RenamePath(ctx context.Context, filesystem, source, destination string) (outcome.Outcome[Void], error) {
	return Do(ctx, c, dfs.RenamePath(filesystem, source, destination))
}

func (c *Client) GetPathProperties(ctx context.Context, filesystem, path string) (outcome.Outcome[PathProperties], error) {
	return Do(ctx, c, dfs.GetPathProperties(filesystem, path))
}

// PathExists reports whether the file or directory exists.
func (c *Client) PathExists(ctx context.Context, filesystem, path string) (outcome.Outcome[bool], error) {
	return exists(c, Submit(ctx, c, dfs.GetPathProperties(filesystem, path)).Wait())
}

// ListPaths returns one page of a directory listing. Pass the result's
// Continuation back in opts for the next page.
func (c *Client) ListPaths(ctx context.Context, filesystem string, opts ListPathsOptions) (outcome.Outcome[ListPathsResult], error) {
	return Do(ctx, c, dfs.ListPaths(filesystem, opts))
}
