// Package blob builds blob service operations for the executor: containers,
// block, page and append blobs, copies and listings.
package blob

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/storagelite/storagelite/internal/executor"
	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/internal/transport"
	"github.com/storagelite/storagelite/pkg/errors"
	"github.com/storagelite/storagelite/pkg/outcome"
)

const (
	headerBlobType   = "x-ms-blob-type"
	headerCopyStatus = "x-ms-copy-status"
	headerCopySource = "x-ms-copy-source"
	headerCopyID     = "x-ms-copy-id"
	headerMetaPrefix = "x-ms-meta-"

	// Blob types as reported in x-ms-blob-type.
	BlockBlob  = "BlockBlob"
	PageBlob   = "PageBlob"
	AppendBlob = "AppendBlob"
)

// Properties are the system properties and metadata of a blob.
type Properties struct {
	ContentLength      int64
	ContentType        string
	ContentEncoding    string
	ContentLanguage    string
	ContentMD5         string
	ContentDisposition string
	CacheControl       string
	ETag               string
	LastModified       time.Time
	BlobType           string
	CopyStatus         string
	Metadata           map[string]string
}

// ContainerProperties are the properties of a container.
type ContainerProperties struct {
	ETag         string
	LastModified time.Time
	Metadata     map[string]string
}

// PutOptions are optional settings for blob creation and commit.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

func (o PutOptions) apply(d *request.Description) {
	if o.ContentType != "" {
		d.WithHeader("x-ms-blob-content-type", o.ContentType)
	}
	for k, v := range o.Metadata {
		d.WithHeader(headerMetaPrefix+k, v)
	}
}

func containerPath(container string) (string, error) {
	if container == "" {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig, "container name is required")
	}
	if strings.Contains(container, "/") {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid container name %q", container)
	}
	return "/" + container, nil
}

func blobPath(container, name string) (string, error) {
	p, err := containerPath(container)
	if err != nil {
		return "", err
	}
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig, "blob name is required")
	}
	return p + "/" + name, nil
}

func void(*transport.Response) (outcome.Void, error) {
	return outcome.Void{}, nil
}

// CreateContainer creates a container.
func CreateContainer(container string, metadata map[string]string) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := containerPath(container)
			if err != nil {
				return nil, err
			}
			d := request.New("CreateContainer", http.MethodPut, request.ServiceBlob, p).
				WithQuery("restype", "container")
			for k, v := range metadata {
				d.WithHeader(headerMetaPrefix+k, v)
			}
			return d, nil
		},
		ParseFunc: void,
	}
}

// DeleteContainer deletes a container and everything in it.
func DeleteContainer(container string) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := containerPath(container)
			if err != nil {
				return nil, err
			}
			return request.New("DeleteContainer", http.MethodDelete, request.ServiceBlob, p).
				WithQuery("restype", "container"), nil
		},
		ParseFunc: void,
	}
}

// GetContainerProperties reads container properties and metadata.
func GetContainerProperties(container string) executor.Operation[ContainerProperties] {
	return executor.Func[ContainerProperties]{
		BuildFunc: func() (*request.Description, error) {
			p, err := containerPath(container)
			if err != nil {
				return nil, err
			}
			return request.New("GetContainerProperties", http.MethodHead, request.ServiceBlob, p).
				WithQuery("restype", "container"), nil
		},
		ParseFunc: func(resp *transport.Response) (ContainerProperties, error) {
			return ContainerProperties{
				ETag:         resp.Header.Get(request.HeaderETag),
				LastModified: parseTime(resp.Header.Get(request.HeaderLastModified)),
				Metadata:     metadataFromHeader(resp.Header),
			}, nil
		},
	}
}

// PutBlob uploads a block blob in a single request.
func PutBlob(container, name string, body *request.Body, opts PutOptions) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			if body == nil {
				body = request.BytesBody(nil)
			}
			d := request.New("PutBlob", http.MethodPut, request.ServiceBlob, p).
				WithHeader(headerBlobType, BlockBlob).
				WithBody(body)
			opts.apply(d)
			return d, nil
		},
		ParseFunc: void,
	}
}

// BlockID is the block id used for chunk index i. Ids are fixed width so every
// block of a blob has the same id length.
func BlockID(i int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%08d", i)))
}

// PutBlock stages one block of a block blob.
func PutBlock(container, name, blockID string, body *request.Body) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			if blockID == "" {
				return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "block id is required")
			}
			return request.New("PutBlock", http.MethodPut, request.ServiceBlob, p).
				WithQuery("comp", "block").
				WithQuery("blockid", blockID).
				WithBody(body), nil
		},
		ParseFunc: void,
	}
}

type blockList struct {
	XMLName xml.Name `xml:"BlockList"`
	Latest  []string `xml:"Latest"`
}

// PutBlockList commits the staged blocks, in order, as the blob content. An
// empty list commits an empty blob.
func PutBlockList(container, name string, blockIDs []string, opts PutOptions) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			payload, err := xml.Marshal(blockList{Latest: blockIDs})
			if err != nil {
				return nil, errors.NewError(errors.ErrCodeInternalError, "encode block list").WithCause(err)
			}
			body := append([]byte(xml.Header), payload...)
			d := request.New("PutBlockList", http.MethodPut, request.ServiceBlob, p).
				WithQuery("comp", "blocklist").
				WithHeader(request.HeaderContentType, "application/xml").
				WithBody(request.BytesBody(body))
			opts.apply(d)
			return d, nil
		},
		ParseFunc: void,
	}
}

// Block is a block of a block blob.
type Block struct {
	ID   string `xml:"Name"`
	Size int64  `xml:"Size"`
}

// BlockList is the block list of a blob.
type BlockList struct {
	Committed   []Block
	Uncommitted []Block
}

type blockListResponse struct {
	XMLName     xml.Name `xml:"BlockList"`
	Committed   []Block  `xml:"CommittedBlocks>Block"`
	Uncommitted []Block  `xml:"UncommittedBlocks>Block"`
}

// GetBlockList reads the committed and staged blocks of a blob.
func GetBlockList(container, name string) executor.Operation[BlockList] {
	return executor.Func[BlockList]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			return request.New("GetBlockList", http.MethodGet, request.ServiceBlob, p).
				WithQuery("comp", "blocklist").
				WithQuery("blocklisttype", "all"), nil
		},
		ParseFunc: func(resp *transport.Response) (BlockList, error) {
			var env blockListResponse
			if err := xml.Unmarshal(bytes.TrimPrefix(resp.Body, []byte("\ufeff")), &env); err != nil {
				return BlockList{}, fmt.Errorf("decode block list: %w", err)
			}
			return BlockList{Committed: env.Committed, Uncommitted: env.Uncommitted}, nil
		},
	}
}

// GetBlobRequest describes a ranged read whose body goes to sink. A nil range
// reads the whole blob.
func GetBlobRequest(container, name string, rng *request.Range, sink *request.Sink) (*request.Description, error) {
	p, err := blobPath(container, name)
	if err != nil {
		return nil, err
	}
	d := request.New("GetBlob", http.MethodGet, request.ServiceBlob, p)
	if rng != nil {
		d.WithRange(rng)
	}
	if sink != nil {
		d.WithSink(sink)
	}
	return d, nil
}

// GetProperties reads blob properties and metadata.
func GetProperties(container, name string) executor.Operation[Properties] {
	return executor.Func[Properties]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			return request.New("GetBlobProperties", http.MethodHead, request.ServiceBlob, p), nil
		},
		ParseFunc: func(resp *transport.Response) (Properties, error) {
			return ParseProperties(resp.Header)
		},
	}
}

// ParseProperties reads blob properties from response headers.
func ParseProperties(h http.Header) (Properties, error) {
	props := Properties{
		ContentType:        h.Get(request.HeaderContentType),
		ContentEncoding:    h.Get("Content-Encoding"),
		ContentLanguage:    h.Get("Content-Language"),
		ContentMD5:         h.Get("Content-MD5"),
		ContentDisposition: h.Get("Content-Disposition"),
		CacheControl:       h.Get("Cache-Control"),
		ETag:               h.Get(request.HeaderETag),
		LastModified:       parseTime(h.Get(request.HeaderLastModified)),
		BlobType:           h.Get(headerBlobType),
		CopyStatus:         h.Get(headerCopyStatus),
		Metadata:           metadataFromHeader(h),
	}
	if v := h.Get(request.HeaderContentLength); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return props, fmt.Errorf("invalid Content-Length %q: %w", v, err)
		}
		props.ContentLength = n
	}
	return props, nil
}

// SetMetadata replaces the blob's metadata.
func SetMetadata(container, name string, metadata map[string]string) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			d := request.New("SetBlobMetadata", http.MethodPut, request.ServiceBlob, p).
				WithQuery("comp", "metadata")
			for k, v := range metadata {
				d.WithHeader(headerMetaPrefix+k, v)
			}
			return d, nil
		},
		ParseFunc: void,
	}
}

// DeleteBlob deletes a blob. With includeSnapshots its snapshots go too.
func DeleteBlob(container, name string, includeSnapshots bool) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			d := request.New("DeleteBlob", http.MethodDelete, request.ServiceBlob, p)
			if includeSnapshots {
				d.WithHeader("x-ms-delete-snapshots", "include")
			}
			return d, nil
		},
		ParseFunc: void,
	}
}

func metadataFromHeader(h http.Header) map[string]string {
	meta := make(map[string]string)
	for name, values := range h {
		lname := strings.ToLower(name)
		if strings.HasPrefix(lname, headerMetaPrefix) && len(values) > 0 {
			meta[strings.TrimPrefix(lname, headerMetaPrefix)] = values[0]
		}
	}
	return meta
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t
}
