// Package dfs builds hierarchical filesystem operations for the executor:
// filesystems, directories, files and the append/flush upload protocol.
package dfs

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/storagelite/storagelite/internal/executor"
	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/internal/transport"
	"github.com/storagelite/storagelite/pkg/errors"
	"github.com/storagelite/storagelite/pkg/outcome"
	"github.com/storagelite/storagelite/pkg/utils"
)

const (
	headerProperties   = "x-ms-properties"
	headerResourceType = "x-ms-resource-type"
	headerRenameSource = "x-ms-rename-source"
	headerContinuation = "x-ms-continuation"
)

// Resource is the kind of path to create.
type Resource string

const (
	ResourceFile      Resource = "file"
	ResourceDirectory Resource = "directory"
)

// PathProperties describe a file or directory.
type PathProperties struct {
	ResourceType  Resource
	ContentLength int64
	ContentType   string
	ETag          string
	LastModified  time.Time
	Properties    map[string]string
}

// IsDirectory reports whether the path is a directory.
func (p PathProperties) IsDirectory() bool {
	return p.ResourceType == ResourceDirectory
}

// FilesystemProperties describe a filesystem.
type FilesystemProperties struct {
	ETag         string
	LastModified time.Time
	Properties   map[string]string
}

func filesystemPath(fs string) (string, error) {
	if fs == "" {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig, "filesystem name is required")
	}
	if strings.Contains(fs, "/") {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid filesystem name %q", fs)
	}
	return "/" + fs, nil
}

func pathOf(fs, path string) (string, error) {
	p, err := filesystemPath(fs)
	if err != nil {
		return "", err
	}
	if err := utils.ValidatePath(path); err != nil {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig, "%v", err)
	}
	return p + "/" + strings.Trim(path, "/"), nil
}

func void(*transport.Response) (outcome.Void, error) {
	return outcome.Void{}, nil
}

// EncodeProperties formats user properties as the x-ms-properties header:
// comma separated name=base64(value) pairs, sorted by name.
func EncodeProperties(props map[string]string) string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+base64.StdEncoding.EncodeToString([]byte(props[name])))
	}
	return strings.Join(parts, ",")
}

// DecodeProperties parses an x-ms-properties header.
func DecodeProperties(v string) (map[string]string, error) {
	props := make(map[string]string)
	if v == "" {
		return props, nil
	}
	for _, pair := range strings.Split(v, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed property %q", pair)
		}
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		props[name] = string(decoded)
	}
	return props, nil
}

// CreateFilesystem creates a filesystem.
func CreateFilesystem(fs string, props map[string]string) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := filesystemPath(fs)
			if err != nil {
				return nil, err
			}
			d := request.New("CreateFilesystem", http.MethodPut, request.ServiceDFS, p).
				WithQuery("resource", "filesystem")
			if len(props) > 0 {
				d.WithHeader(headerProperties, EncodeProperties(props))
			}
			return d, nil
		},
		ParseFunc: void,
	}
}

// DeleteFilesystem deletes a filesystem.
func DeleteFilesystem(fs string) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := filesystemPath(fs)
			if err != nil {
				return nil, err
			}
			return request.New("DeleteFilesystem", http.MethodDelete, request.ServiceDFS, p).
				WithQuery("resource", "filesystem"), nil
		},
		ParseFunc: void,
	}
}

// GetFilesystemProperties reads filesystem properties.
func GetFilesystemProperties(fs string) executor.Operation[FilesystemProperties] {
	return executor.Func[FilesystemProperties]{
		BuildFunc: func() (*request.Description, error) {
			p, err := filesystemPath(fs)
			if err != nil {
				return nil, err
			}
			return request.New("GetFilesystemProperties", http.MethodHead, request.ServiceDFS, p).
				WithQuery("resource", "filesystem"), nil
		},
		ParseFunc: func(resp *transport.Response) (FilesystemProperties, error) {
			props, err := DecodeProperties(resp.Header.Get(headerProperties))
			if err != nil {
				return FilesystemProperties{}, err
			}
			return FilesystemProperties{
				ETag:         resp.Header.Get(request.HeaderETag),
				LastModified: parseTime(resp.Header.Get(request.HeaderLastModified)),
				Properties:   props,
			}, nil
		},
	}
}

// CreatePath creates a file or directory, replacing an existing file.
func CreatePath(fs, path string, resource Resource, props map[string]string) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := pathOf(fs, path)
			if err != nil {
				return nil, err
			}
			if resource != ResourceFile && resource != ResourceDirectory {
				return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "unknown resource type %q", resource)
			}
			op := "CreateFile"
			if resource == ResourceDirectory {
				op = "CreateDirectory"
			}
			d := request.New(op, http.MethodPut, request.ServiceDFS, p).
				WithQuery("resource", string(resource))
			if len(props) > 0 {
				d.WithHeader(headerProperties, EncodeProperties(props))
			}
			return d, nil
		},
		ParseFunc: void,
	}
}

// Append uploads data to be written at position. Data is not visible until a
// flush covers it.
func Append(fs, path string, position int64, body *request.Body) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := pathOf(fs, path)
			if err != nil {
				return nil, err
			}
			if position < 0 {
				return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid append position %d", position)
			}
			return request.New("AppendData", http.MethodPatch, request.ServiceDFS, p).
				WithQuery("action", "append").
				WithQuery("position", strconv.FormatInt(position, 10)).
				WithBody(body), nil
		},
		ParseFunc: void,
	}
}

// Flush commits appended data; position is the final file length.
func Flush(fs, path string, position int64) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := pathOf(fs, path)
			if err != nil {
				return nil, err
			}
			if position < 0 {
				return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid flush position %d", position)
			}
			return request.New("FlushData", http.MethodPatch, request.ServiceDFS, p).
				WithQuery("action", "flush").
				WithQuery("position", strconv.FormatInt(position, 10)), nil
		},
		ParseFunc: void,
	}
}

// DeletePath deletes a file or directory. Non-empty directories need recursive.
func DeletePath(fs, path string, recursive bool) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := pathOf(fs, path)
			if err != nil {
				return nil, err
			}
			return request.New("DeletePath", http.MethodDelete, request.ServiceDFS, p).
				WithQuery("recursive", strconv.FormatBool(recursive)), nil
		},
		ParseFunc: void,
	}
}

// RenamePath moves source to destination within the filesystem.
func RenamePath(fs, source, destination string) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			src, err := pathOf(fs, source)
			if err != nil {
				return nil, err
			}
			dst, err := pathOf(fs, destination)
			if err != nil {
				return nil, err
			}
			return request.New("RenamePath", http.MethodPut, request.ServiceDFS, dst).
				WithQuery("mode", "legacy").
				WithHeader(headerRenameSource, src), nil
		},
		ParseFunc: void,
	}
}

// GetPathProperties reads the properties of a file or directory.
func GetPathProperties(fs, path string) executor.Operation[PathProperties] {
	return executor.Func[PathProperties]{
		BuildFunc: func() (*request.Description, error) {
			p, err := pathOf(fs, path)
			if err != nil {
				return nil, err
			}
			return request.New("GetPathProperties", http.MethodHead, request.ServiceDFS, p), nil
		},
		ParseFunc: func(resp *transport.Response) (PathProperties, error) {
			return ParsePathProperties(resp.Header)
		},
	}
}

// ParsePathProperties reads path properties from response headers.
func ParsePathProperties(h http.Header) (PathProperties, error) {
	props, err := DecodeProperties(h.Get(headerProperties))
	if err != nil {
		return PathProperties{}, err
	}
	pp := PathProperties{
		ResourceType: Resource(h.Get(headerResourceType)),
		ContentType:  h.Get(request.HeaderContentType),
		ETag:         h.Get(request.HeaderETag),
		LastModified: parseTime(h.Get(request.HeaderLastModified)),
		Properties:   props,
	}
	if v := h.Get(request.HeaderContentLength); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return pp, fmt.Errorf("invalid Content-Length %q: %w", v, err)
		}
		pp.ContentLength = n
	}
	return pp, nil
}

// ReadRequest describes a ranged file read whose body goes to sink.
func ReadRequest(fs, path string, rng *request.Range, sink *request.Sink) (*request.Description, error) {
	p, err := pathOf(fs, path)
	if err != nil {
		return nil, err
	}
	d := request.New("ReadFile", http.MethodGet, request.ServiceDFS, p)
	if rng != nil {
		d.WithRange(rng)
	}
	if sink != nil {
		d.WithSink(sink)
	}
	return d, nil
}

// ListOptions selects one page of a path listing.
type ListOptions struct {
	Directory    string
	Recursive    bool
	Continuation string
	MaxResults   int
}

// PathItem is one entry of a listing.
type PathItem struct {
	Name          string
	IsDirectory   bool
	ContentLength int64
	ETag          string
	LastModified  time.Time
}

// ListResult is one page of a listing. Continuation is empty on the last page.
type ListResult struct {
	Paths        []PathItem
	Continuation string
}

type pathList struct {
	Paths []struct {
		Name          string `json:"name"`
		IsDirectory   string `json:"isDirectory"`
		ContentLength string `json:"contentLength"`
		ETag          string `json:"etag"`
		LastModified  string `json:"lastModified"`
	} `json:"paths"`
}

// ListPaths lists one page of paths in a filesystem.
func ListPaths(fs string, opts ListOptions) executor.Operation[ListResult] {
	return executor.Func[ListResult]{
		BuildFunc: func() (*request.Description, error) {
			p, err := filesystemPath(fs)
			if err != nil {
				return nil, err
			}
			d := request.New("ListPaths", http.MethodGet, request.ServiceDFS, p).
				WithQuery("resource", "filesystem").
				WithQuery("recursive", strconv.FormatBool(opts.Recursive))
			if dir := strings.Trim(opts.Directory, "/"); dir != "" {
				d.WithQuery("directory", dir)
			}
			if opts.Continuation != "" {
				d.WithQuery("continuation", opts.Continuation)
			}
			if opts.MaxResults > 0 {
				d.WithQuery("maxResults", strconv.Itoa(opts.MaxResults))
			}
			return d, nil
		},
		ParseFunc: func(resp *transport.Response) (ListResult, error) {
			result, err := ParseListResult(resp.Body)
			if err != nil {
				return result, err
			}
			result.Continuation = resp.Header.Get(headerContinuation)
			return result, nil
		},
	}
}

// ParseListResult decodes a path listing body.
func ParseListResult(body []byte) (ListResult, error) {
	var env pathList
	body = bytes.TrimSpace(body)
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return ListResult{}, fmt.Errorf("decode path listing: %w", err)
		}
	}

	var result ListResult
	for _, p := range env.Paths {
		item := PathItem{
			Name:         p.Name,
			IsDirectory:  p.IsDirectory == "true",
			ETag:         p.ETag,
			LastModified: parseTime(p.LastModified),
		}
		if p.ContentLength != "" {
			n, err := strconv.ParseInt(p.ContentLength, 10, 64)
			if err != nil {
				return ListResult{}, fmt.Errorf("path %q: invalid contentLength %q", p.Name, p.ContentLength)
			}
			item.ContentLength = n
		}
		result.Paths = append(result.Paths, item)
	}
	return result, nil
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
