package blob

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/storagelite/storagelite/internal/executor"
	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/internal/transport"
)

// ListOptions selects one page of a blob listing.
type ListOptions struct {
	Prefix    string
	Delimiter string
	// Marker is the continuation token from a previous page.
	Marker          string
	MaxResults      int
	IncludeMetadata bool
}

// Item is one blob in a listing.
type Item struct {
	Name          string
	ContentLength int64
	ContentType   string
	ETag          string
	LastModified  time.Time
	BlobType      string
	Metadata      map[string]string
}

// ListResult is one page of a listing. NextMarker is empty on the last page.
type ListResult struct {
	Items      []Item
	Prefixes   []string
	NextMarker string
}

type enumerationResults struct {
	XMLName       xml.Name `xml:"EnumerationResults"`
	ContainerName string   `xml:"ContainerName,attr"`
	Prefix        string   `xml:"Prefix"`
	Marker        string   `xml:"Marker"`
	MaxResults    int      `xml:"MaxResults"`
	Delimiter     string   `xml:"Delimiter"`
	Blobs         struct {
		Blob       []xmlBlob `xml:"Blob"`
		BlobPrefix []struct {
			Name string `xml:"Name"`
		} `xml:"BlobPrefix"`
	} `xml:"Blobs"`
	NextMarker string `xml:"NextMarker"`
}

type xmlBlob struct {
	Name       string `xml:"Name"`
	Properties struct {
		LastModified  string `xml:"Last-Modified"`
		Etag          string `xml:"Etag"`
		ContentLength string `xml:"Content-Length"`
		ContentType   string `xml:"Content-Type"`
		BlobType      string `xml:"BlobType"`
	} `xml:"Properties"`
	Metadata struct {
		Items []struct {
			XMLName xml.Name
			Value   string `xml:",chardata"`
		} `xml:",any"`
	} `xml:"Metadata"`
}

// ListBlobs lists one page of the blobs in a container.
func ListBlobs(container string, opts ListOptions) executor.Operation[ListResult] {
	return executor.Func[ListResult]{
		BuildFunc: func() (*request.Description, error) {
			p, err := containerPath(container)
			if err != nil {
				return nil, err
			}
			d := request.New("ListBlobs", http.MethodGet, request.ServiceBlob, p).
				WithQuery("restype", "container").
				WithQuery("comp", "list")
			if opts.Prefix != "" {
				d.WithQuery("prefix", opts.Prefix)
			}
			if opts.Delimiter != "" {
				d.WithQuery("delimiter", opts.Delimiter)
			}
			if opts.Marker != "" {
				d.WithQuery("marker", opts.Marker)
			}
			if opts.MaxResults > 0 {
				d.WithQuery("maxresults", strconv.Itoa(opts.MaxResults))
			}
			if opts.IncludeMetadata {
				d.WithQuery("include", "metadata")
			}
			return d, nil
		},
		ParseFunc: func(resp *transport.Response) (ListResult, error) {
			return ParseListResult(resp.Body)
		},
	}
}

// ParseListResult decodes an EnumerationResults document.
func ParseListResult(body []byte) (ListResult, error) {
	var env enumerationResults
	if err := xml.Unmarshal(bytes.TrimPrefix(body, []byte("\ufeff")), &env); err != nil {
		return ListResult{}, fmt.Errorf("decode blob listing: %w", err)
	}

	result := ListResult{NextMarker: env.NextMarker}
	for _, b := range env.Blobs.Blob {
		item := Item{
			Name:         b.Name,
			ContentType:  b.Properties.ContentType,
			ETag:         b.Properties.Etag,
			LastModified: parseTime(b.Properties.LastModified),
			BlobType:     b.Properties.BlobType,
		}
		if b.Properties.ContentLength != "" {
			n, err := strconv.ParseInt(b.Properties.ContentLength, 10, 64)
			if err != nil {
				return ListResult{}, fmt.Errorf("blob %q: invalid Content-Length %q", b.Name, b.Properties.ContentLength)
			}
			item.ContentLength = n
		}
		if len(b.Metadata.Items) > 0 {
			item.Metadata = make(map[string]string, len(b.Metadata.Items))
			for _, m := range b.Metadata.Items {
				item.Metadata[m.XMLName.Local] = m.Value
			}
		}
		result.Items = append(result.Items, item)
	}
	for _, p := range env.Blobs.BlobPrefix {
		result.Prefixes = append(result.Prefixes, p.Name)
	}
	return result, nil
}
