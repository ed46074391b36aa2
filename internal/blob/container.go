package blob

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"

	"github.com/storagelite/storagelite/internal/executor"
	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/internal/transport"
	"github.com/storagelite/storagelite/pkg/outcome"
)

// ListContainersOptions selects one page of the account's containers.
type ListContainersOptions struct {
	Prefix          string
	Marker          string
	MaxResults      int
	IncludeMetadata bool
}

// ContainerItem is one container in a listing.
type ContainerItem struct {
	Name string
	ContainerProperties
}

// ContainerListResult is one page of containers. NextMarker is empty on the
// last page.
type ContainerListResult struct {
	Containers []ContainerItem
	NextMarker string
}

type containerEnumeration struct {
	XMLName    xml.Name `xml:"EnumerationResults"`
	Containers struct {
		Container []struct {
			Name       string `xml:"Name"`
			Properties struct {
				LastModified string `xml:"Last-Modified"`
				Etag         string `xml:"Etag"`
			} `xml:"Properties"`
			Metadata struct {
				Items []struct {
					XMLName xml.Name
					Value   string `xml:",chardata"`
				} `xml:",any"`
			} `xml:"Metadata"`
		} `xml:"Container"`
	} `xml:"Containers"`
	NextMarker string `xml:"NextMarker"`
}

// ListContainers lists one page of the containers in the account.
func ListContainers(opts ListContainersOptions) executor.Operation[ContainerListResult] {
	return executor.Func[ContainerListResult]{
		BuildFunc: func() (*request.Description, error) {
			d := request.New("ListContainers", http.MethodGet, request.ServiceBlob, "/").
				WithQuery("comp", "list")
			if opts.Prefix != "" {
				d.WithQuery("prefix", opts.Prefix)
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
		ParseFunc: func(resp *transport.Response) (ContainerListResult, error) {
			return ParseContainerList(resp.Body)
		},
	}
}

// ParseContainerList decodes a container EnumerationResults document.
func ParseContainerList(body []byte) (ContainerListResult, error) {
	var env containerEnumeration
	if err := xml.Unmarshal(bytes.TrimPrefix(body, []byte("\ufeff")), &env); err != nil {
		return ContainerListResult{}, fmt.Errorf("decode container listing: %w", err)
	}

	result := ContainerListResult{NextMarker: env.NextMarker}
	for _, c := range env.Containers.Container {
		item := ContainerItem{Name: c.Name}
		item.ETag = c.Properties.Etag
		item.LastModified = parseTime(c.Properties.LastModified)
		if len(c.Metadata.Items) > 0 {
			item.Metadata = make(map[string]string, len(c.Metadata.Items))
			for _, m := range c.Metadata.Items {
				item.Metadata[m.XMLName.Local] = m.Value
			}
		}
		result.Containers = append(result.Containers, item)
	}
	return result, nil
}

// SetContainerMetadata replaces the container's metadata.
func SetContainerMetadata(container string, metadata map[string]string) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := containerPath(container)
			if err != nil {
				return nil, err
			}
			d := request.New("SetContainerMetadata", http.MethodPut, request.ServiceBlob, p).
				WithQuery("restype", "container").
				WithQuery("comp", "metadata")
			for k, v := range metadata {
				d.WithHeader(headerMetaPrefix+k, v)
			}
			return d, nil
		},
		ParseFunc: void,
	}
}
