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
	"github.com/storagelite/storagelite/pkg/errors"
	"github.com/storagelite/storagelite/pkg/outcome"
)

// PageSize is the page blob write granularity. Page offsets and lengths must
// be multiples of it.
const PageSize = 512

const (
	headerBlobContentLength = "x-ms-blob-content-length"
	headerPageWrite         = "x-ms-page-write"
)

// PageRange is a written range of a page blob with an inclusive end.
type PageRange struct {
	Start int64 `xml:"Start"`
	End   int64 `xml:"End"`
}

// CheckPageAligned reports a configuration error unless offset and length are
// whole pages.
func CheckPageAligned(offset, length int64) error {
	if offset%PageSize != 0 || length%PageSize != 0 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			"page range offset=%d length=%d is not a multiple of %d bytes", offset, length, PageSize)
	}
	return nil
}

// CreatePageBlob creates a zero-filled page blob of size bytes.
func CreatePageBlob(container, name string, size int64, opts PutOptions) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			if size < 0 {
				return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "page blob size must be non-negative, got %d", size)
			}
			if err := CheckPageAligned(0, size); err != nil {
				return nil, err
			}
			d := request.New("CreatePageBlob", http.MethodPut, request.ServiceBlob, p).
				WithHeader(headerBlobType, PageBlob).
				WithHeader(headerBlobContentLength, strconv.FormatInt(size, 10))
			opts.apply(d)
			return d, nil
		},
		ParseFunc: void,
	}
}

func putPage(operation, container, name, write string, offset, length int64, body *request.Body) (*request.Description, error) {
	p, err := blobPath(container, name)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "page range must not be empty")
	}
	if err := CheckPageAligned(offset, length); err != nil {
		return nil, err
	}
	d := request.New(operation, http.MethodPut, request.ServiceBlob, p).
		WithQuery("comp", "page").
		WithHeader(headerPageWrite, write).
		WithRange(request.NewRange(offset, length))
	if body != nil {
		d.WithBody(body)
	}
	return d, nil
}

// PutPage writes body to the pages starting at offset. The body length sets
// the range and must be whole pages.
func PutPage(container, name string, offset int64, body *request.Body) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			if body == nil || body.Len() < 0 {
				return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "put page needs a body of known length")
			}
			return putPage("PutPage", container, name, "update", offset, body.Len(), body)
		},
		ParseFunc: void,
	}
}

// ClearPage releases the pages in [offset, offset+length); they read as zeros.
func ClearPage(container, name string, offset, length int64) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			return putPage("ClearPage", container, name, "clear", offset, length, nil)
		},
		ParseFunc: void,
	}
}

type pageList struct {
	XMLName xml.Name    `xml:"PageList"`
	Ranges  []PageRange `xml:"PageRange"`
}

// GetPageRanges lists the written ranges that intersect [offset,
// offset+length). A length of 0 lists to the end of the blob.
func GetPageRanges(container, name string, offset, length int64) executor.Operation[[]PageRange] {
	return executor.Func[[]PageRange]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			d := request.New("GetPageRanges", http.MethodGet, request.ServiceBlob, p).
				WithQuery("comp", "pagelist")
			if offset > 0 || length > 0 {
				d.WithRange(request.NewRange(offset, length))
			}
			return d, nil
		},
		ParseFunc: func(resp *transport.Response) ([]PageRange, error) {
			var env pageList
			if err := xml.Unmarshal(bytes.TrimPrefix(resp.Body, []byte("\ufeff")), &env); err != nil {
				return nil, fmt.Errorf("decode page list: %w", err)
			}
			return env.Ranges, nil
		},
	}
}
