package blob

import (
	"net/http"
	"strconv"

	"github.com/storagelite/storagelite/internal/executor"
	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/internal/transport"
	"github.com/storagelite/storagelite/pkg/errors"
	"github.com/storagelite/storagelite/pkg/outcome"
)

const (
	headerAppendPosition = "x-ms-blob-condition-appendpos"
	headerAppendOffset   = "x-ms-blob-append-offset"
)

// CreateAppendBlob creates an empty append blob, replacing any blob of that
// name.
func CreateAppendBlob(container, name string, opts PutOptions) executor.Operation[outcome.Void] {
	return executor.Func[outcome.Void]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			d := request.New("CreateAppendBlob", http.MethodPut, request.ServiceBlob, p).
				WithHeader(headerBlobType, AppendBlob)
			opts.apply(d)
			return d, nil
		},
		ParseFunc: void,
	}
}

// AppendBlock appends body to an append blob and returns the offset it was
// written at. When position is not negative the append only succeeds if the
// blob is exactly that long, so a replayed append cannot write twice.
func AppendBlock(container, name string, body *request.Body, position int64) executor.Operation[int64] {
	return executor.Func[int64]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			if body == nil {
				return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "append block needs a body")
			}
			d := request.New("AppendBlock", http.MethodPut, request.ServiceBlob, p).
				WithQuery("comp", "appendblock").
				WithBody(body)
			if position >= 0 {
				d.WithHeader(headerAppendPosition, strconv.FormatInt(position, 10))
			}
			return d, nil
		},
		ParseFunc: func(resp *transport.Response) (int64, error) {
			v := resp.Header.Get(headerAppendOffset)
			if v == "" {
				return -1, nil
			}
			return strconv.ParseInt(v, 10, 64)
		},
	}
}
