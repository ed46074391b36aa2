package blob

import (
	"net/http"
	"net/url"

	"github.com/storagelite/storagelite/internal/executor"
	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/internal/transport"
	"github.com/storagelite/storagelite/pkg/errors"
)

// CopyResult reports a started copy. Status is "success" when the service
// finished the copy synchronously and "pending" otherwise.
type CopyResult struct {
	CopyID string
	Status string
	ETag   string
}

// StartCopy copies the blob at sourceURL to container/name. The source must
// be readable with the destination account's credentials or carry its own
// SAS token.
func StartCopy(sourceURL, container, name string) executor.Operation[CopyResult] {
	return executor.Func[CopyResult]{
		BuildFunc: func() (*request.Description, error) {
			p, err := blobPath(container, name)
			if err != nil {
				return nil, err
			}
			u, err := url.Parse(sourceURL)
			if err != nil || !u.IsAbs() {
				return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid copy source %q", sourceURL)
			}
			return request.New("StartCopy", http.MethodPut, request.ServiceBlob, p).
				WithHeader(headerCopySource, u.String()), nil
		},
		ParseFunc: func(resp *transport.Response) (CopyResult, error) {
			return CopyResult{
				CopyID: resp.Header.Get(headerCopyID),
				Status: resp.Header.Get(headerCopyStatus),
				ETag:   resp.Header.Get(request.HeaderETag),
			}, nil
		},
	}
}
