package elasticsearch

import (
	"errors"
	"fmt"
	"net/http"
)

// ResponseError is a non-2xx answer from Elasticsearch.
type ResponseError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Op, e.StatusCode, e.Body)
}

// IsRetryable reports whether err is worth retrying: transport failures,
// throttling and server-side errors are; client errors such as mapping
// conflicts are not.
func IsRetryable(err error) bool {
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		return err != nil
	}
	return respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode >= http.StatusInternalServerError
}
