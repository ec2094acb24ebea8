package preview

import "context"

// Fetcher retrieves raw bytes for a URL under a size cap and timeout.
// Implementations return *Error values tagged KindTransport,
// KindLengthHintExceeded, KindLengthExceeded, KindTeapot or KindInvalidRequest.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (Document, error)
}
