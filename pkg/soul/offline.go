package soul

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/slskd/slskgo/pkg/types"
)

// OfflineClient is the Client used when no peer-protocol library is
// linked in. Connect fails with errors.ErrUnsupported, which the
// watchdog treats as a permanent condition rather than retrying. The
// token counter and handler registration still work so the rest of
// the daemon wires up normally.
type OfflineClient struct {
	token atomic.Int64
}

// NewOfflineClient returns a client with no network behind it.
func NewOfflineClient() *OfflineClient {
	return &OfflineClient{}
}

func (c *OfflineClient) Connect(ctx context.Context, params ConnectionParams) error {
	return fmt.Errorf("peer network client is not linked into this build: %w", errors.ErrUnsupported)
}

func (c *OfflineClient) Disconnect(cause DisconnectCause) error {
	return nil
}

func (c *OfflineClient) Connected() bool {
	return false
}

func (c *OfflineClient) NextToken() int {
	return int(c.token.Add(1))
}

func (c *OfflineClient) Search(ctx context.Context, req SearchRequest, sink func(types.SearchResponse)) (types.SearchState, error) {
	return types.SearchCompletedErrored, fmt.Errorf("peer network client is not linked into this build: %w", errors.ErrUnsupported)
}

func (c *OfflineClient) Upload(ctx context.Context, username, filename string, size int64, source io.Reader) error {
	return fmt.Errorf("peer network client is not linked into this build: %w", errors.ErrUnsupported)
}

func (c *OfflineClient) Stats(ctx context.Context, username string) (UserStats, error) {
	return UserStats{}, fmt.Errorf("peer network client is not linked into this build: %w", errors.ErrUnsupported)
}

func (c *OfflineClient) Apply(patch types.ConnectionPatch) (bool, error) {
	return false, nil
}

func (c *OfflineClient) SetHandlers(h Handlers) {}
