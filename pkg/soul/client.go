package soul

import (
	"context"
	"io"
	"time"

	"github.com/slskd/slskgo/pkg/types"
)

// DisconnectCause classifies why the server link dropped. The watchdog
// reconnects only on causes it does not recognise as deliberate or
// fatal.
type DisconnectCause string

const (
	DisconnectUnknown       DisconnectCause = "unknown"
	DisconnectShutdown      DisconnectCause = "shutting-down"
	DisconnectIntentional   DisconnectCause = "intentional-disconnect"
	DisconnectLoginRejected DisconnectCause = "login-rejected"
	DisconnectKicked        DisconnectCause = "kicked-from-server"
)

// Fatal reports whether the cause parks the reconnect loop for good.
func (c DisconnectCause) Fatal() bool {
	return c == DisconnectLoginRejected || c == DisconnectKicked
}

// Deliberate reports whether the disconnect was requested by this
// process.
func (c DisconnectCause) Deliberate() bool {
	return c == DisconnectShutdown || c == DisconnectIntentional
}

// ConnectionParams carries everything a Connect needs.
type ConnectionParams struct {
	Address     string
	Username    string
	Password    string
	Description string
	ListenPort  int
	Timeout     time.Duration
	BufferSize  int
}

// ScopeType selects which part of the network a search queries.
type ScopeType string

const (
	ScopeNetwork  ScopeType = "network"
	ScopeRoom     ScopeType = "room"
	ScopeUser     ScopeType = "user"
	ScopeWishlist ScopeType = "wishlist"
)

// Scope is a search scope: the type plus its subjects (room names or
// usernames) where the type takes any.
type Scope struct {
	Type     ScopeType `json:"type"`
	Subjects []string  `json:"subjects,omitempty"`
}

// NetworkScope is the default scope: the whole network.
func NetworkScope() Scope {
	return Scope{Type: ScopeNetwork}
}

// SearchRequest parameterises one outgoing search.
type SearchRequest struct {
	Token                  int
	Query                  string
	Scope                  Scope
	ResponseLimit          int
	FileLimit              int
	Timeout                time.Duration
	FilterResponses        bool
	MinimumPeerUploadSpeed int
}

// UserStats is the server's view of one user, used for leecher
// classification.
type UserStats struct {
	Files       int
	Directories int
	UploadSpeed int
}

// Handlers are the callbacks a Client invokes to answer remote peers.
// All of them must be fast and non-blocking; they run on the client's
// read loop.
type Handlers struct {
	// SearchRequested answers an incoming search. A nil response means
	// no answer is sent.
	SearchRequested func(username string, token int, query string) *types.SearchResponse

	// BrowseRequested answers a browse of our shares.
	BrowseRequested func(username string) ([]types.Directory, error)

	// DirectoryRequested answers a single-directory listing.
	DirectoryRequested func(username string, directory string) (types.Directory, error)

	// EnqueueRequested is invoked when a peer asks to download a file.
	// Returning an error rejects the request.
	EnqueueRequested func(username, filename string) error
}

// Client is the peer-protocol collaborator. The daemon never speaks
// the Soulseek wire format itself; it drives a Client and reacts to
// the events the Client publishes through an Adapter.
type Client interface {
	// Connect establishes the server session and logs in. It returns
	// once the session is usable or with the reason it is not.
	Connect(ctx context.Context, params ConnectionParams) error

	// Disconnect drops the server session with the given cause. The
	// client publishes a DisconnectedEvent carrying the same cause.
	Disconnect(cause DisconnectCause) error

	// Connected reports whether a server session is live.
	Connected() bool

	// NextToken returns a fresh peer-protocol token.
	NextToken() int

	// Search runs an outgoing search until a terminal condition and
	// returns the terminal state. sink is invoked for each response as
	// it arrives. Cancelling ctx ends the search.
	Search(ctx context.Context, req SearchRequest, sink func(types.SearchResponse)) (types.SearchState, error)

	// Upload pushes size bytes from source to username, who previously
	// enqueued filename.
	Upload(ctx context.Context, username, filename string, size int64, source io.Reader) error

	// Stats fetches the server's statistics for a user.
	Stats(ctx context.Context, username string) (UserStats, error)

	// Apply reconfigures the live session from a patch. It reports
	// whether the changes need a reconnect to fully take effect.
	Apply(patch types.ConnectionPatch) (pendingReconnect bool, err error)

	// SetHandlers installs the callbacks for remote peer requests.
	// Must be called before Connect.
	SetHandlers(h Handlers)
}
