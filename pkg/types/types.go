package types

import (
	"strings"
	"time"
)

// Upload represents a single queued or running upload to a remote user.
// It is owned by the scheduler for the duration of its queue residence.
type Upload struct {
	ID         string
	Username   string
	Filename   string
	EnqueuedAt time.Time

	// ReadyAt is set when the scheduler releases the upload.
	ReadyAt *time.Time

	// StartedAt is set when the transfer executor begins moving bytes.
	StartedAt *time.Time

	// Group is the name of the group the upload was released under.
	// Empty until release; accounting uses this group, not the user's
	// group at enqueue time.
	Group string
}

// State reports which lifecycle stage the upload is in.
func (u *Upload) State() UploadState {
	switch {
	case u.StartedAt != nil:
		return UploadStarted
	case u.ReadyAt != nil:
		return UploadReady
	default:
		return UploadQueued
	}
}

// UploadState is the observable stage of a queued upload.
type UploadState string

const (
	UploadQueued  UploadState = "queued"
	UploadReady   UploadState = "ready"
	UploadStarted UploadState = "started"
)

// QueueStrategy selects how a group orders its candidate uploads.
type QueueStrategy string

const (
	// StrategyFIFO releases strictly in enqueue order.
	StrategyFIFO QueueStrategy = "FirstInFirstOut"

	// StrategyRoundRobin rotates across users, choosing the user whose
	// turn is least recent.
	StrategyRoundRobin QueueStrategy = "RoundRobin"
)

// Built-in upload group names. These always exist; user-defined groups
// are appended after them.
const (
	GroupPrivileged = "privileged"
	GroupDefault    = "default"
	GroupLeechers   = "leechers"
)

// UploadGroup is a live slot-accounting bucket in the scheduler.
type UploadGroup struct {
	Name      string
	Priority  int
	Slots     int
	UsedSlots int
	Strategy  QueueStrategy
}

// HasFreeSlot reports whether the group can release another upload.
func (g *UploadGroup) HasFreeSlot() bool {
	return g.UsedSlots < g.Slots
}

// Share is a single shared directory root: Alias is the virtual name
// peers see, Path is where it lives on disk of the owning host.
type Share struct {
	Alias string `json:"alias" yaml:"alias"`
	Path  string `json:"path" yaml:"path"`
}

// LocalHostName identifies the host entry backed by this process's own
// share scan. Remote hosts carry the owning agent's instance name.
const LocalHostName = "local"

// File is one shared file as indexed and returned in search responses.
// Path is the virtual path (alias-rooted); attribute fields are zero
// when unknown.
type File struct {
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	Extension  string `json:"extension"`
	BitRate    int    `json:"bitRate,omitempty"`
	BitDepth   int    `json:"bitDepth,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Length     int    `json:"length,omitempty"` // seconds
	IsVBR      bool   `json:"isVariableBitRate,omitempty"`
}

// losslessExtensions covers the formats treated as lossless by the
// filter language's islossless/islossy flags.
var losslessExtensions = map[string]bool{
	"flac": true, "wav": true, "ape": true, "aiff": true,
	"alac": true, "wv": true,
}

// IsLossless reports whether the file's extension names a lossless
// format.
func (f *File) IsLossless() bool {
	return losslessExtensions[strings.ToLower(strings.TrimPrefix(f.Extension, "."))]
}

// Directory is a browsable listing of one shared directory.
type Directory struct {
	Path  string `json:"path"`
	Files []File `json:"files"`
}

// SearchState tracks the lifecycle of an outgoing search. Terminal
// states are sticky: once a Completed variant is reached no further
// transition occurs.
type SearchState string

const (
	SearchRequested  SearchState = "Requested"
	SearchInProgress SearchState = "InProgress"

	SearchCompletedTimedOut             SearchState = "Completed, TimedOut"
	SearchCompletedResponseLimitReached SearchState = "Completed, ResponseLimitReached"
	SearchCompletedFileLimitReached     SearchState = "Completed, FileLimitReached"
	SearchCompletedErrored              SearchState = "Completed, Errored"
	SearchCompletedCancelled            SearchState = "Completed, Cancelled"
)

// Terminal reports whether the state is one of the Completed variants.
func (s SearchState) Terminal() bool {
	return strings.HasPrefix(string(s), "Completed")
}

// Search is the persisted record of an outgoing search.
type Search struct {
	ID              string           `json:"id"`
	SearchText      string           `json:"searchText"`
	Token           int              `json:"token"`
	State           SearchState      `json:"state"`
	StartedAt       time.Time        `json:"startedAt"`
	EndedAt         *time.Time       `json:"endedAt,omitempty"`
	ResponseCount   int              `json:"responseCount"`
	FileCount       int              `json:"fileCount"`
	LockedFileCount int              `json:"lockedFileCount"`
	Responses       []SearchResponse `json:"responses,omitempty"`
}

// SearchResponse is one peer's answer to a search, ours or theirs.
type SearchResponse struct {
	Username          string `json:"username"`
	Token             int    `json:"token"`
	HasFreeUploadSlot bool   `json:"hasFreeUploadSlot"`
	UploadSpeed       int    `json:"uploadSpeed"`
	QueueLength       int    `json:"queueLength"`
	FileCount         int    `json:"fileCount"`
	LockedFileCount   int    `json:"lockedFileCount"`
	Files             []File `json:"files,omitempty"`
	LockedFiles       []File `json:"lockedFiles,omitempty"`
}

// AgentRegistration records one authenticated relay agent on the
// controller. At most one registration exists per agent name.
type AgentRegistration struct {
	Name            string    `json:"name"`
	ConnectionID    string    `json:"connectionId"`
	Shares          []Share   `json:"shares"`
	AuthenticatedAt time.Time `json:"authenticatedAt"`
}

// RelayMode selects which half of the relay subsystem runs.
type RelayMode string

const (
	RelayModeNone       RelayMode = "none"
	RelayModeController RelayMode = "controller"
	RelayModeAgent      RelayMode = "agent"
)

// ConnectionPatch carries the server-facing option changes applied to
// the peer client on config reload. Nil fields are unchanged.
type ConnectionPatch struct {
	Address           *string
	Username          *string
	Password          *string
	Description       *string
	ListenPort        *int
	ConnectionTimeout *int
	ConnectionBuffer  *int
}

// Empty reports whether the patch changes nothing.
func (p ConnectionPatch) Empty() bool {
	return p == ConnectionPatch{}
}

// ServerConnectionState is the watchdog's view of the server link.
type ServerConnectionState string

const (
	ServerStopped    ServerConnectionState = "stopped"
	ServerConnecting ServerConnectionState = "connecting"
	ServerConnected  ServerConnectionState = "connected"
)

// ScanState is the share scanner's lifecycle.
type ScanState string

const (
	ScanIdle       ScanState = "idle"
	ScanInProgress ScanState = "scanning"
	ScanFaulted    ScanState = "faulted"
)

// State is the daemon's observable snapshot, served at GET /application
// and mutated through the state store.
type State struct {
	Version          string      `json:"version"`
	PendingRestart   bool        `json:"pendingRestart"`
	PendingReconnect bool        `json:"pendingReconnect"`
	Server           ServerState `json:"server"`
	Shares           SharesState `json:"shares"`
	Relay            RelayState  `json:"relay"`
	Uploads          QueueState  `json:"uploads"`
}

// ServerState describes the server link.
type ServerState struct {
	Address     string                `json:"address"`
	Username    string                `json:"username"`
	State       ServerConnectionState `json:"state"`
	Attempts    int                   `json:"attempts"`
	ConnectedAt *time.Time            `json:"connectedAt,omitempty"`
}

// SharesState describes the share index.
type SharesState struct {
	ScanState    ScanState `json:"scanState"`
	ScanProgress float64   `json:"scanProgress"`
	Hosts        []string  `json:"hosts"`
	Directories  int       `json:"directories"`
	Files        int       `json:"files"`
}

// RelayState describes the relay subsystem.
type RelayState struct {
	Mode   RelayMode `json:"mode"`
	Agents []string  `json:"agents,omitempty"`
}

// QueueState summarises the upload scheduler.
type QueueState struct {
	Queued  int `json:"queued"`
	Started int `json:"started"`
}
