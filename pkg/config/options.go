package config

import (
	"fmt"
	"regexp"

	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/types"
)

// Options is the full configuration tree. Field yaml tags double as
// diff paths; a `restart:"true"` tag marks the field (and everything
// beneath it) as requiring a process restart to take effect. All other
// fields are applied live by the reload plane.
type Options struct {
	// InstanceName identifies this process: it is the host name local
	// shares are attributed to and the agent name in relay agent mode.
	InstanceName string `yaml:"instanceName" json:"instanceName" restart:"true"`

	Debug bool `yaml:"debug" json:"debug"`

	Web         WebOptions         `yaml:"web" json:"web"`
	Logging     LoggingOptions     `yaml:"logging" json:"logging"`
	Soulseek    SoulseekOptions    `yaml:"soulseek" json:"soulseek"`
	Global      GlobalOptions      `yaml:"global" json:"global"`
	Groups      GroupsOptions      `yaml:"groups" json:"groups"`
	Shares      SharesOptions      `yaml:"shares" json:"shares"`
	Searches    SearchesOptions    `yaml:"searches" json:"searches"`
	Relay       RelayOptions       `yaml:"relay" json:"relay"`
	Directories DirectoriesOptions `yaml:"directories" json:"directories"`
}

// WebOptions configures the HTTP listener.
type WebOptions struct {
	Port    int    `yaml:"port" json:"port" restart:"true"`
	URLBase string `yaml:"urlBase" json:"urlBase" restart:"true"`
}

// LoggingOptions configures output format and the in-memory buffer.
// Level changes apply live; the sink shape is fixed at startup.
type LoggingOptions struct {
	Level      string `yaml:"level" json:"level"`
	JSON       bool   `yaml:"json" json:"json" restart:"true"`
	BufferSize int    `yaml:"bufferSize" json:"bufferSize" restart:"true"`
}

// SoulseekOptions is the server-facing subtree. Any change here is
// soulseek-scoped: the reload plane builds a connection patch from the
// changed leaves and hands it to the peer client.
type SoulseekOptions struct {
	Address     string            `yaml:"address" json:"address"`
	Username    string            `yaml:"username" json:"username"`
	Password    string            `yaml:"password" json:"password"`
	Description string            `yaml:"description" json:"description"`
	ListenPort  int               `yaml:"listenPort" json:"listenPort"`
	Connection  ConnectionOptions `yaml:"connection" json:"connection"`
}

// ConnectionOptions tunes the peer client's socket behaviour.
type ConnectionOptions struct {
	// Timeout is the connect/inactivity timeout in milliseconds.
	Timeout int `yaml:"timeout" json:"timeout"`
	// Buffer is the read/write buffer size in bytes.
	Buffer int `yaml:"buffer" json:"buffer"`
}

// GlobalOptions caps resource use across all groups.
type GlobalOptions struct {
	Upload GlobalUploadOptions `yaml:"upload" json:"upload"`
}

// GlobalUploadOptions bounds concurrent uploads and total throughput.
type GlobalUploadOptions struct {
	Slots int `yaml:"slots" json:"slots"`
	// SpeedLimit is the aggregate upload rate in KiB/s.
	SpeedLimit int `yaml:"speedLimit" json:"speedLimit"`
}

// GroupsOptions configures the scheduler's slot-accounting buckets.
// The privileged group is built in and not configurable: priority 0,
// FIFO, global slot capacity.
type GroupsOptions struct {
	Default     GroupOptions                `yaml:"default" json:"default"`
	Leechers    LeecherGroupOptions         `yaml:"leechers" json:"leechers"`
	UserDefined map[string]UserGroupOptions `yaml:"userDefined" json:"userDefined"`
}

// GroupOptions is one group's scheduling parameters.
type GroupOptions struct {
	Priority int                 `yaml:"priority" json:"priority"`
	Slots    int                 `yaml:"slots" json:"slots"`
	Strategy types.QueueStrategy `yaml:"strategy" json:"strategy"`
}

// LeecherGroupOptions adds the classification thresholds to the group
// parameters: users sharing fewer files or directories than the
// thresholds are leechers.
type LeecherGroupOptions struct {
	Priority   int                 `yaml:"priority" json:"priority"`
	Slots      int                 `yaml:"slots" json:"slots"`
	Strategy   types.QueueStrategy `yaml:"strategy" json:"strategy"`
	Thresholds ThresholdOptions    `yaml:"thresholds" json:"thresholds"`
}

// ThresholdOptions are the minimum counts a user must share to escape
// the leechers group.
type ThresholdOptions struct {
	Files       int `yaml:"files" json:"files"`
	Directories int `yaml:"directories" json:"directories"`
}

// UserGroupOptions is an operator-defined group with an explicit
// member list.
type UserGroupOptions struct {
	Priority int                 `yaml:"priority" json:"priority"`
	Slots    int                 `yaml:"slots" json:"slots"`
	Strategy types.QueueStrategy `yaml:"strategy" json:"strategy"`
	Members  []string            `yaml:"members" json:"members"`
}

// SharesOptions configures what is shared and what the scanner skips.
type SharesOptions struct {
	// Directories are share roots, either "/path" (alias = base name)
	// or "alias:/path".
	Directories []string `yaml:"directories" json:"directories"`
	// Filters are regular expressions; matching paths are excluded
	// from the scan.
	Filters []string `yaml:"filters" json:"filters"`
}

// SearchesOptions bounds both halves of search handling: answering
// remote queries and running our own.
type SearchesOptions struct {
	// Incoming (resolver) bounds.
	MinQueryChars       int      `yaml:"minQueryChars" json:"minQueryChars"`
	MaxFilesPerResponse int      `yaml:"maxFilesPerResponse" json:"maxFilesPerResponse"`
	BotBlacklist        []string `yaml:"botBlacklist" json:"botBlacklist"`

	// Outgoing (lifecycle) bounds.
	ResponseLimit   int  `yaml:"responseLimit" json:"responseLimit"`
	FileLimit       int  `yaml:"fileLimit" json:"fileLimit"`
	TimeoutSeconds  int  `yaml:"timeout" json:"timeout"`
	FilterResponses bool `yaml:"filterResponses" json:"filterResponses"`
	// MinimumPeerUploadSpeed drops responses from peers slower than
	// this many KiB/s when FilterResponses is set. 0 disables the gate.
	MinimumPeerUploadSpeed int `yaml:"minimumPeerUploadSpeed" json:"minimumPeerUploadSpeed"`
	// MaximumPeerQueueLength drops responses from peers with longer
	// queues when FilterResponses is set. 0 disables the gate.
	MaximumPeerQueueLength int `yaml:"maximumPeerQueueLength" json:"maximumPeerQueueLength"`

	// RetentionMinutes is how long completed searches stay on disk.
	RetentionMinutes int `yaml:"retention" json:"retention"`
}

// RelayOptions selects and configures the relay role.
type RelayOptions struct {
	Mode types.RelayMode `yaml:"mode" json:"mode" restart:"true"`

	// Controller is used in agent mode: where to connect and how to
	// authenticate.
	Controller ControllerOptions `yaml:"controller" json:"controller"`

	// Agents is used in controller mode: the set of agents allowed to
	// connect, keyed by agent name.
	Agents map[string]AgentOptions `yaml:"agents" json:"agents"`
}

// ControllerOptions points an agent at its controller.
type ControllerOptions struct {
	URL    string `yaml:"url" json:"url" restart:"true"`
	Secret string `yaml:"secret" json:"secret" restart:"true"`
	// Downloads, when set, makes the agent fetch completed downloads
	// from the controller.
	Downloads bool `yaml:"downloads" json:"downloads"`
}

// AgentOptions holds the controller-side secret for one agent.
type AgentOptions struct {
	Secret string `yaml:"secret" json:"secret"`
}

// DirectoriesOptions locates the writable directories.
type DirectoriesOptions struct {
	Downloads  string `yaml:"downloads" json:"downloads" restart:"true"`
	Incomplete string `yaml:"incomplete" json:"incomplete" restart:"true"`
}

// Default returns the options used when the config file and
// environment specify nothing.
func Default() Options {
	return Options{
		InstanceName: "default",
		Web: WebOptions{
			Port:    5030,
			URLBase: "/",
		},
		Logging: LoggingOptions{
			Level:      "info",
			JSON:       false,
			BufferSize: 512,
		},
		Soulseek: SoulseekOptions{
			Address:    "vps.slsknet.org:2271",
			ListenPort: 50300,
			Connection: ConnectionOptions{
				Timeout: 15000,
				Buffer:  16384,
			},
		},
		Global: GlobalOptions{
			Upload: GlobalUploadOptions{
				Slots:      10,
				SpeedLimit: 1000,
			},
		},
		Groups: GroupsOptions{
			Default: GroupOptions{
				Priority: 500,
				Slots:    10,
				Strategy: types.StrategyRoundRobin,
			},
			Leechers: LeecherGroupOptions{
				Priority: 999,
				Slots:    1,
				Strategy: types.StrategyRoundRobin,
				Thresholds: ThresholdOptions{
					Files:       1,
					Directories: 1,
				},
			},
			UserDefined: map[string]UserGroupOptions{},
		},
		Shares: SharesOptions{},
		Searches: SearchesOptions{
			MinQueryChars:          3,
			MaxFilesPerResponse:    250,
			ResponseLimit:          250,
			FileLimit:              10000,
			TimeoutSeconds:         15,
			FilterResponses:        true,
			MaximumPeerQueueLength: 1000000,
			RetentionMinutes:       10080,
		},
		Relay: RelayOptions{
			Mode:   types.RelayModeNone,
			Agents: map[string]AgentOptions{},
		},
		Directories: DirectoriesOptions{
			Downloads:  "downloads",
			Incomplete: "incomplete",
		},
	}
}

// Validate checks the tree for values the daemon cannot run with. All
// failures wrap the validation error kind.
func (o *Options) Validate() error {
	if o.InstanceName == "" {
		return errdefs.Validationf("instanceName must not be empty")
	}
	if o.InstanceName == types.LocalHostName && o.Relay.Mode == types.RelayModeAgent {
		return errdefs.Validationf("instanceName %q is reserved", types.LocalHostName)
	}
	if o.Web.Port < 1 || o.Web.Port > 65535 {
		return errdefs.Validationf("web.port %d out of range", o.Web.Port)
	}
	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errdefs.Validationf("logging.level %q unknown", o.Logging.Level)
	}
	if o.Logging.BufferSize < 16 {
		return errdefs.Validationf("logging.bufferSize %d too small", o.Logging.BufferSize)
	}
	if o.Soulseek.ListenPort < 1 || o.Soulseek.ListenPort > 65535 {
		return errdefs.Validationf("soulseek.listenPort %d out of range", o.Soulseek.ListenPort)
	}
	if o.Soulseek.Connection.Timeout < 1000 {
		return errdefs.Validationf("soulseek.connection.timeout %dms too small", o.Soulseek.Connection.Timeout)
	}
	if o.Global.Upload.Slots < 1 {
		return errdefs.Validationf("global.upload.slots must be at least 1")
	}
	if o.Global.Upload.SpeedLimit < 1 {
		return errdefs.Validationf("global.upload.speedLimit must be at least 1 KiB/s")
	}

	if err := validateGroup("groups.default", o.Groups.Default.Slots, o.Groups.Default.Strategy); err != nil {
		return err
	}
	if err := validateGroup("groups.leechers", o.Groups.Leechers.Slots, o.Groups.Leechers.Strategy); err != nil {
		return err
	}
	for name, g := range o.Groups.UserDefined {
		if name == "" {
			return errdefs.Validationf("groups.userDefined contains an unnamed group")
		}
		if name == types.GroupPrivileged || name == types.GroupDefault || name == types.GroupLeechers {
			return errdefs.Validationf("group name %q is reserved", name)
		}
		if err := validateGroup(fmt.Sprintf("groups.userDefined.%s", name), g.Slots, g.Strategy); err != nil {
			return err
		}
	}

	for i, dir := range o.Shares.Directories {
		if dir == "" {
			return errdefs.Validationf("shares.directories[%d] is empty", i)
		}
	}
	for _, pattern := range o.Shares.Filters {
		if _, err := regexp.Compile(pattern); err != nil {
			return errdefs.Validationf("shares.filters pattern %q does not compile: %v", pattern, err)
		}
	}

	s := o.Searches
	if s.MinQueryChars < 1 {
		return errdefs.Validationf("searches.minQueryChars must be at least 1")
	}
	if s.MaxFilesPerResponse < 1 {
		return errdefs.Validationf("searches.maxFilesPerResponse must be at least 1")
	}
	if s.ResponseLimit < 1 || s.FileLimit < 1 {
		return errdefs.Validationf("searches.responseLimit and searches.fileLimit must be at least 1")
	}
	if s.TimeoutSeconds < 1 {
		return errdefs.Validationf("searches.timeout must be at least 1 second")
	}
	if s.RetentionMinutes < 1 {
		return errdefs.Validationf("searches.retention must be at least 1 minute")
	}

	switch o.Relay.Mode {
	case types.RelayModeNone:
	case types.RelayModeController:
		for name, agent := range o.Relay.Agents {
			if name == "" || name == types.LocalHostName {
				return errdefs.Validationf("relay.agents contains reserved or empty name %q", name)
			}
			if len(agent.Secret) < 16 {
				return errdefs.Validationf("relay.agents.%s.secret must be at least 16 characters", name)
			}
		}
	case types.RelayModeAgent:
		if o.Relay.Controller.URL == "" {
			return errdefs.Validationf("relay.controller.url is required in agent mode")
		}
		if len(o.Relay.Controller.Secret) < 16 {
			return errdefs.Validationf("relay.controller.secret must be at least 16 characters")
		}
	default:
		return errdefs.Validationf("relay.mode %q unknown", o.Relay.Mode)
	}

	if o.Directories.Downloads == "" || o.Directories.Incomplete == "" {
		return errdefs.Validationf("directories.downloads and directories.incomplete are required")
	}

	return nil
}

func validateGroup(path string, slots int, strategy types.QueueStrategy) error {
	if slots < 0 {
		return errdefs.Validationf("%s.slots must not be negative", path)
	}
	switch strategy {
	case "", types.StrategyFIFO, types.StrategyRoundRobin:
		return nil
	default:
		return errdefs.Validationf("%s.strategy %q unknown", path, strategy)
	}
}
