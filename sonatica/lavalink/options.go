package lavalink

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	"github.com/liuran001/sonatica-go/sonatica"
	"github.com/liuran001/sonatica-go/sonatica/cache"
	"github.com/liuran001/sonatica-go/sonatica/rest"
	"github.com/liuran001/sonatica-go/sonatica/selector"
)

const (
	DefaultPort           = 2333
	DefaultPassword       = "youshallnotpass"
	DefaultRetryDelay     = 2500 * time.Millisecond
	DefaultRequestTimeout = 5 * time.Second
	DefaultVolume         = 80
	DefaultMoveGrace      = 5 * time.Second
	DefaultResumeTimeout  = 360 * time.Second
	DefaultClientName     = "sonatica-go"
	DefaultSearchPlatform = "youtube music"

	// Lavalink's upper volume bound, in percent.
	MaxVolume = 1000
)

// Requester issues one REST call against a node. *rest.Client implements it.
type Requester interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// SendFunc delivers a voice state update (gateway op 4) for a guild.
type SendFunc func(ctx context.Context, guildID snowflake.ID, payload VoiceUpdate) error

// VoiceUpdate is the gateway payload asking to join or leave a channel. A
// nil ChannelID leaves.
type VoiceUpdate struct {
	Op int             `json:"op"`
	D  VoiceUpdateData `json:"d"`
}

type VoiceUpdateData struct {
	GuildID   snowflake.ID  `json:"guild_id"`
	ChannelID *snowflake.ID `json:"channel_id"`
	SelfMute  bool          `json:"self_mute"`
	SelfDeaf  bool          `json:"self_deaf"`
}

// NodeOptions configures one node.
type NodeOptions struct {
	// Identifier defaults to Host.
	Identifier string
	Host       string
	Port       int
	Password   string
	// Secure selects wss/https. Port 443 implies it.
	Secure bool

	// RetryAmount caps reconnect attempts, 0 retries forever.
	RetryAmount       int
	RetryDelay        time.Duration
	RequestTimeout    time.Duration
	RequestsPerSecond float64

	DisableSearch   bool
	DisablePlayback bool

	// HealthCheckInterval of 0 disables the REST probe.
	HealthCheckInterval  time.Duration
	HealthCheckThreshold int
}

func (o NodeOptions) withDefaults() NodeOptions {
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Port == 443 {
		o.Secure = true
	}
	if o.Identifier == "" {
		o.Identifier = o.Host
	}
	if o.Password == "" {
		o.Password = DefaultPassword
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.HealthCheckInterval > 0 && o.HealthCheckThreshold <= 0 {
		o.HealthCheckThreshold = 3
	}
	return o
}

// RestURL returns the REST base including the /v4 prefix.
func (o NodeOptions) RestURL() string {
	scheme := "http"
	if o.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/v4", scheme, o.Host, o.Port)
}

// WebSocketURL returns the node's WebSocket endpoint.
func (o NodeOptions) WebSocketURL() string {
	scheme := "ws"
	if o.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/v4/websocket", scheme, o.Host, o.Port)
}

// Options configures a Manager.
type Options struct {
	Nodes []NodeOptions

	// ClientID may be left zero here and supplied to Init.
	ClientID   snowflake.ID
	ClientName string
	Shards     int

	// AutoPlay plays the next queued track after an advance.
	AutoPlay bool
	// AutoMove hands players of a lost node to another node.
	AutoMove bool
	// AutoResume persists player snapshots and resumes node sessions.
	AutoResume bool

	DefaultSearchPlatform string

	CacheTTL             time.Duration
	CacheSize            int
	CacheCleanupInterval time.Duration

	// Sorter ranks nodes for placement and failover, LeastLoad by default.
	Sorter selector.Sorter[*Node]

	Send   SendFunc
	Store  sonatica.Store
	Pool   sonatica.WorkerPool
	Logger sonatica.Logger

	MoveGracePeriod time.Duration
	ResumeTimeout   time.Duration

	// NewRequester overrides the REST transport per node.
	NewRequester func(NodeOptions) Requester
	Dialer       *websocket.Dialer
	// RequestObserver sees every REST call of the default transport.
	RequestObserver rest.Observer
	// RandomIndex picks the autoplay track, rand.IntN by default.
	RandomIndex func(n int) int
}

// DefaultOptions enables auto play, auto move and auto resume.
func DefaultOptions() Options {
	return Options{
		AutoPlay:   true,
		AutoMove:   true,
		AutoResume: true,
	}
}

func (o Options) withDefaults() Options {
	if o.ClientName == "" {
		o.ClientName = DefaultClientName
	}
	if o.Shards <= 0 {
		o.Shards = 1
	}
	if o.DefaultSearchPlatform == "" {
		o.DefaultSearchPlatform = DefaultSearchPlatform
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = cache.DefaultTTL
	}
	if o.CacheSize <= 0 {
		o.CacheSize = cache.DefaultMaxSize
	}
	if o.Sorter == nil {
		o.Sorter = selector.LeastLoad[*Node]
	}
	if o.MoveGracePeriod <= 0 {
		o.MoveGracePeriod = DefaultMoveGrace
	}
	if o.ResumeTimeout <= 0 {
		o.ResumeTimeout = DefaultResumeTimeout
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.RandomIndex == nil {
		o.RandomIndex = rand.IntN
	}
	return o
}
