// Package lavalink orchestrates players across a fleet of Lavalink v4 nodes:
// node sessions with reconnect and resume, per guild players with queues,
// search and voice state ingestion.
package lavalink

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica"
	"github.com/liuran001/sonatica-go/sonatica/cache"
	"github.com/liuran001/sonatica-go/sonatica/selector"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Manager is the registry of nodes and players.
type Manager struct {
	opts       Options
	logger     sonatica.Logger
	bus        eventBus
	dispatcher *EventDispatcher
	cache      *cache.Cache[*SearchResult]
	searches   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	clientID    snowflake.ID
	initialized bool
	nodes       map[string]*Node
	players     map[snowflake.ID]*Player
}

// New creates a manager and its nodes. Nodes connect on Init.
func New(opts Options) *Manager {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:     opts,
		logger:   opts.Logger,
		cache:    cache.New[*SearchResult](opts.CacheTTL, opts.CacheSize),
		ctx:      ctx,
		cancel:   cancel,
		clientID: opts.ClientID,
		nodes:    make(map[string]*Node),
		players:  make(map[snowflake.ID]*Player),
	}
	m.dispatcher = &EventDispatcher{manager: m}
	for _, nodeOpts := range opts.Nodes {
		m.addNode(nodeOpts)
	}
	return m
}

// Init records the bot user id and connects every node. Calling it again is
// a no-op.
func (m *Manager) Init(ctx context.Context, clientID snowflake.ID) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	if clientID != 0 {
		m.clientID = clientID
	}
	if m.clientID == 0 {
		m.mu.Unlock()
		return invalidArgument("client id is required")
	}
	m.initialized = true
	m.mu.Unlock()

	if m.opts.CacheCleanupInterval > 0 {
		go m.cacheJanitor(m.opts.CacheCleanupInterval)
	}

	var g errgroup.Group
	for _, n := range m.Nodes() {
		n := n
		g.Go(func() error {
			// Failures are reported as NodeErrorEvent and retried.
			_ = n.Connect(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) cacheJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if removed := m.cache.Cleanup(); removed > 0 && m.logger != nil {
				m.logger.Debug("search cache cleanup", "removed", removed)
			}
		}
	}
}

// ClientID returns the bot user id, zero before Init.
func (m *Manager) ClientID() snowflake.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientID
}

// Options returns the manager options with defaults applied.
func (m *Manager) Options() Options {
	return m.opts
}

// AddListener registers fn for every event and returns its remover.
func (m *Manager) AddListener(fn Listener) func() {
	return m.bus.add(fn)
}

func (m *Manager) emit(e Event) {
	m.bus.emit(e)
}

// CacheStats reports the search cache fill level.
func (m *Manager) CacheStats() cache.Stats {
	return m.cache.Stats()
}

func (m *Manager) addNode(opts NodeOptions) (*Node, bool) {
	n := newNode(m, opts)
	m.mu.Lock()
	if existing, ok := m.nodes[n.Identifier()]; ok {
		m.mu.Unlock()
		n.cancel()
		return existing, false
	}
	m.nodes[n.Identifier()] = n
	m.mu.Unlock()
	m.emit(NodeCreateEvent{Node: n})
	return n, true
}

// CreateNode adds a node, returning the existing one for a known
// identifier. After Init the new node is connected right away.
func (m *Manager) CreateNode(ctx context.Context, opts NodeOptions) (*Node, error) {
	n, created := m.addNode(opts)
	m.mu.RLock()
	initialized := m.initialized
	m.mu.RUnlock()
	if created && initialized {
		if err := n.Connect(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

// DestroyNode destroys a node. Unknown identifiers are ignored.
func (m *Manager) DestroyNode(ctx context.Context, identifier string) error {
	n, ok := m.Node(identifier)
	if !ok {
		return nil
	}
	return n.Destroy(ctx)
}

func (m *Manager) removeNode(n *Node) {
	m.mu.Lock()
	if m.nodes[n.Identifier()] == n {
		delete(m.nodes, n.Identifier())
	}
	m.mu.Unlock()
}

// Nodes returns all nodes ordered by identifier.
func (m *Manager) Nodes() []*Node {
	m.mu.RLock()
	nodes := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.mu.RUnlock()
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Identifier() < nodes[j].Identifier()
	})
	return nodes
}

func (m *Manager) Node(identifier string) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[identifier]
	return n, ok
}

// failoverTarget returns the best playback node other than exclude.
func (m *Manager) failoverTarget(exclude *Node) (*Node, bool) {
	return selector.First(m.Nodes(), m.opts.Sorter, func(n *Node) bool {
		return n != exclude && !n.options.DisablePlayback
	})
}

// Create returns the guild's player, creating it on the chosen node if
// needed.
func (m *Manager) Create(opts PlayerOptions) (*Player, error) {
	if opts.GuildID == 0 {
		return nil, invalidArgument("guild id is required")
	}
	if p := m.Get(opts.GuildID); p != nil {
		return p, nil
	}

	var node *Node
	if opts.Node != "" {
		n, ok := m.Node(opts.Node)
		if !ok {
			return nil, invalidArgument("unknown node %q", opts.Node)
		}
		node = n
	} else {
		n, ok := m.failoverTarget(nil)
		if !ok {
			return nil, ErrNoNodesAvailable
		}
		node = n
	}

	p := newPlayer(m, node, opts)
	m.mu.Lock()
	if existing, ok := m.players[opts.GuildID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.players[opts.GuildID] = p
	m.mu.Unlock()

	if p.logger != nil {
		p.logger.Debug("player created", "node", node.Identifier())
	}
	m.emit(PlayerCreateEvent{Player: p})
	return p, nil
}

// Get returns the guild's player or nil.
func (m *Manager) Get(guildID snowflake.ID) *Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.players[guildID]
}

// Players returns every player.
func (m *Manager) Players() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	return players
}

// Destroy destroys the guild's player, if any.
func (m *Manager) Destroy(ctx context.Context, guildID snowflake.ID) error {
	p := m.Get(guildID)
	if p == nil {
		return nil
	}
	return p.Destroy(ctx, true)
}

func (m *Manager) removePlayer(p *Player) {
	m.mu.Lock()
	if m.players[p.guildID] == p {
		delete(m.players, p.guildID)
	}
	m.mu.Unlock()
}

func (m *Manager) playersOn(n *Node) []*Player {
	var out []*Player
	for _, p := range m.Players() {
		if p.Node() == n {
			out = append(out, p)
		}
	}
	return out
}

// submit runs task on the worker pool, or a goroutine without one.
func (m *Manager) submit(task func()) {
	if m.opts.Pool != nil {
		if err := m.opts.Pool.Submit(task); err == nil {
			return
		} else if m.logger != nil {
			m.logger.Warn("worker pool rejected task", "error", err)
		}
	}
	go task()
}

// Shutdown closes every node socket without touching players, so a new
// process can resume the sessions.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	for _, n := range m.Nodes() {
		n.shutdown()
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
