package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Client is the etcd-backed Registry implementation.
// All methods are safe for concurrent use.
type Client struct {
	client    *clientv3.Client
	namespace string
	ttl       int

	mu         sync.RWMutex
	leases     map[string]clientv3.LeaseID // key: session ID
	cancelFns  map[string]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// NewClient connects to etcd and verifies connectivity. The client must be
// closed with Close() to stop background lease renewal.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("registry endpoints cannot be empty")
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "concierge"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := clientTLS(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		clientCfg.TLS = tlsConfig
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &Client{
		client:     cli,
		namespace:  namespace,
		ttl:        ttl,
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closedChan: make(chan struct{}),
	}, nil
}

// Register adds a session under a fresh lease and starts renewing it every
// TTL/3. Re-registering the same session replaces its entry and restarts
// the renewal goroutine.
func (c *Client) Register(ctx context.Context, info SessionInfo) error {
	if info.SessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	// The etcd round trips run outside the lock so a slow registration
	// does not block other registry operations.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("registry client is closed")
	}
	if cancelFn, exists := c.cancelFns[info.SessionID]; exists {
		cancelFn()
		delete(c.cancelFns, info.SessionID)
	}
	c.mu.Unlock()

	leaseResp, err := c.client.Grant(ctx, int64(c.ttl))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal session info: %w", err)
	}

	key := c.sessionKey(info.SessionID)
	if _, err := c.client.Put(ctx, key, string(data), clientv3.WithLease(leaseResp.ID)); err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.client.Revoke(context.Background(), leaseResp.ID)
		return fmt.Errorf("registry client is closed")
	}
	c.leases[info.SessionID] = leaseResp.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	c.cancelFns[info.SessionID] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go c.keepalive(keepaliveCtx, leaseResp.ID, info.SessionID)
	return nil
}

// Deregister revokes the session's lease, which deletes its entry.
func (c *Client) Deregister(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("registry client is closed")
	}

	if cancelFn, exists := c.cancelFns[sessionID]; exists {
		cancelFn()
		delete(c.cancelFns, sessionID)
	}

	leaseID, exists := c.leases[sessionID]
	if exists {
		delete(c.leases, sessionID)
	}
	c.mu.Unlock()

	if !exists {
		return nil
	}
	// Revoke outside the lock; an expired lease cleans itself up anyway.
	if _, err := c.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	return nil
}

// List returns every live session.
func (c *Client) List(ctx context.Context) ([]SessionInfo, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return nil, fmt.Errorf("registry client is closed")
	}
	return c.list(ctx)
}

func (c *Client) list(ctx context.Context) ([]SessionInfo, error) {
	prefix := fmt.Sprintf("/%s/sessions/", c.namespace)

	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info SessionInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			// Skip invalid entries
			continue
		}
		sessions = append(sessions, info)
	}
	return sessions, nil
}

// Watch emits the full session list on every change, starting with the
// current state.
func (c *Client) Watch(ctx context.Context) (<-chan []SessionInfo, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return nil, fmt.Errorf("registry client is closed")
	}

	ch := make(chan []SessionInfo, 1)

	sessions, err := c.list(ctx)
	if err != nil {
		return nil, err
	}
	ch <- sessions

	prefix := fmt.Sprintf("/%s/sessions/", c.namespace)
	watchChan := c.client.Watch(ctx, prefix, clientv3.WithPrefix())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("registry client is closed")
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closedChan:
				return
			case watchResp, ok := <-watchChan:
				if !ok {
					return
				}
				if watchResp.Err() != nil {
					return
				}

				sessions, err := c.list(context.Background())
				if err != nil {
					continue
				}

				select {
				case ch <- sessions:
				case <-ctx.Done():
					return
				case <-c.closedChan:
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close stops all lease renewal goroutines and closes the etcd connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	for _, cancel := range c.cancelFns {
		cancel()
	}
	c.cancelFns = make(map[string]context.CancelFunc)

	close(c.closedChan)
	c.mu.Unlock()

	c.wg.Wait()
	return c.client.Close()
}

// keepalive renews the lease every TTL/3 until canceled or the lease dies.
func (c *Client) keepalive(ctx context.Context, leaseID clientv3.LeaseID, sessionID string) {
	defer c.wg.Done()

	interval := time.Duration(c.ttl) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closedChan:
			return
		case <-ticker.C:
			if _, err := c.client.KeepAliveOnce(context.Background(), leaseID); err != nil {
				c.mu.Lock()
				delete(c.leases, sessionID)
				delete(c.cancelFns, sessionID)
				c.mu.Unlock()
				return
			}
		}
	}
}

// sessionKey constructs the etcd key: /namespace/sessions/session-id.
func (c *Client) sessionKey(sessionID string) string {
	return fmt.Sprintf("/%s/sessions/%s", c.namespace, sessionID)
}
