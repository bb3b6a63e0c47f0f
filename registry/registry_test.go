package registry

import (
	"context"
	"sync"
	"testing"

	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestNewClientRequiresEndpoints(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for empty endpoints")
	}
}

// bareClient builds a Client without dialing etcd. Only code paths that
// return before any network call can run against it.
func bareClient(closed bool) *Client {
	return &Client{
		namespace:  "concierge",
		ttl:        30,
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closed:     closed,
		closedChan: make(chan struct{}),
	}
}

func TestClosedClientRejectsOperations(t *testing.T) {
	ctx := context.Background()
	c := bareClient(true)

	if err := c.Register(ctx, SessionInfo{SessionID: "s1"}); err == nil {
		t.Error("Register on a closed client should fail")
	}
	if err := c.Deregister(ctx, "s1"); err == nil {
		t.Error("Deregister on a closed client should fail")
	}
	if _, err := c.List(ctx); err == nil {
		t.Error("List on a closed client should fail")
	}
	if _, err := c.Watch(ctx); err == nil {
		t.Error("Watch on a closed client should fail")
	}
}

func TestDeregisterUnknownSessionIsNoOp(t *testing.T) {
	c := bareClient(false)

	// An unknown session returns before the revoke round trip; concurrent
	// calls must not contend on anything but the map check.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Deregister(context.Background(), "never-registered"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestClientTLSValidation(t *testing.T) {
	t.Run("disabled yields nil config", func(t *testing.T) {
		cfg, err := clientTLS(&TLSConfig{Enabled: false})
		if err != nil || cfg != nil {
			t.Errorf("expected nil, nil; got %v, %v", cfg, err)
		}
	})

	t.Run("missing files rejected", func(t *testing.T) {
		cases := []*TLSConfig{
			{Enabled: true},
			{Enabled: true, CertFile: "c.pem"},
			{Enabled: true, CertFile: "c.pem", KeyFile: "k.pem"},
		}
		for _, cfg := range cases {
			if _, err := clientTLS(cfg); err == nil {
				t.Errorf("expected error for %+v", cfg)
			}
		}
	})
}
