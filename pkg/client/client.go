// Package client is the subscriber side of the realtime protocol: a
// connection manager with heartbeat and backoff, a registry of desired topics
// with per-topic bindings, and a batcher that coalesces change bursts.
package client

import (
	"context"
)

// Client pairs a Manager with the Registry listening to it.
type Client struct {
	manager  *Manager
	registry *Registry
}

// New creates a disconnected Client.
func New(t Transport, opts ...Option) *Client {
	m := NewManager(t, opts...)
	return &Client{
		manager:  m,
		registry: NewRegistry(m, opts...),
	}
}

// Manager exposes the connection manager.
func (c *Client) Manager() *Manager { return c.manager }

// Registry exposes the subscription registry.
func (c *Client) Registry() *Registry { return c.registry }

// Connect starts connecting.
func (c *Client) Connect() error { return c.manager.Connect() }

// SetAuth replaces the auth token, reconnecting when it changed.
func (c *Client) SetAuth(token string) { c.manager.SetAuth(token) }

// State returns the connection state.
func (c *Client) State() State { return c.manager.State() }

// Subscribe makes topic desired. See Registry.Subscribe.
func (c *Client) Subscribe(topic string, bindings ...Binding) bool {
	return c.registry.Subscribe(topic, bindings...)
}

// Unsubscribe forgets topic.
func (c *Client) Unsubscribe(topic string) bool {
	return c.registry.Unsubscribe(topic)
}

// Persist saves the desired topics under key.
func (c *Client) Persist(ctx context.Context, store TopicStore, key string) error {
	return c.registry.Persist(ctx, store, key)
}

// Restore resubscribes to the topics saved under key.
func (c *Client) Restore(ctx context.Context, store TopicStore, key string, factory func(topic string) []Binding) ([]string, error) {
	return c.registry.Restore(ctx, store, key, factory)
}

// Disconnect closes the connection and clears the Manager's topics. The
// Registry keeps its subscriptions and requests them again on the next
// Connect; Logout is the call that forgets everything.
func (c *Client) Disconnect() { c.manager.Disconnect() }

// Logout drops every subscription, flushing batched bindings, and
// disconnects.
func (c *Client) Logout() {
	c.registry.UnsubscribeAll()
	c.manager.Disconnect()
}

// Close logs out and rejects further connects.
func (c *Client) Close() error {
	c.registry.UnsubscribeAll()
	return c.manager.Close()
}
