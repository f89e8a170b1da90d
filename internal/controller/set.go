package controller

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/nhc-bridge/internal/device"
)

// ErrDuplicateController is returned by Set.Add for an ID already present.
var ErrDuplicateController = errors.New("controller: duplicate controller id")

// Set holds the clients of every configured controller, in insertion order.
type Set struct {
	mu      sync.RWMutex
	clients map[string]*Client
	order   []string
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{clients: make(map[string]*Client)}
}

// Add registers c under its ID.
func (s *Set) Add(c *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[c.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateController, c.ID())
	}
	s.clients[c.ID()] = c
	s.order = append(s.order, c.ID())
	return nil
}

// Get returns the client with the given ID.
func (s *Set) Get(id string) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

// List returns all clients in insertion order.
func (s *Set) List() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Client, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.clients[id])
	}
	return out
}

// Len returns the number of clients.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// ConnectAll connects every client and joins the errors of those that
// could not start.
func (s *Set) ConnectAll() error {
	var errs []error
	for _, c := range s.List() {
		if err := c.Connect(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// DisconnectAll disconnects every client.
func (s *Set) DisconnectAll() {
	for _, c := range s.List() {
		c.Disconnect()
	}
}

// OnDeviceChange registers fn on every client in the set. fn receives the
// owning controller's ID with each device.
func (s *Set) OnDeviceChange(fn func(controllerID string, d device.Device)) func() {
	var cancels []func()
	for _, c := range s.List() {
		id := c.ID()
		cancels = append(cancels, c.OnDeviceChange(func(d device.Device) { fn(id, d) }))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// OnStateChange registers fn on every client in the set.
func (s *Set) OnStateChange(fn func(controllerID string, st State, msg string)) func() {
	var cancels []func()
	for _, c := range s.List() {
		id := c.ID()
		cancels = append(cancels, c.OnStateChange(func(st State, msg string) { fn(id, st, msg) }))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}
