package usecase

import (
	"context"
	"sync"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
	"github.com/arklim/wearable-stream-broker/internal/repository"
)

// Shared mocks implementing the ports the services depend on.

type connMock struct {
	mu      sync.Mutex
	open    bool
	sendErr error
	sent    []any
}

func newConnMock() *connMock {
	return &connMock{open: true}
}

func (c *connMock) Send(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *connMock) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *connMock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

func (c *connMock) sentMessages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

type appDirectoryMock struct {
	mu    sync.Mutex
	apps  map[string]*domain.App
	err   error
	calls int
	hook  func(call int)
}

func (m *appDirectoryMock) GetApp(_ context.Context, packageName string) (*domain.App, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	hook := m.hook
	err := m.err
	app := m.apps[packageName]
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, repository.ErrNotFound
	}
	return app, nil
}

type userStoreMock struct {
	mu        sync.Mutex
	subs      map[string]map[string]domain.RateTier
	effective map[string]domain.RateTier
	last      map[string]domain.LocationSample

	subsErr      error
	setSubErr    error
	removeSubErr error
	effErr       error
	setEffErr    error
	lastErr      error
	setLastErr   error

	effectiveSets int
}

func newUserStoreMock() *userStoreMock {
	return &userStoreMock{
		subs:      make(map[string]map[string]domain.RateTier),
		effective: make(map[string]domain.RateTier),
		last:      make(map[string]domain.LocationSample),
	}
}

func (m *userStoreMock) LocationSubscriptions(_ context.Context, userID string) (map[string]domain.RateTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subsErr != nil {
		return nil, m.subsErr
	}
	out := make(map[string]domain.RateTier, len(m.subs[userID]))
	for pkg, rate := range m.subs[userID] {
		out[pkg] = rate
	}
	return out, nil
}

func (m *userStoreMock) SetLocationSubscription(_ context.Context, userID, packageName string, rate domain.RateTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setSubErr != nil {
		return m.setSubErr
	}
	if m.subs[userID] == nil {
		m.subs[userID] = make(map[string]domain.RateTier)
	}
	m.subs[userID][packageName] = rate
	return nil
}

func (m *userStoreMock) RemoveLocationSubscription(_ context.Context, userID, packageName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeSubErr != nil {
		return m.removeSubErr
	}
	if _, ok := m.subs[userID][packageName]; !ok {
		return repository.ErrNotFound
	}
	delete(m.subs[userID], packageName)
	return nil
}

func (m *userStoreMock) EffectiveRate(_ context.Context, userID string) (domain.RateTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.effErr != nil {
		return "", m.effErr
	}
	rate, ok := m.effective[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return rate, nil
}

func (m *userStoreMock) SetEffectiveRate(_ context.Context, userID string, rate domain.RateTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setEffErr != nil {
		return m.setEffErr
	}
	m.effective[userID] = rate
	m.effectiveSets++
	return nil
}

func (m *userStoreMock) LastLocation(_ context.Context, userID string) (*domain.LocationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastErr != nil {
		return nil, m.lastErr
	}
	sample, ok := m.last[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sample, nil
}

func (m *userStoreMock) SetLastLocation(_ context.Context, userID string, sample domain.LocationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setLastErr != nil {
		return m.setLastErr
	}
	m.last[userID] = sample
	return nil
}

func (m *userStoreMock) rateFor(userID, packageName string) (domain.RateTier, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rate, ok := m.subs[userID][packageName]
	return rate, ok
}

type locationCacheMock struct {
	mu      sync.Mutex
	samples map[string]domain.LocationSample
	getErr  error
	setErr  error
	deletes int
}

func newLocationCacheMock() *locationCacheMock {
	return &locationCacheMock{samples: make(map[string]domain.LocationSample)}
}

func (m *locationCacheMock) Get(_ context.Context, sessionID string) (*domain.LocationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	sample, ok := m.samples[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sample, nil
}

func (m *locationCacheMock) Set(_ context.Context, sessionID string, sample domain.LocationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.samples[sessionID] = sample
	return nil
}

func (m *locationCacheMock) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.samples, sessionID)
	m.deletes++
	return nil
}

type eventsMock struct {
	mu            sync.Mutex
	subscriptions []domain.SubscriptionUpdatedEvent
	sessions      []domain.SessionEndedEvent
	streams       []domain.StreamStateChangedEvent
}

func (m *eventsMock) PublishSubscriptionUpdated(_ context.Context, event domain.SubscriptionUpdatedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, event)
	return nil
}

func (m *eventsMock) PublishSessionEnded(_ context.Context, event domain.SessionEndedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, event)
	return nil
}

func (m *eventsMock) PublishStreamStateChanged(_ context.Context, event domain.StreamStateChangedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = append(m.streams, event)
	return nil
}

func (m *eventsMock) subscriptionEvents() []domain.SubscriptionUpdatedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SubscriptionUpdatedEvent(nil), m.subscriptions...)
}

func (m *eventsMock) sessionEvents() []domain.SessionEndedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SessionEndedEvent(nil), m.sessions...)
}

type locationNotifierMock struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *locationNotifierMock) OnSubscriptionChange(context.Context, *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func (m *locationNotifierMock) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
