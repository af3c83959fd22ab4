// Package mocks provides testify mocks of the transport interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dmq-protocol/dmq-go/pkg/transport"
)

// MockChannel is a mock of transport.Channel.
type MockChannel struct {
	mock.Mock
}

// NewMockChannel creates a MockChannel and registers its expectation
// check with t's cleanup.
func NewMockChannel(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockChannel {
	m := &MockChannel{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Send provides a mock function with given fields: data
func (m *MockChannel) Send(data []byte) error {
	ret := m.Called(data)
	if rf, ok := ret.Get(0).(func([]byte) error); ok {
		return rf(data)
	}
	return ret.Error(0)
}

// Receive provides a mock function with given fields: timeout
func (m *MockChannel) Receive(timeout time.Duration) ([]byte, error) {
	ret := m.Called(timeout)
	if rf, ok := ret.Get(0).(func(time.Duration) ([]byte, error)); ok {
		return rf(timeout)
	}
	var data []byte
	if v := ret.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, ret.Error(1)
}

// Close provides a mock function with no fields
func (m *MockChannel) Close() error {
	ret := m.Called()
	return ret.Error(0)
}

// MockDialer is a mock of transport.Dialer.
type MockDialer struct {
	mock.Mock
}

// NewMockDialer creates a MockDialer and registers its expectation
// check with t's cleanup.
func NewMockDialer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockDialer {
	m := &MockDialer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Dial provides a mock function with given fields: ctx, endpoint
func (m *MockDialer) Dial(ctx context.Context, endpoint string) (transport.Channel, error) {
	ret := m.Called(ctx, endpoint)
	var ch transport.Channel
	if v := ret.Get(0); v != nil {
		ch = v.(transport.Channel)
	}
	return ch, ret.Error(1)
}

var (
	_ transport.Channel = (*MockChannel)(nil)
	_ transport.Dialer  = (*MockDialer)(nil)
)
