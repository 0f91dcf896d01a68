package mocks

import (
	"context"

	"github.com/falmar/swarmman/internal/notify"
	"github.com/stretchr/testify/mock"
)

var _ notify.Notifier = (*MockNotifier)(nil)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}
