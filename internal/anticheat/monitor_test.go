package anticheat

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTerminator struct {
	mock.Mock
}

func (m *mockTerminator) Terminate(ctx context.Context, reason string) error {
	args := m.Called(ctx, reason)
	return args.Error(0)
}

func TestMonitor_LogOnlyNeverTerminates(t *testing.T) {
	term := new(mockTerminator)
	m := NewMonitor(Policy{Mode: ModeLogOnly}, &MemoryCounter{}, term, zerolog.Nop())

	for i := 1; i <= 5; i++ {
		d, err := m.Observe(context.Background(), Violation{Signal: SignalCopy})
		require.NoError(t, err)
		assert.Equal(t, ActionLogged, d.Action)
		assert.Equal(t, i, d.Count)
	}
	term.AssertNotCalled(t, "Terminate", mock.Anything, mock.Anything)
	assert.False(t, m.Stopped())
}

func TestMonitor_TerminateAfterN(t *testing.T) {
	term := new(mockTerminator)
	term.On("Terminate", mock.Anything, "Anti-cheat: exam tab was hidden (violation 3 of 3)").Return(nil).Once()
	m := NewMonitor(defaultPolicy, &MemoryCounter{}, term, zerolog.Nop())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := m.Observe(ctx, Violation{Signal: SignalFocusLost})
		require.NoError(t, err)
		assert.Equal(t, ActionLogged, d.Action)
	}

	d, err := m.Observe(ctx, Violation{Signal: SignalVisibilityHidden})
	require.NoError(t, err)
	assert.Equal(t, ActionTerminated, d.Action)
	assert.Contains(t, d.Reason, "exam tab was hidden")
	assert.True(t, m.Stopped())

	// Stopped monitors ignore everything.
	d, err = m.Observe(ctx, Violation{Signal: SignalPaste})
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, d.Action)
	term.AssertExpectations(t)
}

func TestMonitor_TerminateImmediately(t *testing.T) {
	term := new(mockTerminator)
	term.On("Terminate", mock.Anything, "Anti-cheat: developer tools detected").Return(nil).Once()
	m := NewMonitor(Policy{Mode: ModeTerminateImmediately}, &MemoryCounter{}, term, zerolog.Nop())

	d, err := m.Observe(context.Background(), Violation{Signal: SignalDevtoolsOpen})
	require.NoError(t, err)
	assert.Equal(t, ActionTerminated, d.Action)
	assert.Equal(t, 1, d.Count)
	term.AssertExpectations(t)
}

func TestMonitor_FailedTerminationKeepsMonitoring(t *testing.T) {
	term := new(mockTerminator)
	term.On("Terminate", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	term.On("Terminate", mock.Anything, mock.Anything).Return(nil).Once()
	m := NewMonitor(Policy{Mode: ModeTerminateImmediately}, &MemoryCounter{}, term, zerolog.Nop())

	_, err := m.Observe(context.Background(), Violation{Signal: SignalCopy})
	require.Error(t, err)
	assert.False(t, m.Stopped())

	d, err := m.Observe(context.Background(), Violation{Signal: SignalCopy})
	require.NoError(t, err)
	assert.Equal(t, ActionTerminated, d.Action)
	assert.True(t, m.Stopped())
}

func TestMonitor_UnknownSignal(t *testing.T) {
	counter := &MemoryCounter{}
	m := NewMonitor(defaultPolicy, counter, TerminatorFunc(func(context.Context, string) error {
		t.Fatal("must not terminate")
		return nil
	}), zerolog.Nop())

	d, err := m.Observe(context.Background(), Violation{Signal: "screenshot"})
	require.Error(t, err)
	assert.Equal(t, ActionIgnored, d.Action)

	n, _ := counter.Incr(context.Background())
	assert.Equal(t, 1, n, "unknown signals are not counted")
}

func TestMonitor_IgnoresAfterTermination(t *testing.T) {
	calls := 0
	counter := &MemoryCounter{}
	m := NewMonitor(Policy{Mode: ModeTerminateImmediately}, counter, TerminatorFunc(func(context.Context, string) error {
		calls++
		return nil
	}), zerolog.Nop())

	d, err := m.Observe(context.Background(), Violation{Signal: SignalPaste})
	require.NoError(t, err)
	assert.Equal(t, ActionTerminated, d.Action)

	d, err = m.Observe(context.Background(), Violation{Signal: SignalPaste})
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, d.Action)
	assert.Equal(t, 1, calls)

	n, _ := counter.Incr(context.Background())
	assert.Equal(t, 2, n, "ignored signals are not counted")
}
