package externaldata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "formflow/pkg/domain"
)

type stubProvider struct {
	id    string
	data  any
	err   error
	delay time.Duration
}

func (s stubProvider) ID() string { return s.id }

func (s stubProvider) Fetch(context.Context, Request) (any, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.data, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOrchestratorFetch(t *testing.T) {
	req := Request{ApplicationID: id.NewApplicationID(), Applicant: "0101307789"}

	t.Run("collects every provider result keyed by id", func(t *testing.T) {
		o, err := NewOrchestrator(discardLogger(), nil,
			stubProvider{id: "a", data: map[string]any{"x": 1.0}},
			stubProvider{id: "b", data: map[string]any{"y": 2.0}},
		)
		require.NoError(t, err)

		set := o.Fetch(context.Background(), req, []string{"a", "b"})
		require.Len(t, set, 2)
		assert.Equal(t, StatusSuccess, set["a"].Status)
		assert.Equal(t, StatusSuccess, set["b"].Status)
		assert.Equal(t, map[string]any{"x": 1.0}, set["a"].Data)
	})

	t.Run("provider error becomes a failure result, not a round failure", func(t *testing.T) {
		o, err := NewOrchestrator(discardLogger(), nil,
			stubProvider{id: "ok", data: map[string]any{}},
			stubProvider{id: "broken", err: errors.New("registry timeout")},
		)
		require.NoError(t, err)

		set := o.Fetch(context.Background(), req, []string{"ok", "broken"})
		assert.Equal(t, StatusSuccess, set["ok"].Status)
		assert.Equal(t, StatusFailure, set["broken"].Status)
		assert.Contains(t, set["broken"].Reason, "registry timeout")

		_, visible := set.Data("broken")
		assert.False(t, visible, "failure must read as absent data")
	})

	t.Run("unknown ids mixed with in-flight fetches", func(t *testing.T) {
		o, err := NewOrchestrator(discardLogger(), nil,
			stubProvider{id: "slow1", data: map[string]any{}, delay: 20 * time.Millisecond},
			stubProvider{id: "slow2", data: map[string]any{}, delay: 20 * time.Millisecond},
		)
		require.NoError(t, err)

		set := o.Fetch(context.Background(), req, []string{"slow1", "ghost", "slow2"})
		require.Len(t, set, 3)
		assert.Equal(t, StatusSuccess, set["slow1"].Status)
		assert.Equal(t, StatusSuccess, set["slow2"].Status)
		assert.Equal(t, StatusFailure, set["ghost"].Status)
		assert.Equal(t, "unknown provider", set["ghost"].Reason)
	})

	t.Run("unknown provider id yields a failure entry", func(t *testing.T) {
		o, err := NewOrchestrator(discardLogger(), nil)
		require.NoError(t, err)

		set := o.Fetch(context.Background(), req, []string{"missing"})
		require.Contains(t, set, "missing")
		assert.Equal(t, StatusFailure, set["missing"].Status)
	})

	t.Run("duplicate provider registration fails", func(t *testing.T) {
		_, err := NewOrchestrator(discardLogger(), nil,
			stubProvider{id: "dup"},
			stubProvider{id: "dup"},
		)
		assert.Error(t, err)
	})
}

func TestSetData(t *testing.T) {
	set := Set{
		"good": {Status: StatusSuccess, Data: map[string]any{"a": 1.0}},
		"bad":  {Status: StatusFailure, Reason: "down"},
	}

	t.Run("success exposes data", func(t *testing.T) {
		data, ok := set.Data("good")
		require.True(t, ok)
		assert.Equal(t, map[string]any{"a": 1.0}, data)
	})

	t.Run("failure and absence both read as missing", func(t *testing.T) {
		_, ok := set.Data("bad")
		assert.False(t, ok)
		_, ok = set.Data("nonexistent")
		assert.False(t, ok)
	})
}
