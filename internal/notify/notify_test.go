package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	calls []string
	err   error
}

func (r *recordingSink) Notify(ctx context.Context, level Level, message string, fields map[string]any) error {
	r.calls = append(r.calls, message)
	return r.err
}
func (r *recordingSink) Close() {}

func TestMultiFansOutToEverySink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := NewMulti(a, b, nil)

	err := m.Notify(context.Background(), LevelWarn, "hello", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"hello"}, a.calls)
	require.Equal(t, []string{"hello"}, b.calls)
}

func TestMultiReturnsFirstError(t *testing.T) {
	a := &recordingSink{err: errors.New("boom")}
	b := &recordingSink{}
	m := NewMulti(a, b)

	err := m.Notify(context.Background(), LevelError, "oops", nil)
	require.Error(t, err)
	require.Equal(t, []string{"oops"}, b.calls, "later sinks still run even if an earlier one fails")
}

func TestNopDiscardsEverything(t *testing.T) {
	var n Nop
	require.NoError(t, n.Notify(context.Background(), LevelInfo, "ignored", nil))
}
