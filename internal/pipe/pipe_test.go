package pipe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipe(t *testing.T) {
	a, b := New(2)
	ctx := context.Background()

	require.NoError(t, a.WriteMessage(ctx, []byte("1")))
	require.NoError(t, a.WriteMessage(ctx, []byte("2")))

	// full buffer honors the context
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, a.WriteMessage(tctx, []byte("3")), context.DeadlineExceeded)

	msg, err := b.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", string(msg))
	msg, err = b.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "2", string(msg))

	require.NoError(t, b.WriteMessage(ctx, []byte("back")))
	msg, err = a.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "back", string(msg))

	require.NoError(t, b.Close())
	_, err = a.ReadMessage(ctx)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, a.WriteMessage(ctx, []byte("x")), ErrClosed)
}
