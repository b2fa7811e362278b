package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithTimeout_UsesCommandContext(t *testing.T) {
	t.Parallel()

	parent, parentCancel := context.WithCancel(context.Background())
	cmd := &cobra.Command{}
	cmd.SetContext(parent)

	ctx, cancel := contextWithTimeout(cmd, time.Second)
	defer cancel()

	parentCancel()

	select {
	case <-ctx.Done():
		require.ErrorIs(t, ctx.Err(), context.Canceled)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected derived context to cancel when parent command context is canceled")
	}
}

func TestContextWithTimeout_FallbackBackground(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{}
	ctx, cancel := contextWithTimeout(cmd, 25*time.Millisecond)
	defer cancel()

	select {
	case <-ctx.Done():
		require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("expected timeout")
	}
}

func TestContextWithTimeout_ZeroUsesDefault(t *testing.T) {
	t.Parallel()

	ctx, cancel := contextWithTimeout(&cobra.Command{}, 0)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(defaultCommandTimeout), deadline, 5*time.Second)
}

func TestOutHelpers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	out(&buf, "%s=%d", "retries", 3)
	outln(&buf)
	outln(&buf, "done")
	assert.Equal(t, "retries=3\ndone\n", buf.String())
}
