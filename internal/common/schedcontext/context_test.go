package schedcontext

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log := logrus.NewEntry(logrus.New()).WithField("foo", "bar")
	ctx := New(context.Background(), log)
	require.Equal(t, log, ctx.Log)
	require.Equal(t, context.Background(), ctx.Context)
}

func TestBackground(t *testing.T) {
	ctx := Background()
	require.Equal(t, context.Background(), ctx.Context)
	require.NotNil(t, ctx.Log)
}

func TestWithLogFields(t *testing.T) {
	ctx := WithLogFields(Background(), logrus.Fields{"query": 95, "run": "abc"})
	assert.Equal(t, logrus.Fields{"query": 95, "run": "abc"}, ctx.Log.Data)

	ctx = WithLogField(ctx, "stage", 3)
	assert.Equal(t, 3, ctx.Log.Data["stage"])
	assert.Equal(t, 95, ctx.Log.Data["query"])
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(Background(), 10*time.Millisecond)
	defer cancel()
	select {
	case <-time.After(5 * time.Second):
		t.Fatal("context not timed out")
	case <-ctx.Done():
	}
	assert.Equal(t, context.DeadlineExceeded, ctx.Err())
}

func TestErrGroup(t *testing.T) {
	ctx := WithLogField(Background(), "foo", "bar")
	g, gctx := ErrGroup(ctx)
	assert.Equal(t, ctx.Log, gctx.Log)
	g.Go(func() error { return nil })
	assert.NoError(t, g.Wait())
}
