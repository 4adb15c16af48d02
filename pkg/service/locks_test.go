package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameLocks(t *testing.T) {
	l := newNameLocks()
	ctx := context.Background()

	release, err := l.acquire(ctx, "a")
	require.NoError(t, err)

	// 不同名字互不影响
	other, err := l.acquire(ctx, "b")
	require.NoError(t, err)
	other()

	// 同一个名字要等到释放
	got := make(chan func(), 1)
	go func() {
		r, err := l.acquire(ctx, "a")
		if err == nil {
			got <- r
		}
	}()
	select {
	case <-got:
		t.Fatal("second acquire must wait for release")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	release() // 重复释放无副作用

	select {
	case r := <-got:
		r()
	case <-time.After(time.Second):
		t.Fatal("second acquire never returned")
	}
	assert.Zero(t, l.len(), "released names must not leak")
}

func TestNameLocks_ContextCancel(t *testing.T) {
	l := newNameLocks()

	release, err := l.acquire(context.Background(), "a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Zero(t, l.len())
}
