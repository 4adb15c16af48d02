package service

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// nameLocks 为每个 blob 名字提供一把互斥锁。
// 同一个名字的所有句柄共享缓存里的节点对象，所以同一时间只能有一个句柄
type nameLocks struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	sem  *semaphore.Weighted
	refs int // 持有或正在等待这把锁的调用方数量
}

func newNameLocks() *nameLocks {
	return &nameLocks{locks: make(map[string]*nameLock)}
}

// acquire 阻塞直到拿到 name 的锁或 ctx 结束。返回的 release 可以重复调用
func (l *nameLocks) acquire(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	nl, ok := l.locks[name]
	if !ok {
		nl = &nameLock{sem: semaphore.NewWeighted(1)}
		l.locks[name] = nl
	}
	nl.refs++
	l.mu.Unlock()

	if err := nl.sem.Acquire(ctx, 1); err != nil {
		l.put(name, nl)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			nl.sem.Release(1)
			l.put(name, nl)
		})
	}, nil
}

func (l *nameLocks) put(name string, nl *nameLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	nl.refs--
	if nl.refs == 0 {
		delete(l.locks, name)
	}
}

func (l *nameLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
