package loyalty

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ownerLocks 每個帳戶一個互斥鎖（權重 1 的 semaphore，等待時可被 ctx 取消）
//
// 沒有人持有或等待時移除，map 不會隨帳戶數量無限成長。
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*ownerLock)}
}

// acquire 取得 key 的鎖，返回釋放函數
func (l *ownerLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &ownerLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	if err := lock.sem.Acquire(ctx, 1); err != nil {
		l.unref(key, lock)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.sem.Release(1)
			l.unref(key, lock)
		})
	}, nil
}

func (l *ownerLocks) unref(key string, lock *ownerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *ownerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
