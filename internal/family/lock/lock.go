// Package lock serializes the read-validate-write sequence for paired
// activity timelines. Keys are transition keys ("dependent/kind").
package lock

import (
	"context"
	"slices"
	"sync"

	dErrors "cradle/pkg/domain-errors"
)

// Locker acquires every key or none. The returned release is safe to call
// more than once.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (release func(), err error)
}

// numShards bounds memory while keeping contention low under concurrent load.
const numShards = 128

// Sharded is an in-process Locker: keys hash onto a fixed array of mutexes.
// Distinct keys may share a shard, which only costs concurrency.
type Sharded struct {
	shards [numShards]sync.Mutex
}

func NewSharded() *Sharded {
	return &Sharded{}
}

func (s *Sharded) Lock(ctx context.Context, keys ...string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
	}

	// shards are taken in ascending order so overlapping batches cannot deadlock
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, int(hashKey(k)%numShards))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		s.shards[i].Lock()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			for j := len(idx) - 1; j >= 0; j-- {
				s.shards[idx[j]].Unlock()
			}
		})
	}

	if err := ctx.Err(); err != nil {
		release()
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
	}
	return release, nil
}

// hashKey is FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
