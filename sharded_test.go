package kvcache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSharded_New(t *testing.T) {
	tests := map[string]struct {
		capacity    int
		shardCount  int
		expectError bool
	}{
		"valid": {
			capacity:   160,
			shardCount: 16,
		},
		"capacity below shard count": {
			capacity:   4,
			shardCount: 16,
		},
		"uneven split": {
			capacity:   100,
			shardCount: 16,
		},
		"zero capacity": {
			capacity:    0,
			shardCount:  16,
			expectError: true,
		},
		"zero shards": {
			capacity:    100,
			shardCount:  0,
			expectError: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := require.New(t)

			cache, err := NewShardedWithCount[string, int](tc.capacity, tc.shardCount)
			if tc.expectError {
				r.Error(err)
				r.Nil(cache)
				return
			}

			r.NoError(err)
			r.NotNil(cache)
			r.Equal(tc.capacity, cache.Capacity())
			r.Equal(tc.shardCount, cache.ShardCount())
		})
	}
}

func TestSharded_BasicOperations(t *testing.T) {
	r := require.New(t)
	cache := MustNewSharded[string, int](100)

	cache.Set("a", 1)
	cache.Set("b", 2)

	val, found := cache.Get("a")
	r.True(found)
	r.Equal(1, val)

	r.True(cache.Contains("b"))
	r.False(cache.Contains("z"))
	r.Equal(2, cache.Len())

	r.True(cache.Remove("a"))
	r.False(cache.Remove("a"))
	r.Equal(1, cache.Len())

	cache.Clear()
	r.Equal(0, cache.Len())
}

func TestSharded_SameKeySameShard(t *testing.T) {
	r := require.New(t)
	cache := MustNewSharded[string, int](100)

	// repeated operations on one key must always land on the same shard
	for i := 0; i < 50; i++ {
		cache.Set("stable", i)
	}
	val, found := cache.Get("stable")
	r.True(found)
	r.Equal(49, val)
	r.Equal(1, cache.Len())
}

func TestSharded_OnEvict(t *testing.T) {
	r := require.New(t)

	// one shard of capacity 1 makes eviction deterministic
	cache := MustNewShardedWithCount[string, int](1, 1)

	evicted := make(map[string]int)
	cache.OnEvict(func(key string, value int) {
		evicted[key] = value
	})

	cache.Set("a", 1)
	cache.Set("b", 2)

	r.Equal(map[string]int{"a": 1}, evicted)
}

func TestSharded_Concurrent(t *testing.T) {
	r := require.New(t)
	cache := MustNewSharded[int, int](10_000)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := g*1000 + i
				cache.Set(key, i)
				if v, found := cache.Get(key); !found || v != i {
					t.Errorf("lost update for %d", key)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	r.Equal(16*200, cache.Len())
}

func TestSharded_KeysCoverAllShards(t *testing.T) {
	r := require.New(t)
	cache := MustNewSharded[string, int](1000)

	want := make(map[string]bool)
	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("key-%d", i)
		cache.Set(k, i)
		want[k] = true
	}

	keys := cache.Keys()
	r.Len(keys, 100)
	for _, k := range keys {
		r.True(want[k])
	}
}
