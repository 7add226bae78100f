package kvcache

import (
	"fmt"
	"path/filepath"
	"testing"
)

// Benchmark sizes to test different cache behaviors
var benchSizes = []int{100, 1_000, 10_000}

func BenchmarkCache_Get_Hit(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			cache := MustNew[int, int](size)
			for i := 0; i < size; i++ {
				cache.Set(i, i)
			}

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				cache.Get(i % size)
			}
		})
	}
}

func BenchmarkCache_Get_Miss(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			cache := MustNew[int, int](size)
			// leave cache empty

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				cache.Get(i)
			}
		})
	}
}

func BenchmarkCache_Set_New(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			cache := MustNew[int, int](size)

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				cache.Set(i%size, i)
			}
		})
	}
}

func BenchmarkStore_Put_InMemory(b *testing.B) {
	store := MustNewStore(WithCapacity(10_000))
	keys := make([]string, 10_000)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		store.Put(keys[i%len(keys)], "value")
	}
}

// BenchmarkStore_Put_Logged measures the full durable path: each Put
// appends, flushes and syncs one record before returning.
func BenchmarkStore_Put_Logged(b *testing.B) {
	store := MustNewStore(
		WithCapacity(10_000),
		WithLog(filepath.Join(b.TempDir(), "bench.log")),
	)
	defer store.Close()

	keys := make([]string, 10_000)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		store.Put(keys[i%len(keys)], "value")
	}
}

func BenchmarkStore_Get_Hit(b *testing.B) {
	store := MustNewStore(WithCapacity(10_000))
	keys := make([]string, 10_000)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		store.Put(keys[i], "value")
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		store.Get(keys[i%len(keys)])
	}
}

func BenchmarkSharded_Set_Parallel(b *testing.B) {
	cache := MustNewSharded[int, int](10_000)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			cache.Set(i%10_000, i)
			i++
		}
	})
}
