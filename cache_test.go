package pyjamaz

import (
	"os"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cfg := CacheConfig{Dir: t.TempDir(), MaxSizeBytes: 1 << 20, Enabled: true}
	cache, err := OpenCache(cfg)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	return cache
}

func TestCacheMissOnEmptyCache(t *testing.T) {
	cache := newTestCache(t)
	if _, ok := cache.Get("nonexistent", JPEG); ok {
		t.Error("expected a miss on an empty cache")
	}
}

func TestCachePutThenGet(t *testing.T) {
	cache := newTestCache(t)
	key := ComputeKey([]byte("input"), nil, nil, MetricNone, JPEG)
	cand := &Candidate{Format: JPEG, Encoded: []byte{1, 2, 3, 4}, FileSize: 4, Quality: 80, DiffScore: 0.01, PassedConstraints: true}

	cache.Put(key, cand)
	got, ok := cache.Get(key, JPEG)
	if !ok {
		t.Fatal("expected a hit after Put")
	}
	if got.Format != JPEG || got.Quality != 80 || len(got.Encoded) != 4 {
		t.Errorf("unexpected cached candidate %+v", got)
	}
	if !got.PassedConstraints {
		t.Error("expected PassedConstraints to round-trip through the cache")
	}
}

func TestCacheGetMissesOnWrongFormat(t *testing.T) {
	cache := newTestCache(t)
	key := ComputeKey([]byte("mismatched"), nil, nil, MetricNone, JPEG)
	cache.Put(key, &Candidate{Format: JPEG, Encoded: []byte{1, 2}, FileSize: 2})

	if _, ok := cache.Get(key, PNG); ok {
		t.Error("expected a miss when probing the same key under a different format")
	}
}

func TestCacheGetIncrementsAccessCountByOne(t *testing.T) {
	cache := newTestCache(t)
	key := ComputeKey([]byte("access-count"), nil, nil, MetricNone, PNG)
	cache.Put(key, &Candidate{Format: PNG, Encoded: []byte{9, 9}, FileSize: 2, PassedConstraints: true})

	raw, err := os.ReadFile(cache.metaPath(key))
	if err != nil {
		t.Fatalf("reading meta after Put: %v", err)
	}
	before, ok := parseMetadata(raw)
	if !ok {
		t.Fatal("expected to parse meta written by Put")
	}
	if before.accessCount != 0 {
		t.Errorf("expected access_count 0 right after Put, got %d", before.accessCount)
	}

	for i := int64(1); i <= 3; i++ {
		if _, ok := cache.Get(key, PNG); !ok {
			t.Fatalf("expected hit #%d", i)
		}
		raw, err := os.ReadFile(cache.metaPath(key))
		if err != nil {
			t.Fatalf("reading meta after Get #%d: %v", i, err)
		}
		m, ok := parseMetadata(raw)
		if !ok {
			t.Fatalf("expected to parse meta after Get #%d", i)
		}
		if m.accessCount != i {
			t.Errorf("Get #%d: expected access_count %d, got %d", i, i, m.accessCount)
		}
	}
}

func TestCacheGetPreservesFailedConstraints(t *testing.T) {
	cache := newTestCache(t)
	key := ComputeKey([]byte("failed"), nil, nil, MetricNone, WebP)
	cache.Put(key, &Candidate{Format: WebP, Encoded: []byte{1}, FileSize: 1, PassedConstraints: false})

	got, ok := cache.Get(key, WebP)
	if !ok {
		t.Fatal("expected a hit")
	}
	if got.PassedConstraints {
		t.Error("expected PassedConstraints=false to round-trip, not be coerced to true")
	}
}

func TestComputeKeyChangesWithConstraints(t *testing.T) {
	input := []byte("same bytes")
	k1 := ComputeKey(input, nil, nil, MetricNone, JPEG)
	maxBytes := uint64(1000)
	k2 := ComputeKey(input, &maxBytes, nil, MetricNone, JPEG)
	if k1 == k2 {
		t.Error("changing MaxBytes should change the cache key")
	}

	k3 := ComputeKey(input, nil, nil, MetricDSSIM, JPEG)
	if k1 == k3 {
		t.Error("changing Metric should change the cache key")
	}

	k4 := ComputeKey(input, nil, nil, MetricNone, PNG)
	if k1 == k4 {
		t.Error("changing Format should change the cache key")
	}
}

func TestComputeKeyStableForSameInputs(t *testing.T) {
	input := []byte("same bytes")
	maxBytes := uint64(500)
	maxDiff := 0.05
	k1 := ComputeKey(input, &maxBytes, &maxDiff, MetricDSSIM, AVIF)
	k2 := ComputeKey(input, &maxBytes, &maxDiff, MetricDSSIM, AVIF)
	if k1 != k2 {
		t.Error("ComputeKey should be deterministic for identical inputs")
	}
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	cache, err := OpenCache(CacheConfig{Enabled: false})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	key := ComputeKey([]byte("x"), nil, nil, MetricNone, JPEG)
	cache.Put(key, &Candidate{Format: JPEG, Encoded: []byte{1}})
	if _, ok := cache.Get(key, JPEG); ok {
		t.Error("a disabled cache should never hit")
	}
}

func TestCacheClearRemovesEntries(t *testing.T) {
	cache := newTestCache(t)
	key := ComputeKey([]byte("y"), nil, nil, MetricNone, PNG)
	cache.Put(key, &Candidate{Format: PNG, Encoded: []byte{1, 2}, FileSize: 2})
	if _, ok := cache.Get(key, PNG); !ok {
		t.Fatal("expected a hit before Clear")
	}
	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := cache.Get(key, PNG); ok {
		t.Error("expected a miss after Clear")
	}
}

func TestParseMetadataRejectsMalformed(t *testing.T) {
	if _, ok := parseMetadata([]byte("garbage without the expected fields")); ok {
		t.Error("expected parseMetadata to fail closed on malformed input")
	}
}

func TestEncodeDecodeMetadataRoundTrip(t *testing.T) {
	now := time.Now()
	m := cacheMetadata{
		format: WebP, quality: 42, diffScore: 0.125,
		passedConstraints: true, created: now, accessed: now, accessCount: 5,
	}
	raw := encodeMetadata(m)
	got, ok := parseMetadata(raw)
	if !ok {
		t.Fatal("expected successful parse of our own encoding")
	}
	if got.format != WebP || got.quality != 42 {
		t.Errorf("unexpected round-trip %+v", got)
	}
	if !got.passedConstraints || got.accessCount != 5 {
		t.Errorf("expected passed_constraints/access_count to round-trip, got %+v", got)
	}
	if got.created.Unix() != now.Unix() || got.accessed.Unix() != now.Unix() {
		t.Errorf("expected timestamps to round-trip at second precision, got %+v", got)
	}
}

func TestDefaultCacheConfigEnabled(t *testing.T) {
	cfg := DefaultCacheConfig()
	if !cfg.Enabled {
		t.Error("DefaultCacheConfig should be enabled by default")
	}
	if cfg.MaxSizeBytes <= 0 {
		t.Error("DefaultCacheConfig should have a positive size budget")
	}
}
