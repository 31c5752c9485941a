package pyjamaz

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// defaultCacheMaxBytes is the on-disk budget a Cache enforces via LRU
// eviction by file mtime when no explicit limit is given.
const defaultCacheMaxBytes int64 = 1 << 30 // 1 GiB

// hotIndexSize bounds the in-memory index of recently touched keys; it's
// never the source of truth (that's disk).
const hotIndexSize = 4096

// maxCacheEntries bounds Clear's directory walk.
const maxCacheEntries = 100_000

// maxEvictionsPerPut caps how many files one Put call will delete while
// bringing the cache back under budget, so a single oversized write can't
// stall behind an unbounded eviction sweep.
const maxEvictionsPerPut = 1000

// CacheConfig configures an on-disk content-addressed cache.
type CacheConfig struct {
	Dir          string
	MaxSizeBytes int64
	Enabled      bool
}

// DefaultCacheConfig resolves a cache directory the way XDG-aware CLI
// tools do: $XDG_CACHE_HOME/pyjamaz, falling back to $HOME/.cache/pyjamaz.
func DefaultCacheConfig() CacheConfig {
	dir := os.Getenv("XDG_CACHE_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".cache")
		} else {
			dir = os.TempDir()
		}
	}
	return CacheConfig{
		Dir:          filepath.Join(dir, "pyjamaz"),
		MaxSizeBytes: defaultCacheMaxBytes,
		Enabled:      true,
	}
}

// cacheEntry is the hot-index value: the size and last access time of an
// entry that Get or Put touched in this process. Get and eviction do not
// read it; every lookup goes to disk.
type cacheEntry struct {
	size     int64
	accessed time.Time
}

// Cache is a content-addressed store for completed optimization results,
// keyed by BLAKE3 over the input bytes and the constraint parameters that
// shaped the output. Entries live as a pair of sibling files on disk —
// `{hex(key)}.{ext}` (the format-specific extension of the cached
// candidate) and `{hex(key)}.meta`. The in-memory index records entries
// touched by Get and Put; lookups do not consult it.
type Cache struct {
	cfg    CacheConfig
	hot    *lru.Cache[string, cacheEntry]
	mu     sync.Mutex
	logger *logrus.Logger
}

// OpenCache creates the cache directory (if needed) and returns a ready
// Cache. A disabled config returns a Cache whose Get always misses and
// whose Put is a no-op.
func OpenCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, &Error{Kind: KindCache, Op: "OpenCache", Err: err}
		}
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = defaultCacheMaxBytes
	}
	hot, err := lru.New[string, cacheEntry](hotIndexSize)
	if err != nil {
		return nil, &Error{Kind: KindCache, Op: "OpenCache", Err: err}
	}
	return &Cache{cfg: cfg, hot: hot, logger: defaultLogger}, nil
}

// ComputeKey derives the cache key from the input bytes and every
// parameter that can change the output for one candidate format: the
// max size budget, the perceptual ceiling, the metric, and the format
// itself. Changing any of these must change the key, since they change
// what "the result for this input" means. Two different formats for the
// same input are two different cache entries, matching `get`/`put`
// being keyed per format rather than per job.
func ComputeKey(input []byte, maxBytes *uint64, maxDiff *float64, metric MetricKind, format Format) string {
	h := blake3.New(32, nil)
	h.Write(input)

	var numBuf [8]byte
	if maxBytes != nil {
		binary.LittleEndian.PutUint64(numBuf[:], *maxBytes)
		h.Write([]byte{1})
		h.Write(numBuf[:])
	} else {
		h.Write([]byte{0})
	}
	if maxDiff != nil {
		binary.LittleEndian.PutUint64(numBuf[:], uint64(*maxDiff*1e9))
		h.Write([]byte{1})
		h.Write(numBuf[:])
	} else {
		h.Write([]byte{0})
	}
	h.Write([]byte{byte(metric)})
	h.Write([]byte{byte(format)})
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) metaPath(key string) string {
	return filepath.Join(c.cfg.Dir, key[:2], key+".meta")
}

func (c *Cache) dataPath(key string, format Format) string {
	return filepath.Join(c.cfg.Dir, key[:2], key+"."+format.Ext())
}

// Get returns the cached candidate for (key, format), or (nil, false) on
// any miss — including a corrupt or partially written entry, which is
// treated as a miss rather than an error. A hit advances access_count by
// exactly one and bumps the persisted timestamp, which evictIfNeeded
// reads back via the file's mtime.
func (c *Cache) Get(key string, format Format) (*Candidate, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}
	dataPath := c.dataPath(key, format)
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, false
	}
	metaPath := c.metaPath(key)
	rawMeta, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, false
	}
	m, ok := parseMetadata(rawMeta)
	if !ok {
		return nil, false
	}

	now := time.Now()
	if now.Before(m.accessed) {
		now = m.accessed // timestamp is monotonic on touch
	}
	m.accessed = now
	m.accessCount++
	if err := os.WriteFile(metaPath, encodeMetadata(m), 0o644); err != nil {
		c.logger.WithError(err).Warn("cache: touch failed")
	}
	_ = os.Chtimes(dataPath, now, now)

	c.mu.Lock()
	c.hot.Add(key, cacheEntry{size: int64(len(data)), accessed: now})
	c.mu.Unlock()

	return &Candidate{
		Format:            m.format,
		Encoded:           data,
		FileSize:          uint64(len(data)),
		Quality:           m.quality,
		DiffScore:         m.diffScore,
		PassedConstraints: m.passedConstraints,
	}, true
}

// Put stores cand under key, best-effort: write failures are logged, not
// returned, since a cache miss on the next run is the only consequence.
// Eviction runs before the write, so a single oversized entry can't push
// the cache further over budget before room is made for it.
func (c *Cache) Put(key string, cand *Candidate) {
	if !c.cfg.Enabled || cand == nil {
		return
	}
	c.evictIfNeeded(int64(len(cand.Encoded)))

	dataPath := c.dataPath(key, cand.Format)
	metaPath := c.metaPath(key)
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		c.logger.WithError(err).Warn("cache: mkdir failed")
		return
	}
	if err := os.WriteFile(dataPath, cand.Encoded, 0o644); err != nil {
		c.logger.WithError(err).Warn("cache: write failed")
		return
	}
	now := time.Now()
	meta := encodeMetadata(cacheMetadata{
		format:            cand.Format,
		quality:           cand.Quality,
		diffScore:         cand.DiffScore,
		size:              int64(cand.FileSize),
		passedConstraints: cand.PassedConstraints,
		created:           now,
		accessed:          now,
		accessCount:       0,
	})
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		c.logger.WithError(err).Warn("cache: write meta failed")
		_ = os.Remove(dataPath)
		return
	}

	c.mu.Lock()
	c.hot.Add(key, cacheEntry{size: int64(cand.FileSize), accessed: now})
	c.mu.Unlock()
}

// Close is a no-op placeholder for symmetry with OpenCache; the cache
// holds no resources beyond the filesystem and its in-memory index.
func (c *Cache) Close() error { return nil }

// Clear removes every entry under the cache directory, bounded to
// maxCacheEntries files so a runaway directory can't make Clear itself
// unbounded work.
func (c *Cache) Clear() error {
	if !c.cfg.Enabled {
		return nil
	}
	entries, err := c.listEntries()
	if err != nil {
		return &Error{Kind: KindCache, Op: "Cache.Clear", Err: err}
	}
	if len(entries) > maxCacheEntries {
		entries = entries[:maxCacheEntries]
	}
	for _, e := range entries {
		_ = os.Remove(e.dataPath)
		_ = os.Remove(e.metaPath)
	}
	c.mu.Lock()
	c.hot.Purge()
	c.mu.Unlock()
	return nil
}

type diskEntry struct {
	dataPath, metaPath string
	size               int64
	mtime              time.Time
}

// listEntries discovers entries by their .meta sibling rather than a
// fixed data extension, since the data file's extension now varies by
// the cached candidate's format.
func (c *Cache) listEntries() ([]diskEntry, error) {
	var out []diskEntry
	err := filepath.Walk(c.cfg.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than failing the whole walk
		}
		if info.IsDir() || filepath.Ext(path) != ".meta" {
			return nil
		}
		base := path[:len(path)-len(".meta")]
		dataPath, size, ok := findDataFile(base)
		if !ok {
			return nil
		}
		out = append(out, diskEntry{dataPath: dataPath, metaPath: path, size: size, mtime: info.ModTime()})
		if len(out) >= maxCacheEntries {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// findDataFile locates the sibling data file for a given key base path,
// trying every known format extension since the extension isn't fixed.
func findDataFile(base string) (path string, size int64, ok bool) {
	for _, f := range DefaultFormats() {
		candidate := base + "." + f.Ext()
		if info, err := os.Stat(candidate); err == nil {
			return candidate, info.Size(), true
		}
	}
	return "", 0, false
}

// evictIfNeeded deletes the oldest entries (by mtime) until the total size
// plus incoming bytes fits the budget, or until maxEvictionsPerPut
// deletions have run.
func (c *Cache) evictIfNeeded(incoming int64) {
	entries, err := c.listEntries()
	if err != nil {
		c.logger.WithError(err).Warn("cache: eviction scan failed")
		return
	}
	var total int64
	for _, e := range entries {
		total += e.size
	}
	if total+incoming <= c.cfg.MaxSizeBytes {
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].mtime.Before(entries[j].mtime) })
	evicted := 0
	for _, e := range entries {
		if total+incoming <= c.cfg.MaxSizeBytes || evicted >= maxEvictionsPerPut {
			break
		}
		_ = os.Remove(e.dataPath)
		_ = os.Remove(e.metaPath)
		total -= e.size
		evicted++
	}
}

// cacheMetadata is the sidecar record stored next to each cached blob.
// passedConstraints, accessed and accessCount are the fields the
// cache-round-trip property depends on: a hit must report
// access_count+1 and never regress the timestamp.
type cacheMetadata struct {
	format            Format
	quality           uint8
	diffScore         float64
	size              int64
	passedConstraints bool
	created           time.Time
	accessed          time.Time
	accessCount       int64
}

// encodeMetadata writes a bounded newline-delimited key=value record.
func encodeMetadata(m cacheMetadata) []byte {
	return []byte(fmt.Sprintf(
		"format=%d\nquality=%d\ndiff_score=%.9f\nsize=%d\npassed_constraints=%t\ncreated=%d\naccessed=%d\naccess_count=%d\n",
		int(m.format), m.quality, m.diffScore, m.size, m.passedConstraints,
		m.created.Unix(), m.accessed.Unix(), m.accessCount,
	))
}

// parseMetadata decodes encodeMetadata's format, degrading to a miss
// (ok=false) on any malformed field rather than panicking.
func parseMetadata(data []byte) (cacheMetadata, bool) {
	fields := map[string]string{}
	line := make([]byte, 0, 64)
	flush := func() {
		if len(line) == 0 {
			return
		}
		for i, b := range line {
			if b == '=' {
				fields[string(line[:i])] = string(line[i+1:])
				break
			}
		}
		line = line[:0]
	}
	for _, b := range data {
		if b == '\n' {
			flush()
			continue
		}
		line = append(line, b)
	}
	flush()

	var m cacheMetadata
	var formatInt int
	if _, err := fmt.Sscanf(fields["format"], "%d", &formatInt); err != nil {
		return m, false
	}
	m.format = Format(formatInt)
	var quality int
	if _, err := fmt.Sscanf(fields["quality"], "%d", &quality); err != nil || quality < 0 || quality > 255 {
		return m, false
	}
	m.quality = uint8(quality)
	if _, err := fmt.Sscanf(fields["diff_score"], "%f", &m.diffScore); err != nil {
		return m, false
	}
	if _, err := fmt.Sscanf(fields["size"], "%d", &m.size); err != nil {
		return m, false
	}
	var passed bool
	if _, err := fmt.Sscanf(fields["passed_constraints"], "%t", &passed); err != nil {
		return m, false
	}
	m.passedConstraints = passed
	var createdUnix, accessedUnix, accessCount int64
	if _, err := fmt.Sscanf(fields["created"], "%d", &createdUnix); err != nil {
		return m, false
	}
	m.created = time.Unix(createdUnix, 0)
	if _, err := fmt.Sscanf(fields["accessed"], "%d", &accessedUnix); err != nil {
		return m, false
	}
	m.accessed = time.Unix(accessedUnix, 0)
	if _, err := fmt.Sscanf(fields["access_count"], "%d", &accessCount); err != nil {
		return m, false
	}
	m.accessCount = accessCount
	return m, true
}
