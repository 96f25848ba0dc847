package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xxxsen/quizpack/internal/model"
)

// treeCache keeps validated model trees by raw text digest so a retried job
// never pays for the same document twice.
type treeCache struct {
	trees *expirable.LRU[string, *model.Package]
}

func newTreeCache(size int, ttl time.Duration) *treeCache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &treeCache{trees: expirable.NewLRU[string, *model.Package](size, nil, ttl)}
}

func cacheKey(rawText string) string {
	sum := sha256.Sum256([]byte(rawText))
	return hex.EncodeToString(sum[:])
}

func (c *treeCache) Get(rawText string) (*model.Package, bool) {
	if c == nil {
		return nil, false
	}
	pkg, ok := c.trees.Get(cacheKey(rawText))
	if !ok {
		return nil, false
	}
	return pkg.Clone(), true
}

func (c *treeCache) Add(rawText string, pkg *model.Package) {
	if c == nil || pkg == nil {
		return
	}
	c.trees.Add(cacheKey(rawText), pkg.Clone())
}

// spendLedger tracks what each job has spent across its attempts.
type spendLedger struct {
	mu    sync.Mutex
	spent *expirable.LRU[string, float64]
}

func newSpendLedger(size int, ttl time.Duration) *spendLedger {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &spendLedger{spent: expirable.NewLRU[string, float64](size, nil, ttl)}
}

func (l *spendLedger) Spent(jobID string) float64 {
	if jobID == "" {
		return 0
	}
	v, _ := l.spent.Get(jobID)
	return v
}

func (l *spendLedger) Charge(jobID string, cost float64) float64 {
	if jobID == "" {
		return cost
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v, _ := l.spent.Get(jobID)
	v += cost
	l.spent.Add(jobID, v)
	return v
}
