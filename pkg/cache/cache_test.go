package cache

import (
	"testing"
	"time"
)

func TestInMemoryCache_ExpiryAndSnapshot(t *testing.T) {
	c := NewInMemoryCache[string, int](10 * time.Second)
	defer c.Close()

	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	c.SetNowFunc(func() time.Time { return now })

	c.Set("BTC-ETH", 1, 0)
	c.Set("BTC-LTC", 2, time.Second)

	if v, ok := c.Get("BTC-ETH"); !ok || v != 1 {
		t.Fatalf("期望命中 BTC-ETH=1，得到 %v %v", v, ok)
	}

	now = now.Add(2 * time.Second)
	if _, ok := c.Get("BTC-LTC"); ok {
		t.Fatalf("BTC-LTC 应已过期")
	}

	snap := c.Snapshot()
	if len(snap) != 1 || snap["BTC-ETH"] != 1 {
		t.Fatalf("快照应只包含未过期项，得到 %v", snap)
	}

	c.cleanup()
	if c.Size() != 1 {
		t.Fatalf("清理后应剩 1 项，得到 %d", c.Size())
	}
}
