package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/radicai/ad-agent-api/pkg/models"
)

func record(id string) models.RequestMetrics {
	return models.RequestMetrics{RequestID: id, CampaignID: "cmp_" + id}
}

func TestRequestLog_RingDropsOldest(t *testing.T) {
	l := NewRequestLog(3)
	for i := 1; i <= 5; i++ {
		l.Add(record(fmt.Sprint(i)))
	}

	if l.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", l.Len())
	}
	got := l.Recent(0)
	want := []string{"3", "4", "5"}
	for i, m := range got {
		if m.RequestID != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], m.RequestID)
		}
	}
}

func TestRequestLog_RecentN(t *testing.T) {
	l := NewRequestLog(10)
	for i := 1; i <= 4; i++ {
		l.Add(record(fmt.Sprint(i)))
	}

	got := l.Recent(2)
	if len(got) != 2 || got[0].RequestID != "3" || got[1].RequestID != "4" {
		t.Errorf("unexpected recent entries: %+v", got)
	}
	if len(l.Recent(50)) != 4 {
		t.Error("n larger than the log should return everything")
	}

	got[0].RequestID = "changed"
	if l.Recent(2)[0].RequestID != "3" {
		t.Error("Recent must return a copy")
	}
}

func TestRequestLog_Find(t *testing.T) {
	l := NewRequestLog(5)
	l.Add(record("a"))
	l.Add(record("b"))

	m, ok := l.Find("a")
	if !ok || m.CampaignID != "cmp_a" {
		t.Errorf("expected to find a, got %+v (ok=%v)", m, ok)
	}
	if _, ok := l.Find("missing"); ok {
		t.Error("expected missing id not to be found")
	}
}

func TestRequestLog_DefaultCapacity(t *testing.T) {
	l := NewRequestLog(0)
	if l.maxEntries != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, l.maxEntries)
	}
}

func TestRequestLog_Subscribe(t *testing.T) {
	l := NewRequestLog(5)
	ch := l.Subscribe()

	l.Add(record("live"))

	select {
	case m := <-ch:
		if m.RequestID != "live" {
			t.Errorf("expected live, got %s", m.RequestID)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive record")
	}

	l.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
	l.Add(record("after"))
}
