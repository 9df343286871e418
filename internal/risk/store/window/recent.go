package window

import (
	"container/list"
	"sync"
	"time"
)

const defaultRecentSize = 256

// recentIndex remembers the last size distinct IPs to record a request, most
// recent first. It is what RecentPatterns samples, so the cross-IP read costs
// O(size) however many IPs are tracked.
type recentIndex struct {
	mu    sync.Mutex
	size  int
	order *list.List // of *recentEntry, front is newest
	byIP  map[string]*list.Element
}

type recentEntry struct {
	ip       string
	lastSeen time.Time
}

func newRecentIndex(size int) *recentIndex {
	return &recentIndex{
		size:  max(size, 1),
		order: list.New(),
		byIP:  make(map[string]*list.Element),
	}
}

func (x *recentIndex) touch(ip string, at time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if el, ok := x.byIP[ip]; ok {
		e := el.Value.(*recentEntry)
		if at.After(e.lastSeen) {
			e.lastSeen = at
		}
		x.order.MoveToFront(el)
		return
	}
	x.byIP[ip] = x.order.PushFront(&recentEntry{ip: ip, lastSeen: at})
	if x.order.Len() > x.size {
		oldest := x.order.Back()
		x.order.Remove(oldest)
		delete(x.byIP, oldest.Value.(*recentEntry).ip)
	}
}

// since returns the indexed IPs last seen at or after cutoff.
func (x *recentIndex) since(cutoff time.Time) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make([]string, 0, x.order.Len())
	for el := x.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*recentEntry)
		if !e.lastSeen.Before(cutoff) {
			out = append(out, e.ip)
		}
	}
	return out
}

func (x *recentIndex) expire(cutoff time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for el := x.order.Back(); el != nil; {
		prev := el.Prev()
		if e := el.Value.(*recentEntry); e.lastSeen.Before(cutoff) {
			x.order.Remove(el)
			delete(x.byIP, e.ip)
		}
		el = prev
	}
}

func (x *recentIndex) len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.order.Len()
}
