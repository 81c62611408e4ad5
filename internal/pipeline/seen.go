package pipeline

import "container/list"

// SeenSet remembers dedup keys in insertion order and never holds more
// than its capacity: adding past the cap forgets the oldest key.
type SeenSet struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
	evicted  int
}

func NewSeenSet(capacity int) *SeenSet {
	if capacity < 1 {
		capacity = 1
	}
	return &SeenSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (s *SeenSet) Contains(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Add inserts key as the newest entry, evicting the oldest when full.
// Re-adding an existing key refreshes its position.
func (s *SeenSet) Add(key string) {
	if el, ok := s.index[key]; ok {
		s.order.MoveToBack(el)
		return
	}
	s.index[key] = s.order.PushBack(key)
	for s.order.Len() > s.capacity {
		front := s.order.Front()
		s.order.Remove(front)
		delete(s.index, front.Value.(string))
		s.evicted++
	}
}

func (s *SeenSet) Len() int {
	return s.order.Len()
}

func (s *SeenSet) Capacity() int {
	return s.capacity
}

// TakeEvicted reports how many keys were evicted since the last call.
func (s *SeenSet) TakeEvicted() int {
	n := s.evicted
	s.evicted = 0
	return n
}
