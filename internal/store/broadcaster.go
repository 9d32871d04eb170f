package store

import "sync"

// broadcaster 把最新的快照推送给所有订阅者。
// 每个订阅者只有一个槽位，新快照会替换未读的旧快照，写入方永远不会被慢读者阻塞。
type broadcaster[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]chan T
}

func newBroadcaster[T any]() *broadcaster[T] {
	return &broadcaster[T]{subs: make(map[int]chan T)}
}

func (b *broadcaster[T]) subscribe(initial T) (<-chan T, func()) {
	ch := make(chan T, 1)
	ch <- initial

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *broadcaster[T]) publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		// 丢弃未读的旧值
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}
