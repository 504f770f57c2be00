package service

import "sync"

// queueLocks — пер-очередные мьютексы. Сериализуют операции чтения-изменения-записи
// в пределах одной очереди; операции над разными очередями друг друга не блокируют.
type queueLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newQueueLocks() *queueLocks {
	return &queueLocks{locks: make(map[uint]*sync.Mutex)}
}

// Lock захватывает мьютекс очереди и возвращает функцию освобождения.
func (q *queueLocks) Lock(queueID uint) func() {
	q.mu.Lock()
	l, ok := q.locks[queueID]
	if !ok {
		l = &sync.Mutex{}
		q.locks[queueID] = l
	}
	q.mu.Unlock()

	l.Lock()
	return l.Unlock
}
