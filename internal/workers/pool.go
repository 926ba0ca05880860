// Package workers - ограниченный пул обработчиков входящих событий.
// События одного чата всегда попадают к одному и тому же воркеру,
// поэтому обрабатываются строго по порядку: машина состояний не защищена
// блокировкой, и параллельная обработка событий одного пользователя
// порвала бы последовательность чтение-действие-запись состояния.
package workers

import (
	"sync"

	"go.uber.org/zap"
)

const queueSize = 64

// Pool - пул воркеров с сериализацией по ключу
type Pool struct {
	queues []chan func()
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool создает пул из count воркеров
func NewPool(count int, logger *zap.Logger) *Pool {
	if count < 1 {
		count = 1
	}

	p := &Pool{
		queues: make([]chan func(), count),
		logger: logger,
	}

	for i := range p.queues {
		p.queues[i] = make(chan func(), queueSize)
		p.wg.Add(1)
		go p.worker(i)
	}

	return p
}

// Submit ставит задачу в очередь. Задачи с одним ключом выполняются
// последовательно в порядке поступления.
func (p *Pool) Submit(key int64, task func()) {
	if key < 0 {
		key = -key
	}
	p.queues[key%int64(len(p.queues))] <- task
}

// Close дожидается выполнения всех поставленных задач
func (p *Pool) Close() {
	for _, queue := range p.queues {
		close(queue)
	}
	p.wg.Wait()
}

func (p *Pool) worker(index int) {
	defer p.wg.Done()

	for task := range p.queues[index] {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("паника в обработчике события",
						zap.Int("worker", index),
						zap.Any("panic", r),
					)
				}
			}()
			task()
		}()
	}
}
