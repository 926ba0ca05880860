package workers

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPoolSerializesByKey(t *testing.T) {
	pool := NewPool(4, zap.NewNop())

	// Задачи одного ключа пишут в срез без блокировок:
	// нарушение сериализации проявилось бы гонкой или порядком
	var order []int
	for i := 0; i < 100; i++ {
		i := i
		pool.Submit(42, func() {
			order = append(order, i)
		})
	}
	pool.Close()

	assert.Len(t, order, 100)
	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestPoolRunsAllKeys(t *testing.T) {
	pool := NewPool(3, zap.NewNop())

	var count atomic.Int64
	for key := int64(-50); key < 50; key++ {
		pool.Submit(key, func() {
			count.Add(1)
		})
	}
	pool.Close()

	assert.Equal(t, int64(100), count.Load())
}

func TestPoolRecoversFromPanic(t *testing.T) {
	pool := NewPool(1, zap.NewNop())

	ran := false
	pool.Submit(1, func() {
		panic("ошибка обработчика")
	})
	pool.Submit(1, func() {
		ran = true
	})
	pool.Close()

	assert.True(t, ran)
}
