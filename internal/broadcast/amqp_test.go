package broadcast

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"tabletap/internal/model"
)

// A broadcaster whose connection is gone must fail every publisher with an
// error while the reconnect loop runs, without racing on the connection
// fields.
func TestAMQPBroadcaster_ConcurrentPublishWithoutConnection(t *testing.T) {
	b := &AMQPBroadcaster{url: "amqp://127.0.0.1:1"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Publish(context.Background(), StateChanged{
				Order: model.Order{ID: "ord-1", RestaurantID: "r1"},
				Event: model.EventStaffSetStatus,
			})
			assert.Error(t, err)
		}()
	}
	wg.Wait()
}
