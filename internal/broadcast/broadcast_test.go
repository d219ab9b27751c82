package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletap/internal/model"
)

func staffPrincipal(restaurantID string) model.Principal {
	return model.Principal{Kind: model.PrincipalStaff, UserID: "u1", RestaurantID: restaurantID}
}

func guestPrincipal(restaurantID string, table int) model.Principal {
	return model.Principal{Kind: model.PrincipalGuest, RestaurantID: restaurantID, TableNumber: &table}
}

func TestAuthorize(t *testing.T) {
	cases := []struct {
		name      string
		principal model.Principal
		channel   string
		want      bool
	}{
		{"staff own restaurant", staffPrincipal("r1"), "restaurant:r1", true},
		{"staff other restaurant", staffPrincipal("r1"), "restaurant:r2", false},
		{"staff any table in own restaurant", staffPrincipal("r1"), "table:r1:7", true},
		{"staff table in other restaurant", staffPrincipal("r1"), "table:r2:7", false},
		{"guest own table", guestPrincipal("r1", 7), "table:r1:7", true},
		{"guest other table", guestPrincipal("r1", 7), "table:r1:8", false},
		{"guest restaurant channel denied", guestPrincipal("r1", 7), "restaurant:r1", false},
		{"guest cross-tenant table", guestPrincipal("r1", 7), "table:r2:7", false},
		{"guest cross-tenant restaurant", guestPrincipal("r1", 7), "restaurant:r2", false},
		{"malformed channel", staffPrincipal("r1"), "orders:r1", false},
		{"non-numeric table", guestPrincipal("r1", 7), "table:r1:seven", false},
		{"empty channel", staffPrincipal("r1"), "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Authorize(tc.principal, tc.channel))
		})
	}
}

func TestChannels(t *testing.T) {
	takeaway := model.Order{ID: "o1", RestaurantID: "r1"}
	assert.Equal(t, []string{"restaurant:r1"}, Channels(takeaway))

	table := 4
	dineIn := model.Order{ID: "o2", RestaurantID: "r1", TableNumber: &table}
	assert.Equal(t, []string{"restaurant:r1", "table:r1:4"}, Channels(dineIn))
}

func TestMemoryHub_FanOut(t *testing.T) {
	hub := NewMemoryHub()

	restCh, cancelRest := hub.Subscribe("restaurant:r1")
	defer cancelRest()
	tableCh, cancelTable := hub.Subscribe("table:r1:4")
	defer cancelTable()
	otherCh, cancelOther := hub.Subscribe("restaurant:r2")
	defer cancelOther()

	table := 4
	change := StateChanged{
		Order:      model.Order{ID: "o1", RestaurantID: "r1", TableNumber: &table},
		Event:      model.EventPaymentSucceeded,
		OccurredAt: time.Now(),
	}
	require.NoError(t, hub.Publish(context.Background(), change))

	select {
	case got := <-restCh:
		assert.Equal(t, "o1", got.Order.ID)
	default:
		t.Fatal("restaurant channel did not receive the change")
	}

	select {
	case got := <-tableCh:
		assert.Equal(t, "o1", got.Order.ID)
	default:
		t.Fatal("table channel did not receive the change")
	}

	// No cross-tenant leak.
	select {
	case <-otherCh:
		t.Fatal("restaurant:r2 must not receive r1 changes")
	default:
	}
}

func TestMemoryHub_CancelStopsDelivery(t *testing.T) {
	hub := NewMemoryHub()

	ch, cancel := hub.Subscribe("restaurant:r1")
	cancel()
	cancel() // safe to call twice

	require.NoError(t, hub.Publish(context.Background(), StateChanged{
		Order: model.Order{ID: "o1", RestaurantID: "r1"},
	}))

	_, open := <-ch
	assert.False(t, open)
}
