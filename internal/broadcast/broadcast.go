package broadcast

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tabletap/internal/model"
)

// StateChanged is the fact published after every applied order transition.
type StateChanged struct {
	Order      model.Order     `json:"order"`
	Event      model.EventKind `json:"event"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Broadcaster fans StateChanged out to the order's channels. Publish is
// fire-and-forget with respect to the state machine: failures are logged,
// never escalated into transition failures.
type Broadcaster interface {
	Publish(ctx context.Context, change StateChanged) error
}

// Channels returns the channel names a change fans out to: always the
// restaurant channel, plus the table channel for dine-in orders.
func Channels(o model.Order) []string {
	chans := []string{RestaurantChannel(o.RestaurantID)}
	if o.TableNumber != nil {
		chans = append(chans, TableChannel(o.RestaurantID, *o.TableNumber))
	}
	return chans
}

func RestaurantChannel(restaurantID string) string {
	return "restaurant:" + restaurantID
}

func TableChannel(restaurantID string, tableNumber int) string {
	return fmt.Sprintf("table:%s:%d", restaurantID, tableNumber)
}

// Authorize decides whether a principal may subscribe to a channel.
// Restaurant channels are staff-only and tenant-scoped; table channels admit
// the restaurant's staff and the holder of that table's session token.
// Unknown channel shapes are denied.
func Authorize(p model.Principal, channel string) bool {
	parts := strings.Split(channel, ":")
	switch {
	case len(parts) == 2 && parts[0] == "restaurant":
		return p.Kind == model.PrincipalStaff && p.RestaurantID == parts[1]

	case len(parts) == 3 && parts[0] == "table":
		if p.RestaurantID != parts[1] {
			return false
		}
		if p.Kind == model.PrincipalStaff {
			return true
		}
		table, err := strconv.Atoi(parts[2])
		if err != nil {
			return false
		}
		return p.TableNumber != nil && *p.TableNumber == table

	default:
		return false
	}
}
