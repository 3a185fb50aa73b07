package chat

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/chatturn/store"
)

// DefaultTitle is the title of a conversation before its first user message.
const DefaultTitle = store.DefaultConversationTitle

const titleMaxRunes = 30

// Message id roles that are not message roles.
const roleSystemAugmentation = "system_aug"

// newMessageID builds "{conversation}_{role}_{unix seconds}_{short uuid}".
func newMessageID(conversationID, role string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d_%s", conversationID, role, now.Unix(), shortuuid.New())
}

// titleFrom derives a conversation title from the first user message.
func titleFrom(message string) string {
	if utf8.RuneCountInString(message) <= titleMaxRunes {
		return message
	}
	return string([]rune(message)[:titleMaxRunes]) + "..."
}

// clock hands out strictly increasing unix microsecond timestamps, so messages
// persisted within one turn keep their order even inside the same microsecond.
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func newClock(now func() time.Time) *clock {
	if now == nil {
		now = time.Now
	}
	return &clock{now: now}
}

// Next returns a timestamp later than both every earlier result and floor.
func (c *clock) Next(floor int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UnixMicro()
	if ts <= c.last {
		ts = c.last + 1
	}
	if ts <= floor {
		ts = floor + 1
	}
	c.last = ts
	return ts
}

// Time returns the wall-clock time of the clock.
func (c *clock) Time() time.Time {
	return c.now()
}
