package gesture

type Zone int

const (
	ZoneLeft Zone = iota
	ZoneRight
)

// ZoneAt maps a tap x coordinate on a card of the given width to a hot-zone.
func ZoneAt(x, cardWidth float64) Zone {
	if x < cardWidth/2 {
		return ZoneLeft
	}
	return ZoneRight
}

// PhotoCursor tracks which photo of the current profile is shown. It is
// independent from the discovery queue.
type PhotoCursor struct {
	index int
	count int
}

func NewPhotoCursor(count int) *PhotoCursor {
	c := &PhotoCursor{}
	c.Reset(count)
	return c
}

func (c *PhotoCursor) Index() int { return c.index }

func (c *PhotoCursor) Count() int { return c.count }

// Tap moves one photo towards the tapped side, clamped to [0, count-1].
func (c *PhotoCursor) Tap(zone Zone) int {
	switch zone {
	case ZoneLeft:
		if c.index > 0 {
			c.index--
		}
	case ZoneRight:
		if c.index < c.count-1 {
			c.index++
		}
	}
	return c.index
}

// Reset is called whenever a new profile comes on screen.
func (c *PhotoCursor) Reset(count int) {
	if count < 0 {
		count = 0
	}
	c.count = count
	c.index = 0
}
