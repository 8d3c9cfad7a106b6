// News feed: a small rolling window of generated headlines and system
// notices. Old entries fall off the front.
package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewsKind is the tone of a feed entry.
type NewsKind string

const (
	NewsPositive NewsKind = "positive"
	NewsNegative NewsKind = "negative"
	NewsNeutral  NewsKind = "neutral"
)

// ParseNewsKind validates a generated tone, defaulting to neutral.
func ParseNewsKind(s string) NewsKind {
	switch NewsKind(strings.ToLower(strings.TrimSpace(s))) {
	case NewsPositive:
		return NewsPositive
	case NewsNegative:
		return NewsNegative
	}
	return NewsNeutral
}

// News is one feed entry.
type News struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Kind      NewsKind  `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// News returns the feed, oldest first.
func (c *City) News() []News {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]News(nil), c.news...)
}

// AddNews appends a generated headline to the feed.
func (c *City) AddNews(text string, kind NewsKind) News {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushNews(text, kind)
}

// pushNews appends an entry and evicts the oldest past the cap. Caller
// holds the lock.
func (c *City) pushNews(text string, kind NewsKind) News {
	n := News{
		ID:        uuid.NewString(),
		Text:      text,
		Kind:      kind,
		Timestamp: c.clock.Now(),
	}
	c.news = append(c.news, n)
	if limit := c.bal.NewsCap; limit > 0 && len(c.news) > limit {
		c.news = c.news[len(c.news)-limit:]
	}
	return n
}
