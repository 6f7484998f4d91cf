package domain

import "time"

// Counts — счётчики контента клиента по платформам.
type Counts struct {
	Instagram int `json:"instagram"`
	TikTok    int `json:"tiktok"`
}

// Get возвращает счётчик для платформы.
func (c Counts) Get(p Platform) int {
	switch p {
	case PlatformInstagram:
		return c.Instagram
	case PlatformTikTok:
		return c.TikTok
	default:
		return 0
	}
}

// Set устанавливает счётчик для платформы.
func (c *Counts) Set(p Platform, v int) {
	switch p {
	case PlatformInstagram:
		c.Instagram = v
	case PlatformTikTok:
		c.TikTok = v
	}
}

// ContentItem — единица собранного контента (пост или видео).
// Используется только для человекочитаемого текста уведомлений.
type ContentItem struct {
	Platform    Platform  `json:"platform"`
	ID          string    `json:"id"`
	URL         string    `json:"url,omitempty"`
	Caption     string    `json:"caption,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}
