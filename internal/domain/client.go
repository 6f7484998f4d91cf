package domain

import "strings"

// Platform — социальная платформа, с которой собирается контент.
type Platform string

const (
	// PlatformInstagram — платформа A (посты Instagram).
	PlatformInstagram Platform = "instagram"

	// PlatformTikTok — платформа B (видео TikTok).
	PlatformTikTok Platform = "tiktok"
)

// Platforms — все поддерживаемые платформы в фиксированном порядке.
var Platforms = []Platform{PlatformInstagram, PlatformTikTok}

// ClientRef — клиент (tenant), для которого собирается активность.
//
// ClientRef принадлежит внешнему реестру клиентов и не меняется
// в течение одного run.
type ClientRef struct {
	// ID — идентификатор клиента, нормализованный в верхний регистр.
	ID string `json:"id"`

	// Name — отображаемое имя клиента (используется в тексте уведомлений).
	Name string `json:"name,omitempty"`

	// InstagramEnabled — собирать ли Instagram для клиента.
	InstagramEnabled bool `json:"instagram_enabled"`

	// TikTokEnabled — собирать ли TikTok для клиента.
	TikTokEnabled bool `json:"tiktok_enabled"`

	// Destinations — чат-группы, куда отправляются уведомления.
	Destinations []string `json:"destinations,omitempty"`
}

// Enabled возвращает true, если платформа включена для клиента.
func (c *ClientRef) Enabled(p Platform) bool {
	switch p {
	case PlatformInstagram:
		return c.InstagramEnabled
	case PlatformTikTok:
		return c.TikTokEnabled
	default:
		return false
	}
}

// EnabledPlatforms возвращает список включённых платформ.
func (c *ClientRef) EnabledPlatforms() []Platform {
	var out []Platform
	for _, p := range Platforms {
		if c.Enabled(p) {
			out = append(out, p)
		}
	}
	return out
}

// DisplayName возвращает Name, а если оно пустое — ID.
func (c *ClientRef) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// NormalizeClientID приводит идентификатор клиента к каноничному виду.
// Идентификаторы регистронезависимы: "acme " и "ACME" — один клиент.
func NormalizeClientID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
