package accounts

import (
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	flashCookieName      = "accounts_flash"
	flashLevelCookieName = "accounts_flash_level"
)

// Flash levels used by the views to pick an alert style.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// SetFlash stores a one-shot message that survives exactly one redirect.
func SetFlash(c *fiber.Ctx, level, message string) {
	expires := time.Now().Add(time.Minute * 5)
	c.Cookie(&fiber.Cookie{
		Name:     flashCookieName,
		Value:    url.QueryEscape(message),
		Expires:  expires,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	c.Cookie(&fiber.Cookie{
		Name:     flashLevelCookieName,
		Value:    url.QueryEscape(level),
		Expires:  expires,
		HTTPOnly: true,
		SameSite: "Lax",
	})
}

// PopFlash returns the pending flash message, clearing it so it renders once.
func PopFlash(c *fiber.Ctx) (level, message string, ok bool) {
	raw := c.Cookies(flashCookieName)
	if raw == "" {
		return "", "", false
	}

	message, err := url.QueryUnescape(raw)
	if err != nil {
		message = raw
	}

	level, err = url.QueryUnescape(c.Cookies(flashLevelCookieName, FlashSuccess))
	if err != nil || level == "" {
		level = FlashSuccess
	}

	expireCookie(c, flashCookieName)
	expireCookie(c, flashLevelCookieName)

	return level, message, true
}

// FlashViewContext merges the pending flash message into view data.
func FlashViewContext(c *fiber.Ctx, data fiber.Map) fiber.Map {
	if data == nil {
		data = fiber.Map{}
	}

	if level, message, ok := PopFlash(c); ok {
		data["flash_level"] = level
		data["flash_message"] = message
	}

	return data
}

func expireCookie(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		SameSite: "Lax",
	})
}
