package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimLower(t *testing.T) {
	assert.Equal(t, []string{"selenium", "bot"}, DedupeAndTrimLower([]string{"  Selenium ", "bot", "BOT", "", "  "}))
	assert.Empty(t, DedupeAndTrimLower(nil))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"/wp-admin", "/manage"}, SplitList("/wp-admin, /manage ,/WP-ADMIN"))
	assert.Nil(t, SplitList("   "))
}

func TestContainsAny(t *testing.T) {
	match, ok := ContainsAny("Mozilla/5.0 HeadlessChrome/120", []string{"phantom", "headless"})
	assert.True(t, ok)
	assert.Equal(t, "headless", match)

	_, ok = ContainsAny("Mozilla/5.0 (Macintosh)", []string{"bot", "crawler"})
	assert.False(t, ok)
}
