package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	require.NoError(t, Initialize())

	assert.Equal(t, "Product not found", T("en", KeyProductNotFound))
	assert.Equal(t, "找不到商品", T("zh_TW", KeyProductNotFound))
	assert.Equal(t, "Insufficient inventory: requested 30, available 5", T("en", KeyInventoryInsufficient, 30, 5))
}

func TestTranslateFallsBackToDefault(t *testing.T) {
	require.NoError(t, Initialize())

	assert.Equal(t, "Store not found", T("fr", KeyStoreNotFound))
	assert.Equal(t, "unknown.key", T("en", "unknown.key"))
	assert.ElementsMatch(t, []string{"en", "zh_TW"}, GetSupportedLanguages())
}
