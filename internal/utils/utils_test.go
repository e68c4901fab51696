package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretBoxRoundTrip(t *testing.T) {
	box, err := NewSecretBox("passphrase")
	require.NoError(t, err)

	sealed, err := box.Seal("shpat_123")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "shpat_123")

	again, err := box.Seal("shpat_123")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "shpat_123", opened)

	other, err := NewSecretBox("another passphrase")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)

	_, err = box.Open("c2hvcnQ=")
	assert.Error(t, err)

	_, err = NewSecretBox("")
	assert.Error(t, err)
}

func TestHashJSONIgnoresMapOrder(t *testing.T) {
	a, err := HashJSON(map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := HashJSON(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	c, err := HashJSON(map[string]int{"a": 1, "b": 3})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestCustomValidators(t *testing.T) {
	type input struct {
		Domain   string `validate:"shop_domain"`
		Strategy string `validate:"allocation_strategy"`
		Status   string `validate:"product_status"`
	}

	assert.NoError(t, ValidateStruct(&input{Domain: "my-shop.myshopify.com", Strategy: "demand-based", Status: "ACTIVE"}))
	assert.NoError(t, ValidateStruct(&input{Domain: "My-Shop.myshopify.com"}))

	err := ValidateStruct(&input{Domain: "shop.example.com", Strategy: "random", Status: "LIVE"})
	require.Error(t, err)

	fields := map[string]string{}
	for _, e := range GetValidationErrors(err) {
		fields[e.Field] = e.Tag
	}
	assert.Equal(t, map[string]string{
		"domain":   "shop_domain",
		"strategy": "allocation_strategy",
		"status":   "product_status",
	}, fields)
}
