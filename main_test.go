package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntList(t *testing.T) {
	got, err := parseIntList("1, 2,3")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	got, err = parseIntList("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseIntList("1,two")
	assert.Error(t, err)
}

func TestParseKVList(t *testing.T) {
	got, err := parseKVList("company_id=806724, record_id=abc")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"company_id": "806724", "record_id": "abc"}, got)

	got, err = parseKVList("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = parseKVList("novalue")
	assert.Error(t, err)
}

func TestRequireTenant(t *testing.T) {
	assert.NoError(t, requireTenant("n1.yclients.com", 1))
	assert.Error(t, requireTenant("", 1))
	assert.Error(t, requireTenant("n1.yclients.com", 0))
}
