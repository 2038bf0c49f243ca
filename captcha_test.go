package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRecaptchaToken(t *testing.T) {
	token, err := extractRecaptchaToken(map[string]any{"gRecaptchaResponse": "tok-a"})
	require.NoError(t, err)
	assert.Equal(t, "tok-a", token)

	token, err = extractRecaptchaToken(map[string]any{"token": "tok-b"})
	require.NoError(t, err)
	assert.Equal(t, "tok-b", token)

	_, err = extractRecaptchaToken(map[string]any{"other": 1})
	assert.Error(t, err)
}

func TestIsFatalCaptchaError(t *testing.T) {
	assert.True(t, isFatalCaptchaError("ERROR_ZERO_BALANCE"))
	assert.True(t, isFatalCaptchaError("ERROR_KEY_DOES_NOT_EXIST"))
	assert.False(t, isFatalCaptchaError("ERROR_CAPTCHA_UNSOLVABLE"))
}

func TestHandleCaptchaErrorClassification(t *testing.T) {
	err := handleTwoCaptchaError("ERROR_ZERO_BALANCE", "no funds")
	assert.True(t, IsFatalError(err))

	err = handleTwoCaptchaError("ERROR_CAPTCHA_UNSOLVABLE", "try again")
	assert.False(t, IsFatalError(err))

	err = handleCapSolverError("ERROR_IP_BANNED", "banned")
	assert.True(t, IsFatalError(err))
}

func TestSolveConfirmationCaptchaNoProvider(t *testing.T) {
	t.Setenv("2CAP_KEY", "")
	t.Setenv("CAPSOLVER_KEY", "")
	_, err := SolveConfirmationCaptcha("sitekey", testConfirmToken)
	require.Error(t, err)
	assert.False(t, IsFatalError(err))
}
