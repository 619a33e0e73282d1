package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jiyuchen1/AiHistory/internal/config"
	"github.com/jiyuchen1/AiHistory/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthDisabled(t *testing.T) {
	assert.Nil(t, newAuth(config.AuthConfig{}))
}

func TestNewAuthDoesNotLogTokens(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, log.Init("debug", "json", dir))

	auth := newAuth(config.AuthConfig{Enabled: true, Secret: "secret", TokenExpireHours: 1})
	require.NotNil(t, auth)
	log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, log.LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "aihistory token")
	// JWT 的头部以 base64 编码的 {"alg" 开头
	assert.False(t, strings.Contains(string(data), "eyJ"), "log must not contain a signed token")
}
