package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObjectName(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.UTC)
	assert.Equal(t, "2024/05/06/070809.123-dialogue-history-2024-05-06.json", ObjectName(now, "dialogue-history-2024-05-06.json"))
}
