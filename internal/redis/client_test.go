package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionKeys(t *testing.T) {
	assert.Equal(t, "device:kiosk-1:session", SessionKey("kiosk-1"))
	assert.Equal(t, "device:kiosk-1:session:changes", SessionChannel("kiosk-1"))
	assert.NotEqual(t, SessionKey("a"), SessionChannel("a"))
}
