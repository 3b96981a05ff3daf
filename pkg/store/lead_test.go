package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"Sent", "Failed-Send", "NotFound", "Failed-NewChat", "Error"} {
		s, err := ParseStatus(raw)
		assert.NoError(t, err)
		assert.Equal(t, Status(raw), s)
	}

	_, err := ParseStatus("sent")
	assert.Error(t, err)
	_, err = ParseStatus("Delivered")
	assert.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusSent.Terminal())
	assert.True(t, StatusNotFound.Terminal())
	assert.False(t, StatusFailedSend.Terminal())
	assert.False(t, StatusFailedNewChat.Terminal())
	assert.False(t, StatusError.Terminal())
}

func TestLeadKey(t *testing.T) {
	l := Lead{Phone: "+923001234567", Name: "Ayesha", Program: "Doctor of Medicine", Campus: "Lahore"}
	assert.Equal(t, LeadKey{Phone: "+923001234567", Program: "Doctor of Medicine", Campus: "Lahore"}, l.Key())
}
