package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractOwnerFromChannel(t *testing.T) {
	assert.Equal(t, "alice", extractOwnerFromChannel("vault:events:alice"))
	assert.Equal(t, "", extractOwnerFromChannel("vault:events"))
	assert.Equal(t, "", extractOwnerFromChannel("workflow:events:alice"))
	assert.Equal(t, "", extractOwnerFromChannel("vault:other:alice"))
}
