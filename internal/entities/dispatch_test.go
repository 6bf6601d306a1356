package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpsPipelineIsStrictlyLinear(t *testing.T) {
	assert.Equal(t, OpsAssigned, NextOpsStatus(OpsUnassigned))
	assert.Equal(t, OpsPickedUp, NextOpsStatus(OpsAssigned))
	assert.Equal(t, OpsCompleted, NextOpsStatus(OpsPickedUp))
	assert.Equal(t, OpsStatus(""), NextOpsStatus(OpsCompleted))
}

func TestOpsStatusValidity(t *testing.T) {
	assert.True(t, OpsPickedUp.IsValid())
	assert.False(t, OpsStatus("en_route").IsValid())
	assert.True(t, OpsCompleted.IsTerminal())
	assert.False(t, OpsAssigned.IsTerminal())
}
