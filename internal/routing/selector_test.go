// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSelectorAlwaysHLC(t *testing.T) {
	s := NewDefaultSelector()
	s.Register("t_REALTIME")
	assert.False(t, s.ShouldUseLLC("t_REALTIME"))
}

func TestPercentageSelectorBoundaries(t *testing.T) {
	s := NewPercentageSelector(0.5)
	s.SetFraction("always-llc", 1)
	s.SetFraction("never-llc", 0)

	for i := 0; i < 20; i++ {
		assert.True(t, s.ShouldUseLLC("always-llc"))
		assert.False(t, s.ShouldUseLLC("never-llc"))
	}
}

func TestPercentageSelectorRegisterUsesDefault(t *testing.T) {
	s := NewPercentageSelector(1)
	s.Register("t_REALTIME")
	assert.True(t, s.ShouldUseLLC("t_REALTIME"))
}
