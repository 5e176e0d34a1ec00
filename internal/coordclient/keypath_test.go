// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package coordclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyConstructionMirrorsLayout(t *testing.T) {
	assert.Equal(t, "/root/tables/foo_OFFLINE/ev", tableEVKey("/root", "foo_OFFLINE"))
	assert.Equal(t, "/root/tables/foo_OFFLINE/ev_version", tableEVVersionKey("/root", "foo_OFFLINE"))
	assert.Equal(t, "/root/instances/s1/config_version", instanceConfigVersionKey("/root", "s1"))
}

func TestPrefixesEndWithTrailingSlash(t *testing.T) {
	assert.Equal(t, "/root/tables/", tablesPrefix("/root"))
	assert.Equal(t, "/root/instances/", instancesPrefix("/root"))
}

func TestTableFromEVKeyRoundTrips(t *testing.T) {
	key := tableEVKey("/root", "foo_OFFLINE")
	assert.Equal(t, "foo_OFFLINE", tableFromEVKey("/root", key))
}

func TestTableFromEVKeyIgnoresNestedRoot(t *testing.T) {
	key := tableEVKey("/cluster/broker-router", "bar_REALTIME")
	assert.Equal(t, "bar_REALTIME", tableFromEVKey("/cluster/broker-router", key))
}
