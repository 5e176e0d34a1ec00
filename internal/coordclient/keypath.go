// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package coordclient

import "path"

// Key layout under the configured root path, mirroring the teacher's
// path.Join-based scheme (server/storage/key_path.go) rather than a single
// flat namespace:
//
//	<root>/tables/<table>/ev            external view JSON payload
//	<root>/tables/<table>/ev_version    decimal EV version, kept in lockstep
//	<root>/instances/<id>/config        instance config JSON payload
//	<root>/instances/<id>/config_version decimal config version
//
// The *_version keys exist so FetchStats/FetchInstanceStats can batch a
// version-only probe across many tables or instances in one round trip
// without paying for the full payload of every one of them. Instance config
// payloads are always read as a full prefix scan (FetchInstanceConfigs) since
// every rebuild needs the whole set, so there is no single-instance payload
// key builder here — only the prefix and the version key.
const (
	tablesSegment     = "tables"
	instancesSegment  = "instances"
	evLeaf            = "ev"
	evVersionLeaf     = "ev_version"
	configLeaf        = "config"
	configVersionLeaf = "config_version"
)

func tableEVKey(root string, table string) string {
	return path.Join(root, tablesSegment, table, evLeaf)
}

func tableEVVersionKey(root string, table string) string {
	return path.Join(root, tablesSegment, table, evVersionLeaf)
}

func instanceConfigVersionKey(root string, instance string) string {
	return path.Join(root, instancesSegment, instance, configVersionLeaf)
}

func tablesPrefix(root string) string {
	return path.Join(root, tablesSegment) + "/"
}

func instancesPrefix(root string) string {
	return path.Join(root, instancesSegment) + "/"
}
