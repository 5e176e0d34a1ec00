// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package coordclient

import (
	"context"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/brokerrouter/routingtable/internal/routing"
	"github.com/brokerrouter/routingtable/pkg/log"
)

// WatchLoop runs two etcd watches — one over the table key space, one over
// the instance key space — for the lifetime of ctx, driving notifier
// directly per event. It never trusts the watch event's payload for
// anything but the key: every online signal re-fetches from etcd before
// calling into notifier (a delete event goes straight to the offline
// callback), so a coalesced watch delivery (etcd may
// batch several PUTs into one event burst) can never leave the manager
// with a stale EV.
//
// This is the real-time push half of change delivery; Manager's coalesced
// ProcessExternalViewChange/ProcessInstanceConfigChange passes (driven by
// ChangeMediator on a periodic ticker, see cmd/router) are the reconciling
// safety net for watch events lost to a connection drop.
func WatchLoop(ctx context.Context, client *Client, notifier routing.ChangeNotifier) {
	tableWatch := client.etcd.Watch(ctx, tablesPrefix(client.rootPath), clientv3.WithPrefix())
	instanceWatch := client.etcd.Watch(ctx, instancesPrefix(client.rootPath), clientv3.WithPrefix())

	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-tableWatch:
			if !ok {
				return
			}
			handleTableEvents(ctx, client, notifier, resp)
		case resp, ok := <-instanceWatch:
			if !ok {
				return
			}
			if resp.Err() != nil {
				log.Error("instance watch error", zap.Error(resp.Err()))
				continue
			}
			if len(resp.Events) > 0 {
				notifier.OnInstanceConfigChange(ctx)
			}
		}
	}
}

func handleTableEvents(ctx context.Context, client *Client, notifier routing.ChangeNotifier, resp clientv3.WatchResponse) {
	if resp.Err() != nil {
		log.Error("table watch error", zap.Error(resp.Err()))
		return
	}
	for _, ev := range resp.Events {
		key := string(ev.Kv.Key)
		if !strings.HasSuffix(key, "/"+evLeaf) {
			// version-key churn is picked up by the coalesced reconcile
			// pass, not the real-time push path.
			continue
		}
		table := routing.TableName(tableFromEVKey(client.rootPath, key))

		if ev.Type == clientv3.EventTypeDelete {
			notifier.OnDataResourceOffline(ctx, table)
			continue
		}

		evPayload, err := client.FetchExternalView(ctx, table)
		if err != nil {
			log.Error("failed to fetch external view after watch event", zap.String("table", string(table)), zap.Error(err))
			continue
		}
		ics, err := client.FetchInstanceConfigs(ctx)
		if err != nil {
			log.Error("failed to fetch instance configs after watch event", zap.String("table", string(table)), zap.Error(err))
			continue
		}
		notifier.OnDataResourceOnline(ctx, table, evPayload, ics)
	}
}

func tableFromEVKey(root, key string) string {
	trimmed := strings.TrimPrefix(key, tablesPrefix(root))
	return strings.TrimSuffix(trimmed, "/"+evLeaf)
}
