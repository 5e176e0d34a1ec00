// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

// Package coordclient implements the routing package's CoordinatorClient
// against etcd, grounded on the teacher's server/etcdutil and
// server/storage idioms: a SlowLogTxn-style commit wrapper, path.Join key
// construction, and WithPrefix/WithRange/WithLimit scans in place of the
// teacher's cluster/schema/shard metadata reads.
package coordclient

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	etcdserverpb "go.etcd.io/etcd/api/v3/etcdserverpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/brokerrouter/routingtable/internal/routing"
	"github.com/brokerrouter/routingtable/pkg/coderr"
	"github.com/brokerrouter/routingtable/pkg/log"
)

var (
	// ErrEtcdGet wraps any failed etcd read.
	ErrEtcdGet = coderr.NewCodeError(coderr.Unavailable, "etcd get failed")
	// ErrEtcdTxnConflict is returned when a batched read transaction did
	// not succeed (should not happen for read-only transactions, kept for
	// parity with the teacher's SlowLogTxn contract).
	ErrEtcdTxnConflict = coderr.NewCodeError(coderr.Unavailable, "etcd transaction did not succeed")
	// ErrDecodePayload wraps a JSON decode failure on a stored value.
	ErrDecodePayload = coderr.NewCodeError(coderr.Internal, "failed to decode coordinator payload")
)

// Client is an etcd-backed routing.CoordinatorClient. External views and
// instance configs are stored as JSON at versioned keys (see keypath.go);
// this package never interprets the payload shape itself, only decodes it
// into the routing package's model types.
type Client struct {
	etcd           *clientv3.Client
	rootPath       string
	requestTimeout time.Duration
}

var _ routing.CoordinatorClient = (*Client)(nil)

// New builds a coordinator client against an already-connected etcd
// client, reading under rootPath.
func New(etcd *clientv3.Client, rootPath string, requestTimeout time.Duration) *Client {
	return &Client{etcd: etcd, rootPath: rootPath, requestTimeout: requestTimeout}
}

func (c *Client) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.requestTimeout)
}

// slowTxnThreshold matches the teacher's DefaultSlowRequestTime.
const slowTxnThreshold = time.Second

func (c *Client) commit(ctx context.Context, ops ...clientv3.Op) (*clientv3.TxnResponse, error) {
	start := time.Now()
	resp, err := c.etcd.Txn(ctx).Then(ops...).Commit()
	if cost := time.Since(start); cost > slowTxnThreshold {
		log.Warn("coordinator txn ran slow", zap.Duration("cost", cost), zap.Int("ops", len(ops)))
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !resp.Succeeded {
		return nil, ErrEtcdTxnConflict
	}
	return resp, nil
}

// FetchExternalView implements routing.CoordinatorClient.
func (c *Client) FetchExternalView(ctx context.Context, table routing.TableName) (*routing.ExternalView, error) {
	ctx, cancel := c.timeout(ctx)
	defer cancel()

	resp, err := c.etcd.Get(ctx, tableEVKey(c.rootPath, string(table)))
	if err != nil {
		return nil, ErrEtcdGet.WithCause(err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	var ev routing.ExternalView
	if err := json.Unmarshal(resp.Kvs[0].Value, &ev); err != nil {
		return nil, ErrDecodePayload.WithCausef("table %s: %v", table, err)
	}
	return &ev, nil
}

// FetchInstanceConfigs implements routing.CoordinatorClient.
func (c *Client) FetchInstanceConfigs(ctx context.Context) ([]routing.InstanceConfig, error) {
	ctx, cancel := c.timeout(ctx)
	defer cancel()

	prefix := instancesPrefix(c.rootPath)
	resp, err := c.etcd.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, ErrEtcdGet.WithCause(err)
	}

	out := make([]routing.InstanceConfig, 0, len(resp.Kvs)/2)
	for _, kv := range resp.Kvs {
		if !strings.HasSuffix(string(kv.Key), "/"+configLeaf) {
			continue
		}
		var ic routing.InstanceConfig
		if err := json.Unmarshal(kv.Value, &ic); err != nil {
			return nil, ErrDecodePayload.WithCausef("key %s: %v", kv.Key, err)
		}
		out = append(out, ic)
	}
	return out, nil
}

// FetchStats implements routing.CoordinatorClient with a single batched
// transaction across every table's version key.
func (c *Client) FetchStats(ctx context.Context, tables []routing.TableName) ([]*routing.Stat, error) {
	if len(tables) == 0 {
		return nil, nil
	}
	ctx, cancel := c.timeout(ctx)
	defer cancel()

	ops := make([]clientv3.Op, len(tables))
	for i, table := range tables {
		ops[i] = clientv3.OpGet(tableEVVersionKey(c.rootPath, string(table)))
	}
	resp, err := c.commit(ctx, ops...)
	if err != nil {
		return nil, err
	}
	return parseStatResponses(resp.Responses), nil
}

// FetchInstanceStats implements routing.CoordinatorClient with a single
// batched transaction across every instance's version key.
func (c *Client) FetchInstanceStats(ctx context.Context, instances []routing.ServerID) ([]*routing.Stat, error) {
	if len(instances) == 0 {
		return nil, nil
	}
	ctx, cancel := c.timeout(ctx)
	defer cancel()

	ops := make([]clientv3.Op, len(instances))
	for i, instance := range instances {
		ops[i] = clientv3.OpGet(instanceConfigVersionKey(c.rootPath, string(instance)))
	}
	resp, err := c.commit(ctx, ops...)
	if err != nil {
		return nil, err
	}
	return parseStatResponses(resp.Responses), nil
}

func parseStatResponses(responses []*etcdserverpb.ResponseOp) []*routing.Stat {
	out := make([]*routing.Stat, len(responses))
	for i, r := range responses {
		rangeResp := r.GetResponseRange()
		if rangeResp == nil || len(rangeResp.Kvs) == 0 {
			continue
		}
		version, err := strconv.ParseInt(string(rangeResp.Kvs[0].Value), 10, 64)
		if err != nil {
			continue
		}
		out[i] = &routing.Stat{Version: version}
	}
	return out
}
