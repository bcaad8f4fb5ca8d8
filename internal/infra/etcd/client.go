package etcd

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// maxTxnOps matches the default --max-txn-ops of an etcd server.
const maxTxnOps = 128

func NewClient(endpoints []string, timeout time.Duration) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return cli, nil
}

// batchGet runs the given reads in as few transactions as the server allows
// and returns one response per op, in order.
func batchGet(ctx context.Context, client *clientv3.Client, ops []clientv3.Op) ([]*clientv3.GetResponse, error) {
	out := make([]*clientv3.GetResponse, 0, len(ops))
	for start := 0; start < len(ops); start += maxTxnOps {
		end := min(start+maxTxnOps, len(ops))
		resp, err := client.Txn(ctx).Then(ops[start:end]...).Commit()
		if err != nil {
			return nil, err
		}
		for _, r := range resp.Responses {
			out = append(out, (*clientv3.GetResponse)(r.GetResponseRange()))
		}
	}
	return out, nil
}
