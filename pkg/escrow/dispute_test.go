package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/conduit-ucpi/webapp-sub000/pkg/funding"
)

const escrowAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

type fakeChain struct {
	disputeErr error
	waitNil    bool
	waitErr    error
	calls      []string
}

func (f *fakeChain) RaiseDispute(_ context.Context, addr string) (string, error) {
	f.calls = append(f.calls, "dispute "+addr)
	if f.disputeErr != nil {
		return "", f.disputeErr
	}
	return "0xdispute", nil
}

func (f *fakeChain) WaitForTransaction(_ context.Context, hash string, timeout time.Duration, _ string) (*types.Receipt, error) {
	f.calls = append(f.calls, "wait "+hash)
	if timeout != 120*time.Second {
		return nil, errors.New("unexpected timeout")
	}
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	if f.waitNil {
		return nil, nil
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

type fakeBackend struct {
	status  int
	err     error
	method  string
	path    string
	payload map[string]any
}

func (b *fakeBackend) AuthenticatedFetch(_ context.Context, method, url string, body []byte, _ http.Header) (*http.Response, error) {
	b.method, b.path = method, url
	_ = json.Unmarshal(body, &b.payload)
	if b.err != nil {
		return nil, b.err
	}
	return &http.Response{
		StatusCode: b.status,
		Status:     http.StatusText(b.status),
		Body:       io.NopCloser(strings.NewReader(`{"error":"contract not found"}`)),
	}, nil
}

func newDisputes(c *fakeChain, b *fakeBackend) *Disputes {
	d := NewDisputes(b, c, c, nil)
	d.now = func() time.Time { return time.UnixMilli(1_760_000_000_000) }
	return d
}

func request() DisputeRequest {
	return DisputeRequest{ContractID: "c-42", ContractAddress: escrowAddr, Reason: "Work not delivered", RefundPercent: 80}
}

func TestRaiseDisputeNotifiesBackend(t *testing.T) {
	c := &fakeChain{}
	b := &fakeBackend{status: http.StatusOK}

	res, err := newDisputes(c, b).Raise(context.Background(), request())
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if res.TxHash != "0xdispute" || !res.Notified {
		t.Fatalf("unexpected result %+v", res)
	}
	if b.method != http.MethodPatch || b.path != "/api/contracts/c-42/dispute" {
		t.Fatalf("unexpected call %s %s", b.method, b.path)
	}
	if b.payload["reason"] != "Work not delivered" || b.payload["refundPercent"] != float64(80) || b.payload["timestamp"] != float64(1_760_000_000_000) {
		t.Fatalf("unexpected payload %v", b.payload)
	}
}

func TestRaiseDisputeSwallowsNotificationFailure(t *testing.T) {
	for name, b := range map[string]*fakeBackend{
		"rejected":    {status: http.StatusNotFound},
		"unreachable": {err: errors.New("connection refused")},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := newDisputes(&fakeChain{}, b).Raise(context.Background(), request())
			if err != nil {
				t.Fatalf("notification failure must not fail the dispute: %v", err)
			}
			if res.Notified {
				t.Fatal("expected Notified=false")
			}
		})
	}
}

func TestRaiseDisputeChainFailures(t *testing.T) {
	t.Run("send fails", func(t *testing.T) {
		c := &fakeChain{disputeErr: errors.New("cancelled by user")}
		b := &fakeBackend{status: http.StatusOK}
		if _, err := newDisputes(c, b).Raise(context.Background(), request()); err == nil {
			t.Fatal("expected error")
		}
		if b.method != "" {
			t.Fatal("backend must not be told about a dispute that never happened")
		}
	})
	t.Run("not confirmed", func(t *testing.T) {
		b := &fakeBackend{status: http.StatusOK}
		_, err := newDisputes(&fakeChain{waitNil: true}, b).Raise(context.Background(), request())
		var timeout *funding.ConfirmationTimeoutError
		if !errors.As(err, &timeout) {
			t.Fatalf("expected timeout error, got %v", err)
		}
		if err.Error() != "Dispute timed out or failed - cannot proceed without confirmation" {
			t.Fatalf("unexpected message %q", err.Error())
		}
		if b.method != "" {
			t.Fatal("backend must not be notified")
		}
	})
	t.Run("wait errors", func(t *testing.T) {
		_, err := newDisputes(&fakeChain{waitErr: errors.New("Network error")}, &fakeBackend{}).Raise(context.Background(), request())
		if err == nil || err.Error() != "Dispute confirmation failed: Network error" {
			t.Fatalf("unexpected error %v", err)
		}
	})
}

func TestRaiseDisputeWithoutContractID(t *testing.T) {
	b := &fakeBackend{status: http.StatusOK}
	req := request()
	req.ContractID = ""
	res, err := newDisputes(&fakeChain{}, b).Raise(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Notified || b.method != "" {
		t.Fatal("nothing to notify without a contract id")
	}
}

func TestDisputeRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DisputeRequest)
	}{
		{name: "bad address", mutate: func(r *DisputeRequest) { r.ContractAddress = "nope" }},
		{name: "no reason", mutate: func(r *DisputeRequest) { r.Reason = "  " }},
		{name: "refund over 100", mutate: func(r *DisputeRequest) { r.RefundPercent = 101 }},
		{name: "negative refund", mutate: func(r *DisputeRequest) { r.RefundPercent = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request()
			tt.mutate(&req)
			c := &fakeChain{}
			if _, err := newDisputes(c, &fakeBackend{}).Raise(context.Background(), req); err == nil {
				t.Fatal("expected validation error")
			}
			if len(c.calls) != 0 {
				t.Fatalf("no chain calls expected, got %v", c.calls)
			}
		})
	}
}
