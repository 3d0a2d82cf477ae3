package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
)

const (
	buyerAddr  = "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"
	sellerAddr = "0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0"
)

func TestFundFileRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "request.yaml")
	content := "seller: " + sellerAddr + "\namount: \"12.34\"\nexpiry: 24h\ndescription: Logo design\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := readFundFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	f = f.merge(fundFile{Amount: "15"})

	now := time.Unix(1700000000, 0)
	base := chain.Networks["base"]
	req, err := f.request(base, buyerAddr, now)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Amount != 15000000 {
		t.Fatalf("flag amount should win over the file, got %d", req.Amount)
	}
	if req.TokenAddress != base.USDCContract {
		t.Fatalf("expected network USDC, got %s", req.TokenAddress)
	}
	if req.Buyer != buyerAddr || req.Seller != sellerAddr || req.Description != "Logo design" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.ExpiryTimestamp != now.Add(24*time.Hour).Unix() {
		t.Fatalf("unexpected expiry %d", req.ExpiryTimestamp)
	}
}

func TestFundFileRequestErrors(t *testing.T) {
	base := chain.Networks["base"]
	now := time.Now()
	cases := map[string]fundFile{
		"no seller":     {Amount: "1", Expiry: "1h"},
		"bad amount":    {Seller: sellerAddr, Amount: "1.0000001", Expiry: "1h"},
		"no expiry":     {Seller: sellerAddr, Amount: "1"},
		"bad token":     {Seller: sellerAddr, Amount: "1", Expiry: "1h", Token: "usdc"},
		"unknown chain": {Seller: sellerAddr, Amount: "1", Expiry: "1h"},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			network := base
			if name == "unknown chain" {
				network = chain.LookupNetwork(999999, "http://localhost:8545")
			}
			if _, err := f.request(network, buyerAddr, now); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestReadFundFileMissing(t *testing.T) {
	if _, err := readFundFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
