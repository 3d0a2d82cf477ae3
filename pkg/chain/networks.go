package chain

import (
	"fmt"
	"os"
	"sort"
	"strconv"
)

// NativeCurrency describes a chain's gas token for wallet_addEthereumChain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Network holds configuration for a blockchain network
type Network struct {
	ChainID        int64
	Name           string // "base", "base-sepolia", ...
	DisplayName    string
	RPCEndpointEnv string // env var overriding the public RPC
	DefaultRPC     string
	ExplorerURL    string
	USDCContract   string
	Currency       NativeCurrency
	IsTestnet      bool
}

var eth = NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18}

// Networks is the registry of supported networks, keyed by name.
var Networks = map[string]Network{
	"ethereum": {
		ChainID:        1,
		Name:           "ethereum",
		DisplayName:    "Ethereum Mainnet",
		RPCEndpointEnv: "ETH_RPC_ENDPOINT",
		DefaultRPC:     "https://eth.publicnode.com",
		ExplorerURL:    "https://etherscan.io",
		USDCContract:   "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Currency:       eth,
	},
	"base": {
		ChainID:        8453,
		Name:           "base",
		DisplayName:    "Base",
		RPCEndpointEnv: "BASE_RPC_ENDPOINT",
		DefaultRPC:     "https://base.publicnode.com",
		ExplorerURL:    "https://basescan.org",
		USDCContract:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Currency:       eth,
	},
	"arbitrum": {
		ChainID:        42161,
		Name:           "arbitrum",
		DisplayName:    "Arbitrum One",
		RPCEndpointEnv: "ARBITRUM_RPC_ENDPOINT",
		DefaultRPC:     "https://arb1.arbitrum.io/rpc",
		ExplorerURL:    "https://arbiscan.io",
		USDCContract:   "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		Currency:       eth,
	},
	"base-sepolia": {
		ChainID:        84532,
		Name:           "base-sepolia",
		DisplayName:    "Base Sepolia",
		RPCEndpointEnv: "BASE_SEPOLIA_RPC_ENDPOINT",
		DefaultRPC:     "https://base-sepolia.publicnode.com",
		ExplorerURL:    "https://sepolia.basescan.org",
		USDCContract:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Currency:       eth,
		IsTestnet:      true,
	},
	"arbitrum-sepolia": {
		ChainID:        421614,
		Name:           "arbitrum-sepolia",
		DisplayName:    "Arbitrum Sepolia",
		RPCEndpointEnv: "ARBITRUM_SEPOLIA_RPC_ENDPOINT",
		DefaultRPC:     "https://sepolia-rollup.arbitrum.io/rpc",
		ExplorerURL:    "https://sepolia.arbiscan.io",
		USDCContract:   "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d",
		Currency:       eth,
		IsTestnet:      true,
	},
}

// NetworkByChainID returns the network config for a given chain ID
func NetworkByChainID(chainID int64) (Network, bool) {
	for _, n := range Networks {
		if n.ChainID == chainID {
			return n, true
		}
	}
	return Network{}, false
}

// LookupNetwork resolves a chain id, falling back to an ad hoc entry that
// carries only the id and the given RPC URL.
func LookupNetwork(chainID int64, rpcURL string) Network {
	if n, ok := NetworkByChainID(chainID); ok {
		if rpcURL != "" {
			n.DefaultRPC = rpcURL
			n.RPCEndpointEnv = ""
		}
		return n
	}
	return Network{
		ChainID:     chainID,
		Name:        "chain-" + strconv.FormatInt(chainID, 10),
		DisplayName: fmt.Sprintf("Chain %d", chainID),
		DefaultRPC:  rpcURL,
		Currency:    eth,
	}
}

// SortedNetworks returns all networks ordered by chain id.
func SortedNetworks(includeTestnets bool) []Network {
	out := make([]Network, 0, len(Networks))
	for _, n := range Networks {
		if includeTestnets || !n.IsTestnet {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// RPCEndpoint returns the RPC endpoint from the environment, falling back to the public default.
func (n Network) RPCEndpoint() string {
	if n.RPCEndpointEnv != "" {
		if endpoint := os.Getenv(n.RPCEndpointEnv); endpoint != "" {
			return endpoint
		}
	}
	return n.DefaultRPC
}

// ChainIDHex renders the chain id the way EIP-1193 wallets report it.
func (n Network) ChainIDHex() string {
	return "0x" + strconv.FormatInt(n.ChainID, 16)
}

// AddChainParams builds the wallet_addEthereumChain parameter object.
func (n Network) AddChainParams() map[string]any {
	params := map[string]any{
		"chainId":        n.ChainIDHex(),
		"chainName":      n.DisplayName,
		"nativeCurrency": n.Currency,
		"rpcUrls":        []string{n.RPCEndpoint()},
	}
	if n.ExplorerURL != "" {
		params["blockExplorerUrls"] = []string{n.ExplorerURL}
	}
	return params
}

// TxURL links a transaction hash to the network's explorer.
func (n Network) TxURL(txHash string) string {
	if n.ExplorerURL == "" {
		return ""
	}
	return n.ExplorerURL + "/tx/" + txHash
}

// TxURLOrHash links txHash when the network has an explorer.
func (n Network) TxURLOrHash(txHash string) string {
	if u := n.TxURL(txHash); u != "" && txHash != "" {
		return u
	}
	return txHash
}

// ParseChainID accepts "0x2105" or "8453".
func ParseChainID(raw string) (int64, error) {
	if len(raw) > 2 && (raw[:2] == "0x" || raw[:2] == "0X") {
		return strconv.ParseInt(raw[2:], 16, 64)
	}
	return strconv.ParseInt(raw, 10, 64)
}
