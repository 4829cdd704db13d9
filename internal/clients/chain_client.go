package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"proof-host/internal/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

var (
	ErrNetworkNotFound = errors.New("network not configured")
	ErrBlockNotFound   = errors.New("block not found")
)

// ChainClient resolves (network, block number) to chain id and block hash
// through the network's JSON-RPC endpoints.
type ChainClient struct {
	networks map[string]config.NetworkConfig
	logger   *logrus.Logger

	mu       sync.Mutex
	clients  map[string]*ethclient.Client // network -> connected client
	chainIDs map[string]uint64
}

// NewChainClient creates a resolver over the enabled networks. Connections are
// opened on first use.
func NewChainClient(networks map[string]config.NetworkConfig, logger *logrus.Logger) *ChainClient {
	enabled := make(map[string]config.NetworkConfig, len(networks))
	for name, network := range networks {
		if network.Enabled {
			enabled[name] = network
		}
	}
	return &ChainClient{
		networks: enabled,
		logger:   logger,
		clients:  make(map[string]*ethclient.Client),
		chainIDs: make(map[string]uint64),
	}
}

// client returns a connected client, trying each endpoint in order
func (c *ChainClient) client(ctx context.Context, network string) (*ethclient.Client, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[network]; ok {
		return client, c.chainIDs[network], nil
	}
	networkConfig, ok := c.networks[network]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrNetworkNotFound, network)
	}

	var lastErr error
	for i, endpoint := range networkConfig.RPCEndpoints {
		entry := c.logger.WithFields(logrus.Fields{
			"component": "chain_client",
			"network":   network,
			"endpoint":  i + 1,
		})
		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			entry.WithError(err).Warn("❌ Dial failed")
			lastErr = err
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		chainID, err := client.ChainID(checkCtx)
		cancel()
		if err != nil {
			entry.WithError(err).Warn("❌ ChainID check failed")
			client.Close()
			lastErr = err
			continue
		}
		if networkConfig.ChainID != 0 && chainID.Uint64() != networkConfig.ChainID {
			client.Close()
			lastErr = fmt.Errorf("endpoint reports chain id %s, configured %d", chainID, networkConfig.ChainID)
			entry.WithError(lastErr).Warn("❌ Chain id mismatch")
			continue
		}
		entry.WithField("chain_id", chainID.Uint64()).Info("✅ Connection verified")
		c.clients[network] = client
		c.chainIDs[network] = chainID.Uint64()
		return client, chainID.Uint64(), nil
	}
	if lastErr == nil {
		lastErr = errors.New("no rpc endpoints configured")
	}
	return nil, 0, fmt.Errorf("failed to connect to %s network: %w", network, lastErr)
}

// Resolve returns the chain id of network and the hash of blockNumber on it
func (c *ChainClient) Resolve(ctx context.Context, network string, blockNumber uint64) (uint64, common.Hash, error) {
	client, chainID, err := c.client(ctx, network)
	if err != nil {
		return 0, common.Hash{}, err
	}
	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if errors.Is(err, ethereum.NotFound) {
		return 0, common.Hash{}, fmt.Errorf("%w: %s block %d", ErrBlockNotFound, network, blockNumber)
	}
	if err != nil {
		return 0, common.Hash{}, fmt.Errorf("failed to fetch %s block %d: %w", network, blockNumber, err)
	}
	return chainID, header.Hash(), nil
}

// Close closes every open connection
func (c *ChainClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for network, client := range c.clients {
		client.Close()
		delete(c.clients, network)
	}
}
