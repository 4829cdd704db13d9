package backends

import (
	"context"
	"fmt"

	"proof-host/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

// BlockResolver looks up the canonical hash of a block
type BlockResolver interface {
	Resolve(ctx context.Context, network string, blockNumber uint64) (uint64, common.Hash, error)
}

// NativeProver re-derives the block through the chain resolver and checks it
// matches the task key. It produces no cryptographic proof.
type NativeProver struct {
	resolver BlockResolver
}

func NewNativeProver(resolver BlockResolver) *NativeProver {
	return &NativeProver{resolver: resolver}
}

// Prove implements Prover
func (n *NativeProver) Prove(ctx context.Context, key types.ProofTaskDescriptor, req *types.ProofRequest) (*types.ProofArtifact, error) {
	chainID, hash, err := n.resolver.Resolve(ctx, req.Network, req.BlockNumber)
	if err != nil {
		return nil, err
	}
	if chainID != key.ChainID {
		return nil, fmt.Errorf("chain id mismatch: got %d, task %d", chainID, key.ChainID)
	}
	if hash != key.BlockHash {
		return nil, fmt.Errorf("block hash mismatch at %d: got %s, task %s", req.BlockNumber, hash.Hex(), key.BlockHash.Hex())
	}
	return &types.ProofArtifact{Input: hash.Hex()}, nil
}
