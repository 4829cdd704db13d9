package services

import (
	"context"
	"fmt"

	"proof-host/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// ChainResolver maps (network, block number) to the chain id and block hash
type ChainResolver interface {
	Resolve(ctx context.Context, network string, blockNumber uint64) (uint64, common.Hash, error)
}

// SubRequest is one expanded, resolved unit of an aggregation request.
// Err is set when chain resolution failed for this sub-request only.
type SubRequest struct {
	Request *types.ProofRequest
	Key     types.ProofTaskDescriptor
	Err     error
}

// AggregationSplitter turns a client batch into fully specified, resolved
// proof requests.
type AggregationSplitter struct {
	defaults    types.ProofRequestOpt
	images      map[types.ProofType]string
	resolver    ChainResolver
	maxParallel int
}

// NewAggregationSplitter creates a splitter. images supplies the image id of
// zkVM proof types when the request does not carry one.
func NewAggregationSplitter(defaults types.ProofRequestOpt, images map[types.ProofType]string, resolver ChainResolver) *AggregationSplitter {
	return &AggregationSplitter{
		defaults:    defaults,
		images:      images,
		resolver:    resolver,
		maxParallel: 8,
	}
}

// Prepare merges, expands and validates the batch without touching the chain.
// Any malformed sub-request fails the whole batch.
func (s *AggregationSplitter) Prepare(agg types.AggregationRequest) ([]*types.ProofRequest, error) {
	agg.Merge(s.defaults)
	opts := agg.Expand()
	if len(opts) == 0 {
		return nil, types.NewConfigurationError("block_numbers", "request names no blocks")
	}

	requests := make([]*types.ProofRequest, 0, len(opts))
	for i, opt := range opts {
		opt = s.withImageID(opt)
		req, err := types.NewProofRequest(opt)
		if err != nil {
			if len(opts) > 1 {
				return nil, fmt.Errorf("request %d: %w", i, err)
			}
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// withImageID fills a missing image id from the aggregation image table
func (s *AggregationSplitter) withImageID(opt types.ProofRequestOpt) types.ProofRequestOpt {
	if opt.ProofType == nil || (opt.ImageID != nil && *opt.ImageID != "") {
		return opt
	}
	proofType, err := types.ParseProofType(*opt.ProofType)
	if err != nil || !proofType.RequiresImageID() {
		return opt
	}
	if imageID, ok := s.images[proofType]; ok && imageID != "" {
		opt.ImageID = types.StringPtr(imageID)
	}
	return opt
}

// Split prepares the batch and resolves every sub-request concurrently.
// Output order follows the expansion order.
func (s *AggregationSplitter) Split(ctx context.Context, agg types.AggregationRequest) ([]SubRequest, error) {
	requests, err := s.Prepare(agg)
	if err != nil {
		return nil, err
	}

	subs := make([]SubRequest, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i, req := range requests {
		i, req := i, req
		subs[i].Request = req
		g.Go(func() error {
			chainID, blockHash, err := s.resolver.Resolve(gctx, req.Network, req.BlockNumber)
			if err != nil {
				subs[i].Err = fmt.Errorf("resolve %s block %d: %w", req.Network, req.BlockNumber, err)
				return nil
			}
			subs[i].Key = types.NewProofTaskDescriptor(chainID, blockHash, req)
			return nil
		})
	}
	_ = g.Wait()
	return subs, nil
}
