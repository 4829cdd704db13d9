package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ProofType identifies the guest prover a request is routed to
type ProofType string

const (
	ProofTypeNative ProofType = "native" // constructs the block and checks for equality
	ProofTypeSgx    ProofType = "sgx"    // enclave-attested execution
	ProofTypeSp1    ProofType = "sp1"    // SP1 zkVM
	ProofTypeRisc0  ProofType = "risc0"  // RISC Zero zkVM
)

// AllProofTypes lists every proof type the host knows about
var AllProofTypes = []ProofType{ProofTypeNative, ProofTypeSgx, ProofTypeSp1, ProofTypeRisc0}

// ParseProofType parses a proof type name, case-insensitively
func ParseProofType(s string) (ProofType, error) {
	switch ProofType(strings.ToLower(strings.TrimSpace(s))) {
	case ProofTypeNative:
		return ProofTypeNative, nil
	case ProofTypeSgx:
		return ProofTypeSgx, nil
	case ProofTypeSp1:
		return ProofTypeSp1, nil
	case ProofTypeRisc0:
		return ProofTypeRisc0, nil
	}
	return "", NewConfigurationError("proof_type", fmt.Sprintf("unknown proof type %q", s))
}

// RequiresImageID reports whether the backend needs a proving-program image id.
// zkVM backends do, native and sgx do not.
func (p ProofType) RequiresImageID() bool {
	return p == ProofTypeSp1 || p == ProofTypeRisc0
}

func (p ProofType) String() string {
	return string(p)
}

// BlobProofType selects how blob data is proven
type BlobProofType string

const (
	BlobProofTypeKzgVersionedHash    BlobProofType = "kzg_versioned_hash"
	BlobProofTypeProofOfEquivalence BlobProofType = "proof_of_equivalence"
)

// ParseBlobProofType parses a blob proof type name
func ParseBlobProofType(s string) (BlobProofType, error) {
	switch BlobProofType(strings.ToLower(strings.TrimSpace(s))) {
	case BlobProofTypeKzgVersionedHash:
		return BlobProofTypeKzgVersionedHash, nil
	case BlobProofTypeProofOfEquivalence:
		return BlobProofTypeProofOfEquivalence, nil
	}
	return "", NewConfigurationError("blob_proof_type", fmt.Sprintf("unknown blob proof type %q", s))
}

// ProverSpecificOpts carries opaque per-backend argument blocks
type ProverSpecificOpts struct {
	Native map[string]interface{} `json:"native,omitempty" yaml:"native,omitempty"`
	Sgx    map[string]interface{} `json:"sgx,omitempty" yaml:"sgx,omitempty"`
	Sp1    map[string]interface{} `json:"sp1,omitempty" yaml:"sp1,omitempty"`
	Risc0  map[string]interface{} `json:"risc0,omitempty" yaml:"risc0,omitempty"`
}

// For returns the argument block of the given proof type
func (o ProverSpecificOpts) For(p ProofType) map[string]interface{} {
	switch p {
	case ProofTypeNative:
		return o.Native
	case ProofTypeSgx:
		return o.Sgx
	case ProofTypeSp1:
		return o.Sp1
	case ProofTypeRisc0:
		return o.Risc0
	}
	return nil
}

// Merge overlays o onto defaults key by key; keys present in o win.
func (o ProverSpecificOpts) Merge(defaults ProverSpecificOpts) ProverSpecificOpts {
	return ProverSpecificOpts{
		Native: mergeArgs(o.Native, defaults.Native),
		Sgx:    mergeArgs(o.Sgx, defaults.Sgx),
		Sp1:    mergeArgs(o.Sp1, defaults.Sp1),
		Risc0:  mergeArgs(o.Risc0, defaults.Risc0),
	}
}

func mergeArgs(own, defaults map[string]interface{}) map[string]interface{} {
	if len(own) == 0 && len(defaults) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(own)+len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range own {
		merged[k] = v
	}
	return merged
}

// ProofRequestOpt is the partially specified request a client sends.
// Every nil field is filled from server defaults by Merge.
type ProofRequestOpt struct {
	BlockNumber            *uint64            `json:"block_number,omitempty" yaml:"block_number,omitempty"`
	L1InclusionBlockNumber *uint64            `json:"l1_inclusion_block_number,omitempty" yaml:"l1_inclusion_block_number,omitempty"`
	Network                *string            `json:"network,omitempty" yaml:"network,omitempty"`
	L1Network              *string            `json:"l1_network,omitempty" yaml:"l1_network,omitempty"`
	Graffiti               *string            `json:"graffiti,omitempty" yaml:"graffiti,omitempty"`
	Prover                 *string            `json:"prover,omitempty" yaml:"prover,omitempty"`
	ProofType              *string            `json:"proof_type,omitempty" yaml:"proof_type,omitempty"`
	BlobProofType          *string            `json:"blob_proof_type,omitempty" yaml:"blob_proof_type,omitempty"`
	ImageID                *string            `json:"image_id,omitempty" yaml:"image_id,omitempty"`
	ProverArgs             ProverSpecificOpts `json:"prover_args" yaml:"prover_args"`
}

// Merge returns a copy of o where every unset field is taken from defaults
func (o ProofRequestOpt) Merge(defaults ProofRequestOpt) ProofRequestOpt {
	merged := o
	merged.BlockNumber = firstUint64(o.BlockNumber, defaults.BlockNumber)
	merged.L1InclusionBlockNumber = firstUint64(o.L1InclusionBlockNumber, defaults.L1InclusionBlockNumber)
	merged.Network = firstString(o.Network, defaults.Network)
	merged.L1Network = firstString(o.L1Network, defaults.L1Network)
	merged.Graffiti = firstString(o.Graffiti, defaults.Graffiti)
	merged.Prover = firstString(o.Prover, defaults.Prover)
	merged.ProofType = firstString(o.ProofType, defaults.ProofType)
	merged.BlobProofType = firstString(o.BlobProofType, defaults.BlobProofType)
	merged.ImageID = firstString(o.ImageID, defaults.ImageID)
	merged.ProverArgs = o.ProverArgs.Merge(defaults.ProverArgs)
	return merged
}

func firstUint64(own, fallback *uint64) *uint64 {
	if own != nil {
		return own
	}
	if fallback == nil {
		return nil
	}
	v := *fallback
	return &v
}

func firstString(own, fallback *string) *string {
	if own != nil && *own != "" {
		return own
	}
	if fallback == nil {
		return own
	}
	v := *fallback
	return &v
}

// ProofRequest is a fully specified, immutable single-block proof request
type ProofRequest struct {
	BlockNumber            uint64                 `json:"block_number"`
	L1InclusionBlockNumber uint64                 `json:"l1_inclusion_block_number"`
	Network                string                 `json:"network"`
	L1Network              string                 `json:"l1_network"`
	Graffiti               common.Hash            `json:"graffiti"`
	Prover                 common.Address         `json:"prover"`
	ProofType              ProofType              `json:"proof_type"`
	BlobProofType          BlobProofType          `json:"blob_proof_type"`
	ImageID                string                 `json:"image_id,omitempty"`
	ProverArgs             map[string]interface{} `json:"prover_args,omitempty"`
}

// NewProofRequest validates a merged option set and builds a ProofRequest.
// Missing or malformed fields are reported as ConfigurationError.
func NewProofRequest(opt ProofRequestOpt) (*ProofRequest, error) {
	if opt.BlockNumber == nil {
		return nil, NewConfigurationError("block_number", "missing")
	}
	if opt.Network == nil || *opt.Network == "" {
		return nil, NewConfigurationError("network", "missing")
	}
	if opt.ProofType == nil {
		return nil, NewConfigurationError("proof_type", "missing")
	}
	proofType, err := ParseProofType(*opt.ProofType)
	if err != nil {
		return nil, err
	}
	if opt.Prover == nil || *opt.Prover == "" {
		return nil, NewConfigurationError("prover", "missing")
	}
	if !common.IsHexAddress(*opt.Prover) {
		return nil, NewConfigurationError("prover", fmt.Sprintf("invalid address %q", *opt.Prover))
	}

	req := &ProofRequest{
		BlockNumber: *opt.BlockNumber,
		Network:     *opt.Network,
		Prover:      common.HexToAddress(*opt.Prover),
		ProofType:   proofType,
		ProverArgs:  opt.ProverArgs.For(proofType),
	}
	if opt.L1InclusionBlockNumber != nil {
		req.L1InclusionBlockNumber = *opt.L1InclusionBlockNumber
	}
	if opt.L1Network != nil {
		req.L1Network = *opt.L1Network
	}
	if opt.Graffiti != nil && *opt.Graffiti != "" {
		raw := strings.TrimPrefix(*opt.Graffiti, "0x")
		if len(raw) != 2*common.HashLength || !isHex(raw) {
			return nil, NewConfigurationError("graffiti", "must be 32 bytes of hex")
		}
		req.Graffiti = common.HexToHash(raw)
	}
	req.BlobProofType = BlobProofTypeProofOfEquivalence
	if opt.BlobProofType != nil && *opt.BlobProofType != "" {
		blob, err := ParseBlobProofType(*opt.BlobProofType)
		if err != nil {
			return nil, err
		}
		req.BlobProofType = blob
	}
	if opt.ImageID != nil {
		req.ImageID = *opt.ImageID
	}
	if proofType.RequiresImageID() && req.ImageID == "" {
		return nil, NewConfigurationError("image_id", fmt.Sprintf("required for proof type %s", proofType))
	}
	if !proofType.RequiresImageID() {
		// image ids only distinguish zkVM program versions
		req.ImageID = ""
	}
	return req, nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// ProofArtifact is the opaque result a backend returns
type ProofArtifact struct {
	Proof    string `json:"proof,omitempty"`
	Input    string `json:"input,omitempty"`
	Quote    string `json:"quote,omitempty"`
	KzgProof string `json:"kzg_proof,omitempty"`
	UUID     string `json:"uuid,omitempty"`
}

// BlockTarget is one block of an aggregation request
type BlockTarget struct {
	BlockNumber            uint64  `json:"block_number"`
	L1InclusionBlockNumber *uint64 `json:"l1_inclusion_block_number,omitempty"`
}

// AggregationRequest is the client-facing batch request. Shared fields act as
// defaults for every expanded request; Requests entries may override them.
type AggregationRequest struct {
	BlockNumbers  []BlockTarget      `json:"block_numbers,omitempty"`
	Requests      []ProofRequestOpt  `json:"requests,omitempty"`
	Network       *string            `json:"network,omitempty"`
	L1Network     *string            `json:"l1_network,omitempty"`
	Graffiti      *string            `json:"graffiti,omitempty"`
	Prover        *string            `json:"prover,omitempty"`
	ProofType     *string            `json:"proof_type,omitempty"`
	BlobProofType *string            `json:"blob_proof_type,omitempty"`
	ImageID       *string            `json:"image_id,omitempty"`
	ProverArgs    ProverSpecificOpts `json:"prover_args"`
}

// SharedOpt returns the shared defaults of the batch as an option set
func (a AggregationRequest) SharedOpt() ProofRequestOpt {
	return ProofRequestOpt{
		Network:       a.Network,
		L1Network:     a.L1Network,
		Graffiti:      a.Graffiti,
		Prover:        a.Prover,
		ProofType:     a.ProofType,
		BlobProofType: a.BlobProofType,
		ImageID:       a.ImageID,
		ProverArgs:    a.ProverArgs,
	}
}

// Merge overlays the request's shared fields onto server defaults
func (a *AggregationRequest) Merge(defaults ProofRequestOpt) {
	shared := a.SharedOpt().Merge(defaults)
	a.Network = shared.Network
	a.L1Network = shared.L1Network
	a.Graffiti = shared.Graffiti
	a.Prover = shared.Prover
	a.ProofType = shared.ProofType
	a.BlobProofType = shared.BlobProofType
	a.ImageID = shared.ImageID
	a.ProverArgs = shared.ProverArgs
}

// Expand produces one option set per declared block target and per explicit
// request, each inheriting the shared fields it does not set itself.
func (a AggregationRequest) Expand() []ProofRequestOpt {
	shared := a.SharedOpt()
	opts := make([]ProofRequestOpt, 0, len(a.BlockNumbers)+len(a.Requests))
	for _, target := range a.BlockNumbers {
		blockNumber := target.BlockNumber
		opt := shared
		opt.BlockNumber = &blockNumber
		opt.L1InclusionBlockNumber = target.L1InclusionBlockNumber
		opts = append(opts, opt)
	}
	for _, r := range a.Requests {
		opts = append(opts, r.Merge(shared))
	}
	return opts
}

// SingleRequest wraps a single option set into a one-element batch
func SingleRequest(opt ProofRequestOpt) AggregationRequest {
	return AggregationRequest{Requests: []ProofRequestOpt{opt}}
}

// StringPtr is a helper for building option sets
func StringPtr(s string) *string { return &s }

// Uint64Ptr is a helper for building option sets
func Uint64Ptr(v uint64) *uint64 { return &v }
