package types

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ProofTaskDescriptor uniquely identifies one unit of provable work.
// Two submissions with equal descriptors refer to the same task.
type ProofTaskDescriptor struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   common.Hash `json:"block_hash"`
	ProofType   ProofType   `json:"proof_type"`
	Prover      string      `json:"prover"`
	ImageID     string      `json:"image_id,omitempty"`
}

// NewProofTaskDescriptor builds the task key of a resolved request
func NewProofTaskDescriptor(chainID uint64, blockHash common.Hash, req *ProofRequest) ProofTaskDescriptor {
	return ProofTaskDescriptor{
		ChainID:     chainID,
		BlockNumber: req.BlockNumber,
		BlockHash:   blockHash,
		ProofType:   req.ProofType,
		Prover:      req.Prover.Hex(),
		ImageID:     req.ImageID,
	}
}

// normalized lowercases the free-form fields so equal keys compare equal
// regardless of address checksum casing.
func (d ProofTaskDescriptor) normalized() ProofTaskDescriptor {
	d.Prover = strings.ToLower(d.Prover)
	d.ImageID = strings.ToLower(strings.TrimPrefix(d.ImageID, "0x"))
	return d
}

// ID is the keccak256 digest of the canonical descriptor encoding, used as the
// storage key.
func (d ProofTaskDescriptor) ID() string {
	n := d.normalized()
	buf := make([]byte, 0, 8+8+common.HashLength+len(n.ProofType)+len(n.Prover)+len(n.ImageID)+3)
	buf = binary.BigEndian.AppendUint64(buf, n.ChainID)
	buf = binary.BigEndian.AppendUint64(buf, n.BlockNumber)
	buf = append(buf, n.BlockHash.Bytes()...)
	buf = append(buf, n.ProofType...)
	buf = append(buf, 0)
	buf = append(buf, n.Prover...)
	buf = append(buf, 0)
	buf = append(buf, n.ImageID...)
	return crypto.Keccak256Hash(buf).Hex()
}

// Equal reports whether two descriptors denote the same task
func (d ProofTaskDescriptor) Equal(other ProofTaskDescriptor) bool {
	return d.normalized() == other.normalized()
}

func (d ProofTaskDescriptor) String() string {
	s := fmt.Sprintf("%d/%d/%s/%s/%s", d.ChainID, d.BlockNumber, d.BlockHash.Hex(), d.ProofType, d.Prover)
	if d.ImageID != "" {
		s += "/" + d.ImageID
	}
	return s
}
