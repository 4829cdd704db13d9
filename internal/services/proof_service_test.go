package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"proof-host/internal/repository"
	"proof-host/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

const testProver = "0x0000000000000000000000000000000000000abc"

// fakeResolver derives the hash from the block number; blocks in missing fail
type fakeResolver struct {
	chainIDs map[string]uint64
	missing  map[uint64]bool
}

func (r fakeResolver) Resolve(_ context.Context, network string, blockNumber uint64) (uint64, common.Hash, error) {
	chainID, ok := r.chainIDs[network]
	if !ok {
		return 0, common.Hash{}, fmt.Errorf("unknown network %s", network)
	}
	if r.missing[blockNumber] {
		return 0, common.Hash{}, errors.New("block not found")
	}
	return chainID, common.BigToHash(new(big.Int).SetUint64(blockNumber + 1000)), nil
}

type serviceFixture struct {
	service *ProofService
	store   *repository.MemoryTaskRepository
	backend *fakeBackend
	gate    *AdmissionGate
}

func newServiceFixture(t *testing.T, missing ...uint64) *serviceFixture {
	t.Helper()
	resolver := fakeResolver{
		chainIDs: map[string]uint64{"taiko_mainnet": 167000, "ethereum": 1},
		missing:  make(map[uint64]bool),
	}
	for _, block := range missing {
		resolver.missing[block] = true
	}
	defaults := types.ProofRequestOpt{
		Network:   types.StringPtr("taiko_mainnet"),
		L1Network: types.StringPtr("ethereum"),
		Prover:    types.StringPtr(testProver),
		ProofType: types.StringPtr("native"),
	}
	images := map[types.ProofType]string{types.ProofTypeRisc0: "0xr0image"}

	store := repository.NewMemoryTaskRepository()
	backend := newFakeBackend(false)
	gate := NewAdmissionGate(false, quietLogger())
	actor := newTestActor(t, store, backend, nil)
	splitter := NewAggregationSplitter(defaults, images, resolver)
	return &serviceFixture{
		service: NewProofService(gate, splitter, actor, store, quietLogger()),
		store:   store,
		backend: backend,
		gate:    gate,
	}
}

func blocks(numbers ...uint64) []types.BlockTarget {
	out := make([]types.BlockTarget, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, types.BlockTarget{BlockNumber: n})
	}
	return out
}

func TestSubmitBatchUsesServerDefaults(t *testing.T) {
	f := newServiceFixture(t)
	outcomes, err := f.service.Submit(context.Background(), types.AggregationRequest{BlockNumbers: blocks(1, 2, 3)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Err != nil {
			t.Fatalf("outcome %d: %v", i, o.Err)
		}
		if o.Key.ChainID != 167000 || o.Key.ProofType != types.ProofTypeNative || o.Key.BlockNumber != uint64(i+1) {
			t.Fatalf("outcome %d key not built from defaults: %s", i, o.Key)
		}
		if o.Status().Code != types.TaskStatusRegistered {
			t.Fatalf("outcome %d status %s", i, o.Status().Code)
		}
	}
}

func TestSubmitWhilePausedCreatesNothing(t *testing.T) {
	f := newServiceFixture(t)
	f.gate.SetPaused(true)
	ctx := context.Background()

	if _, err := f.service.Submit(ctx, types.AggregationRequest{BlockNumbers: blocks(10)}); !errors.Is(err, types.ErrSystemPaused) {
		t.Fatalf("expected ErrSystemPaused, got %v", err)
	}
	live, _ := f.store.ListByStatus(ctx, types.TaskStatusRegistered, types.TaskStatusWorkInProgress, types.TaskStatusSuccess)
	if len(live) != 0 {
		t.Fatalf("paused submit created %d records", len(live))
	}

	f.gate.SetPaused(false)
	if _, err := f.service.Submit(ctx, types.AggregationRequest{BlockNumbers: blocks(10)}); err != nil {
		t.Fatalf("submit after unpause: %v", err)
	}
}

func TestCancelIsAllowedWhilePaused(t *testing.T) {
	f := newServiceFixture(t)
	close(f.backend.release)
	f.backend.release = make(chan struct{}) // new jobs block
	ctx := context.Background()
	batch := types.AggregationRequest{BlockNumbers: blocks(20)}

	if _, err := f.service.Submit(ctx, batch); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.gate.SetPaused(true)

	outcomes, err := f.service.Cancel(ctx, batch)
	if err != nil || len(outcomes) != 1 || outcomes[0].Err != nil {
		t.Fatalf("cancel while paused: %+v (%v)", outcomes, err)
	}
	if outcomes[0].Status().Code != types.TaskStatusCancelled {
		t.Fatalf("expected cancelled, got %s", outcomes[0].Status().Code)
	}
}

func TestMissingImageIDFailsWholeBatch(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	batch := types.AggregationRequest{
		BlockNumbers: blocks(30),
		Requests: []types.ProofRequestOpt{
			{BlockNumber: types.Uint64Ptr(31), ProofType: types.StringPtr("sp1")},
		},
	}

	_, err := f.service.Submit(ctx, batch)
	var cfgErr *types.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "image_id" {
		t.Fatalf("expected image_id ConfigurationError, got %v", err)
	}
	all, _ := f.store.ListByStatus(ctx, types.TaskStatusRegistered, types.TaskStatusWorkInProgress, types.TaskStatusSuccess)
	if len(all) != 0 {
		t.Fatalf("malformed batch must not fan out, found %d records", len(all))
	}
}

func TestImageIDFromAggregationTable(t *testing.T) {
	f := newServiceFixture(t)
	outcomes, err := f.service.Submit(context.Background(), types.AggregationRequest{
		BlockNumbers: blocks(40),
		ProofType:    types.StringPtr("risc0"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := outcomes[0].Key.ImageID; got != "0xr0image" {
		t.Fatalf("image id = %q, want table default", got)
	}
}

func TestPartialResolutionFailure(t *testing.T) {
	f := newServiceFixture(t, 51)
	ctx := context.Background()

	outcomes, err := f.service.Submit(ctx, types.AggregationRequest{BlockNumbers: blocks(50, 51, 52)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Fatalf("healthy sub-requests failed: %v / %v", outcomes[0].Err, outcomes[2].Err)
	}
	if outcomes[1].Err == nil || outcomes[1].Task != nil {
		t.Fatalf("sub-request for block 51 should fail alone, got %+v", outcomes[1])
	}
	for _, i := range []int{0, 2} {
		if _, err := f.store.Get(ctx, outcomes[i].Key); err != nil {
			t.Fatalf("record for outcome %d missing: %v", i, err)
		}
	}
}

func TestQueryDoesNotCreateTasks(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	batch := types.AggregationRequest{BlockNumbers: blocks(60)}

	outcomes, err := f.service.Query(ctx, batch)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !errors.Is(outcomes[0].Err, types.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", outcomes[0].Err)
	}

	submitted, err := f.service.Submit(ctx, batch)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "success", func() bool {
		st, err := f.service.Status(ctx, submitted[0].Key)
		return err == nil && st.Code == types.TaskStatusSuccess
	})
	history, err := f.service.History(ctx, submitted[0].Key)
	if err != nil || len(history) != 1 {
		t.Fatalf("history: %d records (%v)", len(history), err)
	}
}

func TestClientOptionsOverrideDefaults(t *testing.T) {
	f := newServiceFixture(t)
	requests, err := f.service.splitter.Prepare(types.AggregationRequest{
		Network: types.StringPtr("ethereum"),
		Requests: []types.ProofRequestOpt{
			{BlockNumber: types.Uint64Ptr(70)},
			{BlockNumber: types.Uint64Ptr(71), Network: types.StringPtr("taiko_mainnet"), ProofType: types.StringPtr("sgx")},
		},
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if requests[0].Network != "ethereum" || requests[0].ProofType != types.ProofTypeNative {
		t.Fatalf("shared fields not applied: %+v", requests[0])
	}
	if requests[1].Network != "taiko_mainnet" || requests[1].ProofType != types.ProofTypeSgx {
		t.Fatalf("per-request fields not applied: %+v", requests[1])
	}
	if requests[1].L1Network != "ethereum" {
		t.Fatalf("server default l1 network lost: %+v", requests[1])
	}
}

func TestEmptyBatchIsConfigurationError(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.service.Submit(context.Background(), types.AggregationRequest{}); !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
