package vault_protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubmitter scripts the network boundary. Each call to SendTransaction
// consumes the next sendOutcome; AwaitConfirmation consumes the next
// awaitOutcome.
type fakeSubmitter struct {
	blockhashes []solana.Hash
	sends       []sendOutcome
	awaits      []awaitOutcome

	sentTxs            []*solana.Transaction
	awaitedBlockhashes []solana.Hash
	blockhashCalls     int
}

type sendOutcome struct {
	sig solana.Signature
	err error
}

type awaitOutcome struct {
	status SubmitStatus
	err    error
}

func (f *fakeSubmitter) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	i := f.blockhashCalls
	f.blockhashCalls++
	if i < len(f.blockhashes) {
		return f.blockhashes[i], nil
	}
	return solana.Hash{byte(i)}, nil
}

func (f *fakeSubmitter) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.sentTxs = append(f.sentTxs, tx)
	next := f.sends[0]
	f.sends = f.sends[1:]
	return next.sig, next.err
}

func (f *fakeSubmitter) AwaitConfirmation(ctx context.Context, sig solana.Signature, blockhash solana.Hash) (SubmitStatus, error) {
	f.awaitedBlockhashes = append(f.awaitedBlockhashes, blockhash)
	next := f.awaits[0]
	f.awaits = f.awaits[1:]
	return next.status, next.err
}

func newTestClient(t *testing.T, fake *fakeSubmitter) *Client {
	t.Helper()
	return &Client{
		Signer:    solana.NewWallet().PrivateKey,
		cfg:       DefaultConfig("http://localhost:8899"),
		submitter: fake,
	}
}

// testInstruction builds a deposit whose only signer is the payer, so the
// client's key is enough to sign the assembled transaction.
func testInstruction(t *testing.T, payer solana.PublicKey) solana.Instruction {
	t.Helper()
	accounts := depositTestAccounts(t)
	accounts.User = payer
	instruction, err := NewDepositInstruction(accounts, &DepositInstructionArgs{
		Amount:       1_000_000,
		UsdcDecimals: 6,
	})
	require.NoError(t, err)
	return instruction
}

func TestSubmit_Confirmed(t *testing.T) {
	sig := solana.Signature{1}
	fake := &fakeSubmitter{
		sends:  []sendOutcome{{sig: sig}},
		awaits: []awaitOutcome{{status: SubmitStatusConfirmed}},
	}
	client := newTestClient(t, fake)

	result, err := client.Submit(context.Background(),
		[]solana.Instruction{testInstruction(t, client.Signer.PublicKey())})
	require.NoError(t, err)

	assert.Equal(t, SubmitStatusConfirmed, result.Status)
	assert.Equal(t, sig, result.Signature)
	assert.NoError(t, result.Err)
	assert.Equal(t, 1, fake.blockhashCalls)
}

func TestSubmit_NoInstructions(t *testing.T) {
	client := newTestClient(t, &fakeSubmitter{})
	_, err := client.Submit(context.Background(), nil)
	assert.Error(t, err)
}

func TestSubmit_ExpiredSendRetriesWithFreshBlockhash(t *testing.T) {
	sig := solana.Signature{2}
	fake := &fakeSubmitter{
		blockhashes: []solana.Hash{{0xAA}, {0xBB}},
		sends: []sendOutcome{
			{err: errors.New("rpc: BlockhashNotFound")},
			{sig: sig},
		},
		awaits: []awaitOutcome{{status: SubmitStatusConfirmed}},
	}
	client := newTestClient(t, fake)

	result, err := client.Submit(context.Background(),
		[]solana.Instruction{testInstruction(t, client.Signer.PublicKey())})
	require.NoError(t, err)

	assert.Equal(t, SubmitStatusConfirmed, result.Status)
	require.Len(t, fake.sentTxs, 2)
	// The retry must be rebuilt, not replayed.
	assert.Equal(t, solana.Hash{0xAA}, fake.sentTxs[0].Message.RecentBlockhash)
	assert.Equal(t, solana.Hash{0xBB}, fake.sentTxs[1].Message.RecentBlockhash)
}

func TestSubmit_ExpiredConfirmationRetries(t *testing.T) {
	fake := &fakeSubmitter{
		blockhashes: []solana.Hash{{0xAA}, {0xBB}},
		sends: []sendOutcome{
			{sig: solana.Signature{1}},
			{sig: solana.Signature{2}},
		},
		awaits: []awaitOutcome{
			{status: SubmitStatusExpired},
			{status: SubmitStatusConfirmed},
		},
	}
	client := newTestClient(t, fake)

	result, err := client.Submit(context.Background(),
		[]solana.Instruction{testInstruction(t, client.Signer.PublicKey())})
	require.NoError(t, err)

	assert.Equal(t, SubmitStatusConfirmed, result.Status)
	assert.Equal(t, solana.Signature{2}, result.Signature)
	// Each confirmation wait is keyed to the blockhash its attempt used.
	assert.Equal(t, []solana.Hash{{0xAA}, {0xBB}}, fake.awaitedBlockhashes)
}

func TestSubmit_AttemptsExhausted(t *testing.T) {
	fake := &fakeSubmitter{
		sends: []sendOutcome{
			{err: errors.New("rpc: BlockhashNotFound")},
			{err: errors.New("rpc: BlockhashNotFound")},
			{err: errors.New("rpc: BlockhashNotFound")},
		},
	}
	client := newTestClient(t, fake)

	result, err := client.Submit(context.Background(),
		[]solana.Instruction{testInstruction(t, client.Signer.PublicKey())})
	require.NoError(t, err)

	assert.Equal(t, SubmitStatusExpired, result.Status)
	assert.ErrorContains(t, result.Err, "3 attempts")
	assert.Len(t, fake.sentTxs, 3)
}

func TestSubmit_FailureIsTerminalAndVerbatim(t *testing.T) {
	sendErr := errors.New("custom program error: 0x1")
	fake := &fakeSubmitter{
		sends: []sendOutcome{{err: sendErr}},
	}
	client := newTestClient(t, fake)

	result, err := client.Submit(context.Background(),
		[]solana.Instruction{testInstruction(t, client.Signer.PublicKey())})
	require.NoError(t, err)

	assert.Equal(t, SubmitStatusFailed, result.Status)
	assert.Same(t, sendErr, result.Err)
	assert.Len(t, fake.sentTxs, 1) // no retry on substantive rejection
}

func TestSubmit_OnChainFailureCarriesReason(t *testing.T) {
	chainErr := fmt.Errorf("transaction failed on-chain: InstructionError")
	fake := &fakeSubmitter{
		sends:  []sendOutcome{{sig: solana.Signature{3}}},
		awaits: []awaitOutcome{{status: SubmitStatusFailed, err: chainErr}},
	}
	client := newTestClient(t, fake)

	result, err := client.Submit(context.Background(),
		[]solana.Instruction{testInstruction(t, client.Signer.PublicKey())})
	require.NoError(t, err)

	assert.Equal(t, SubmitStatusFailed, result.Status)
	assert.Equal(t, chainErr, result.Err)
}

func TestSubmit_CancelledWaitIsUnknown(t *testing.T) {
	fake := &fakeSubmitter{
		sends:  []sendOutcome{{sig: solana.Signature{4}}},
		awaits: []awaitOutcome{{status: SubmitStatusUnknown, err: context.Canceled}},
	}
	client := newTestClient(t, fake)

	result, err := client.Submit(context.Background(),
		[]solana.Instruction{testInstruction(t, client.Signer.PublicKey())})
	require.NoError(t, err)

	// Unknown is distinct from Failed: the transaction may have landed.
	assert.Equal(t, SubmitStatusUnknown, result.Status)
	assert.Equal(t, solana.Signature{4}, result.Signature)
	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestSubmit_PreservesInstructionOrder(t *testing.T) {
	fake := &fakeSubmitter{
		sends:  []sendOutcome{{sig: solana.Signature{5}}},
		awaits: []awaitOutcome{{status: SubmitStatusConfirmed}},
	}
	client := newTestClient(t, fake)
	payer := client.Signer.PublicKey()

	first := testInstruction(t, payer)

	withdrawAccounts := WithdrawInstructionAccounts(*depositTestAccounts(t))
	withdrawAccounts.User = payer
	second, err := NewWithdrawInstruction(&withdrawAccounts, &WithdrawInstructionArgs{
		Shares:       500_000,
		UsdcDecimals: 6,
	})
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), []solana.Instruction{first, second})
	require.NoError(t, err)

	require.Len(t, fake.sentTxs, 1)
	message := fake.sentTxs[0].Message
	require.Len(t, message.Instructions, 2)

	firstData, err := first.Data()
	require.NoError(t, err)
	secondData, err := second.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte(firstData), []byte(message.Instructions[0].Data))
	assert.Equal(t, []byte(secondData), []byte(message.Instructions[1].Data))
}

// scriptedRPC serves canned JSON-RPC results keyed by method name.
func scriptedRPC(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req struct {
			ID     interface{} `json:"id"`
			Method string      `json:"method"`
		}
		require.NoError(t, json.Unmarshal(body, &req))

		result, ok := results[req.Method]
		require.True(t, ok, "unscripted RPC method %q", req.Method)

		id, err := json.Marshal(req.ID)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, id, result)
	}))
}

func newTimeoutSubmitter(t *testing.T, endpoint string) *rpcSubmitter {
	t.Helper()
	cfg := DefaultConfig(endpoint)
	cfg.ConfirmPollInterval = 5 * time.Millisecond
	cfg.ConfirmTimeout = 30 * time.Millisecond
	return newRPCSubmitter(rpc.New(endpoint), cfg)
}

func TestAwaitConfirmation_TimeoutWithLiveBlockhashIsUnknown(t *testing.T) {
	server := scriptedRPC(t, map[string]string{
		"getSignatureStatuses": `{"context":{"slot":1},"value":[null]}`,
		"isBlockhashValid":     `{"context":{"slot":1},"value":true}`,
	})
	defer server.Close()

	submitter := newTimeoutSubmitter(t, server.URL)
	status, err := submitter.AwaitConfirmation(context.Background(), solana.Signature{1}, solana.Hash{2})

	// The blockhash is still live, so the transaction may yet land:
	// ambiguity, never a retryable expiry.
	assert.Equal(t, SubmitStatusUnknown, status)
	assert.Error(t, err)
}

func TestAwaitConfirmation_TimeoutWithLapsedBlockhashIsExpired(t *testing.T) {
	server := scriptedRPC(t, map[string]string{
		"getSignatureStatuses": `{"context":{"slot":1},"value":[null]}`,
		"isBlockhashValid":     `{"context":{"slot":1},"value":false}`,
	})
	defer server.Close()

	submitter := newTimeoutSubmitter(t, server.URL)
	status, err := submitter.AwaitConfirmation(context.Background(), solana.Signature{1}, solana.Hash{2})

	// A verifiably lapsed blockhash means the transaction cannot land
	// anymore, so rebuilding against a fresh one is safe.
	assert.Equal(t, SubmitStatusExpired, status)
	assert.NoError(t, err)
}

func TestAwaitConfirmation_ConfirmedStatus(t *testing.T) {
	server := scriptedRPC(t, map[string]string{
		"getSignatureStatuses": `{"context":{"slot":1},"value":[{"slot":1,"confirmations":3,"err":null,"confirmationStatus":"confirmed"}]}`,
	})
	defer server.Close()

	submitter := newTimeoutSubmitter(t, server.URL)
	status, err := submitter.AwaitConfirmation(context.Background(), solana.Signature{1}, solana.Hash{2})

	assert.Equal(t, SubmitStatusConfirmed, status)
	assert.NoError(t, err)
}

func TestSubmitStatus_String(t *testing.T) {
	assert.Equal(t, "confirmed", SubmitStatusConfirmed.String())
	assert.Equal(t, "failed", SubmitStatusFailed.String())
	assert.Equal(t, "expired", SubmitStatusExpired.String())
	assert.Equal(t, "unknown", SubmitStatusUnknown.String())
}

func TestIsBlockhashExpired(t *testing.T) {
	assert.True(t, isBlockhashExpired(errors.New("BlockhashNotFound")))
	assert.True(t, isBlockhashExpired(errors.New("rpc error: Blockhash not found")))
	assert.False(t, isBlockhashExpired(errors.New("insufficient funds")))
	assert.False(t, isBlockhashExpired(nil))
}
