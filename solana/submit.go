package vault_protocol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SubmitStatus is the terminal state of one submission attempt.
type SubmitStatus int

const (
	// SubmitStatusConfirmed means the cluster confirmed the transaction.
	SubmitStatusConfirmed SubmitStatus = iota
	// SubmitStatusFailed means the transaction was rejected for a
	// substantive reason. Not retryable.
	SubmitStatusFailed
	// SubmitStatusExpired means the blockhash the transaction was built
	// against verifiably fell out of the recency window, so the
	// transaction can no longer land. Retryable with a fresh one.
	SubmitStatusExpired
	// SubmitStatusUnknown means the confirmation wait was cancelled or
	// timed out while the blockhash was still live; the transaction may
	// still land. Callers must re-query before resubmitting, or they
	// risk double-applying.
	SubmitStatusUnknown
)

func (s SubmitStatus) String() string {
	switch s {
	case SubmitStatusConfirmed:
		return "confirmed"
	case SubmitStatusFailed:
		return "failed"
	case SubmitStatusExpired:
		return "expired"
	case SubmitStatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("SubmitStatus(%d)", int(s))
	}
}

// SubmitResult describes the outcome of submitting one transaction.
// Err carries the rejection reason verbatim when Status is
// SubmitStatusFailed, and the cancellation cause for SubmitStatusUnknown.
type SubmitResult struct {
	Signature solana.Signature
	Status    SubmitStatus
	Err       error
}

// Submitter is the network boundary transactions are handed to. The RPC
// implementation below is the production one; tests substitute their own.
type Submitter interface {
	// LatestBlockhash returns the most recent recency token.
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	// SendTransaction submits a fully signed transaction.
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// AwaitConfirmation blocks until the signature reaches a terminal
	// state or the wait is abandoned. blockhash is the recency token the
	// transaction was bound to, so the implementation can tell a lapsed
	// transaction from an ambiguous one.
	AwaitConfirmation(ctx context.Context, sig solana.Signature, blockhash solana.Hash) (SubmitStatus, error)
}

type rpcSubmitter struct {
	rpc            *rpc.Client
	commitment     rpc.CommitmentType
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

func newRPCSubmitter(client *rpc.Client, cfg Config) *rpcSubmitter {
	return &rpcSubmitter{
		rpc:            client,
		commitment:     cfg.Commitment,
		pollInterval:   cfg.ConfirmPollInterval,
		confirmTimeout: cfg.ConfirmTimeout,
	}
}

func (s *rpcSubmitter) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	resp, err := s.rpc.GetLatestBlockhash(ctx, s.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return resp.Value.Blockhash, nil
}

func (s *rpcSubmitter) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return s.rpc.SendTransaction(ctx, tx)
}

func (s *rpcSubmitter) AwaitConfirmation(ctx context.Context, sig solana.Signature, blockhash solana.Hash) (SubmitStatus, error) {
	deadline := time.Now().Add(s.confirmTimeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return SubmitStatusUnknown, ctx.Err()
		case <-ticker.C:
		}

		resp, err := s.rpc.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			if ctx.Err() != nil {
				return SubmitStatusUnknown, ctx.Err()
			}
			// Transient RPC failure; keep polling until the window closes.
		} else if len(resp.Value) > 0 && resp.Value[0] != nil {
			status := resp.Value[0]
			if status.Err != nil {
				return SubmitStatusFailed, fmt.Errorf("transaction failed on-chain: %v", status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return SubmitStatusConfirmed, nil
			}
		}

		if time.Now().After(deadline) {
			return s.classifyTimeout(ctx, blockhash)
		}
	}
}

// classifyTimeout decides what a closed confirmation window means. Only a
// blockhash the cluster confirms has lapsed makes the transaction
// unlandable and therefore safe to resubmit; in every other case the
// transaction may still land and the outcome stays ambiguous.
func (s *rpcSubmitter) classifyTimeout(ctx context.Context, blockhash solana.Hash) (SubmitStatus, error) {
	resp, err := s.rpc.IsBlockhashValid(ctx, blockhash, s.commitment)
	if err == nil && resp != nil && !resp.Value {
		return SubmitStatusExpired, nil
	}
	return SubmitStatusUnknown, fmt.Errorf("confirmation window closed; transaction may still land")
}

// isBlockhashExpired classifies a send error as a stale-blockhash
// rejection. The RPC layer reports this only as message text.
func isBlockhashExpired(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "BlockhashNotFound") ||
		strings.Contains(msg, "Blockhash not found")
}

// Submit batches instructions (in the given order) into one transaction,
// binds it to a fresh blockhash, signs with the supplied keys and hands it
// to the submitter. Expired attempts are rebuilt against a new blockhash up
// to Config.MaxSubmitAttempts times; every other outcome ends the loop.
func (c *Client) Submit(ctx context.Context, instructions []solana.Instruction, signers ...solana.PrivateKey) (*SubmitResult, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("no instructions to submit")
	}
	if len(signers) == 0 {
		signers = []solana.PrivateKey{c.Signer}
	}
	payer := signers[0].PublicKey()

	attempts := c.cfg.MaxSubmitAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		blockhash, err := c.submitter.LatestBlockhash(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch blockhash: %w", err)
		}

		tx, err := solana.NewTransaction(
			instructions,
			blockhash,
			solana.TransactionPayer(payer),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create transaction: %w", err)
		}

		_, err = tx.Sign(
			func(key solana.PublicKey) *solana.PrivateKey {
				for i := range signers {
					if signers[i].PublicKey().Equals(key) {
						return &signers[i]
					}
				}
				return nil
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}

		sig, err := c.submitter.SendTransaction(ctx, tx)
		if err != nil {
			if ctx.Err() != nil {
				return &SubmitResult{Status: SubmitStatusUnknown, Err: ctx.Err()}, nil
			}
			if isBlockhashExpired(err) {
				if attempt < attempts {
					continue
				}
				return &SubmitResult{
					Status: SubmitStatusExpired,
					Err:    fmt.Errorf("blockhash expired after %d attempts: %w", attempt, err),
				}, nil
			}
			return &SubmitResult{Status: SubmitStatusFailed, Err: err}, nil
		}

		status, err := c.submitter.AwaitConfirmation(ctx, sig, blockhash)
		switch status {
		case SubmitStatusConfirmed:
			return &SubmitResult{Signature: sig, Status: SubmitStatusConfirmed}, nil
		case SubmitStatusFailed:
			return &SubmitResult{Signature: sig, Status: SubmitStatusFailed, Err: err}, nil
		case SubmitStatusExpired:
			if attempt < attempts {
				continue
			}
			return &SubmitResult{
				Signature: sig,
				Status:    SubmitStatusExpired,
				Err:       fmt.Errorf("blockhash lapsed after %d attempts", attempt),
			}, nil
		default:
			return &SubmitResult{Signature: sig, Status: SubmitStatusUnknown, Err: err}, nil
		}
	}
}
