package vault_protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// VaultEvent is one protocol instruction observed in a vault's transaction
// history, decoded back from its wire payload.
type VaultEvent struct {
	Signature solana.Signature `json:"signature"`
	Timestamp time.Time        `json:"timestamp"`
	Type      string           `json:"type"`
	Amount    uint64           `json:"amount,omitempty"`
	Shares    uint64           `json:"shares,omitempty"`
	Epoch     uint64           `json:"epoch,omitempty"`
	BoostBps  uint16           `json:"boostBps,omitempty"`
	Index     uint32           `json:"index,omitempty"`
	Actor     solana.PublicKey `json:"actor,omitempty"`
}

// GetVaultHistory fetches recent transactions touching the vault state
// account and decodes the vault program instructions inside them.
func (c *Client) GetVaultHistory(ctx context.Context, vaultState solana.PublicKey) ([]VaultEvent, error) {
	limit := 1000
	signatures, err := c.RpcClient.GetSignaturesForAddressWithOpts(
		ctx,
		vaultState,
		&rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: c.cfg.Commitment,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction signatures: %w", err)
	}

	events := make([]VaultEvent, 0, len(signatures))
	if len(signatures) == 0 {
		return events, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	// Fetch transactions concurrently in batches to stay under RPC limits.
	batchSize := 10
	for i := 0; i < len(signatures); i += batchSize {
		end := i + batchSize
		if end > len(signatures) {
			end = len(signatures)
		}

		for j := i; j < end; j++ {
			wg.Add(1)
			go func(sigInfo *rpc.TransactionSignature) {
				defer wg.Done()

				version := uint64(0)
				tx, err := c.RpcClient.GetTransaction(
					ctx,
					sigInfo.Signature,
					&rpc.GetTransactionOpts{
						Encoding:                       solana.EncodingBase64,
						Commitment:                     c.cfg.Commitment,
						MaxSupportedTransactionVersion: &version,
					},
				)
				if err != nil {
					fmt.Printf("Warning: failed to fetch transaction %s: %v\n", sigInfo.Signature, err)
					return
				}

				for _, event := range parseVaultEvents(tx, sigInfo.Signature) {
					mu.Lock()
					events = append(events, event)
					mu.Unlock()
				}
			}(signatures[j])
		}

		wg.Wait()
	}

	return events, nil
}

// parseVaultEvents extracts the vault program instructions from one
// transaction and decodes their payloads.
func parseVaultEvents(tx *rpc.GetTransactionResult, signature solana.Signature) []VaultEvent {
	if tx == nil || tx.Transaction == nil {
		return nil
	}
	// Skip transactions the runtime rejected.
	if tx.Meta != nil && tx.Meta.Err != nil {
		return nil
	}

	parsed, err := tx.Transaction.GetTransaction()
	if err != nil {
		return nil
	}

	var timestamp time.Time
	if tx.BlockTime != nil {
		timestamp = tx.BlockTime.Time()
	}

	var events []VaultEvent
	msg := parsed.Message
	for _, ci := range msg.Instructions {
		event, err := decodeVaultEvent(msg, ci, signature, timestamp)
		if err != nil {
			// Other programs' instructions are expected in mixed
			// transactions; anything else is worth a warning.
			if !errors.Is(err, ErrInvalidProgram) {
				fmt.Printf("Warning: failed to decode vault instruction in %s: %v\n", signature, err)
			}
			continue
		}
		events = append(events, event)
	}
	return events
}

func decodeVaultEvent(msg solana.Message, ci solana.CompiledInstruction, signature solana.Signature, timestamp time.Time) (VaultEvent, error) {
	event := VaultEvent{
		Signature: signature,
		Timestamp: timestamp,
	}

	program, err := msg.Program(ci.ProgramIDIndex)
	if err != nil {
		return event, fmt.Errorf("%w: unresolvable program index %d", ErrInvalidProgram, ci.ProgramIDIndex)
	}
	if !program.Equals(ProgramID) {
		return event, fmt.Errorf("%w: %s", ErrInvalidProgram, program)
	}

	instructionType, err := DecodeInstructionType(ci.Data)
	if err != nil {
		return event, err
	}

	// Resolve the signing actor for the instruction where one is defined
	// (admin for Init, user for Deposit/Withdraw, operator for
	// Donate/PostRoot, claimer for Claim).
	actorIndex := map[InstructionType]int{
		InstructionTypeInit:     1,
		InstructionTypeDeposit:  2,
		InstructionTypeWithdraw: 2,
		InstructionTypeDonate:   2,
		InstructionTypePostRoot: 1,
		InstructionTypeClaim:    2,
	}[instructionType]
	if actorIndex < len(ci.Accounts) {
		if key, err := msg.Account(ci.Accounts[actorIndex]); err == nil {
			event.Actor = key
		}
	}

	switch instructionType {
	case InstructionTypeInit:
		if _, err := DecodeInitInstructionArgs(ci.Data); err != nil {
			return event, err
		}
		event.Type = "init"
	case InstructionTypeDeposit:
		args, err := DecodeDepositInstructionArgs(ci.Data)
		if err != nil {
			return event, err
		}
		event.Type = "deposit"
		event.Amount = args.Amount
	case InstructionTypeWithdraw:
		args, err := DecodeWithdrawInstructionArgs(ci.Data)
		if err != nil {
			return event, err
		}
		event.Type = "withdraw"
		event.Shares = args.Shares
	case InstructionTypeDonate:
		args, err := DecodeDonateInstructionArgs(ci.Data)
		if err != nil {
			return event, err
		}
		event.Type = "donate"
		event.Amount = args.Amount
		event.Epoch = args.Epoch
		event.BoostBps = args.BoostBps
	case InstructionTypePostRoot:
		args, err := DecodePostRootInstructionArgs(ci.Data)
		if err != nil {
			return event, err
		}
		event.Type = "post_root"
		event.Epoch = args.Epoch
	case InstructionTypeClaim:
		args, err := DecodeClaimInstructionArgs(ci.Data)
		if err != nil {
			return event, err
		}
		event.Type = "claim"
		event.Epoch = args.Epoch
		event.Index = args.Index
	}

	return event, nil
}
