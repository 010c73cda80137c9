package contract

import (
	"bytes"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// Parse decodes a redeem script produced by one of the Build functions back
// into a Contract. Scripts that decode but are not in canonical form (for
// example a lock height pushed with a non-minimal opcode) are rejected, so
// Parse(c.RedeemScript) always yields a contract with identical bytes.
func Parse(redeemScript []byte, params *chaincfg.Params) (*Contract, error) {
	chunks, err := script.NewFromBytes(redeemScript).Chunks()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnrecognizedScript, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: empty script", ErrUnrecognizedScript)
	}

	var branches []Condition
	if chunks[0].Op == txscript.OP_IF {
		branches, err = parseHTLC(chunks)
	} else {
		var cond Condition
		var rest []*script.ScriptChunk
		cond, rest, err = parseCondition(chunks)
		if err == nil && len(rest) != 0 {
			err = fmt.Errorf("%w: %d trailing chunks", ErrUnrecognizedScript, len(rest))
		}
		if err == nil && (cond.HasHashLock() || !cond.HasTimeLock()) {
			err = fmt.Errorf("%w: single-branch script must be a pure timelock", ErrUnrecognizedScript)
		}
		branches = []Condition{cond}
	}
	if err != nil {
		return nil, err
	}

	c, err := rebuild(branches, params)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(c.RedeemScript, redeemScript) {
		return nil, fmt.Errorf("%w: non-canonical encoding", ErrUnrecognizedScript)
	}
	return c, nil
}

func parseHTLC(chunks []*script.ScriptChunk) ([]Condition, error) {
	a, rest, err := parseCondition(chunks[1:])
	if err != nil {
		return nil, fmt.Errorf("branch A: %w", err)
	}
	if len(rest) == 0 || rest[0].Op != txscript.OP_ELSE {
		return nil, fmt.Errorf("%w: expected OP_ELSE", ErrUnrecognizedScript)
	}
	b, rest, err := parseCondition(rest[1:])
	if err != nil {
		return nil, fmt.Errorf("branch B: %w", err)
	}
	if len(rest) != 1 || rest[0].Op != txscript.OP_ENDIF {
		return nil, fmt.Errorf("%w: expected final OP_ENDIF", ErrUnrecognizedScript)
	}
	return []Condition{a, b}, nil
}

// parseCondition consumes one branch body and returns the remaining chunks.
func parseCondition(chunks []*script.ScriptChunk) (Condition, []*script.ScriptChunk, error) {
	var c Condition

	if len(chunks) >= 3 && chunks[0].Op == txscript.OP_HASH256 {
		if len(chunks[1].Data) != HashLen || chunks[2].Op != txscript.OP_EQUALVERIFY {
			return c, nil, fmt.Errorf("%w: malformed hash lock", ErrUnrecognizedScript)
		}
		c.HashLock = chunks[1].Data
		chunks = chunks[3:]
	}

	if len(chunks) >= 3 && chunks[1].Op == txscript.OP_CHECKLOCKTIMEVERIFY {
		h, err := chunkNumber(chunks[0])
		if err != nil {
			return c, nil, err
		}
		if h <= 0 || h >= LockTimeThreshold {
			return c, nil, fmt.Errorf("%w: lock height %d out of range", ErrUnrecognizedScript, h)
		}
		if chunks[2].Op != txscript.OP_DROP {
			return c, nil, fmt.Errorf("%w: expected OP_DROP after OP_CHECKLOCKTIMEVERIFY", ErrUnrecognizedScript)
		}
		c.LockHeight = uint32(h)
		chunks = chunks[3:]
	}

	if len(chunks) < 2 || len(chunks[0].Data) != CompressedPubKeyLen || chunks[1].Op != txscript.OP_CHECKSIG {
		return c, nil, fmt.Errorf("%w: expected <pubkey> OP_CHECKSIG", ErrUnrecognizedScript)
	}
	c.PubKey = chunks[0].Data
	return c, chunks[2:], nil
}

func chunkNumber(ch *script.ScriptChunk) (int64, error) {
	if ch.Op >= txscript.OP_1 && ch.Op <= txscript.OP_16 {
		return int64(ch.Op-txscript.OP_1) + 1, nil
	}
	if ch.Op == txscript.OP_0 || ch.Op > txscript.OP_PUSHDATA4 {
		return 0, fmt.Errorf("%w: opcode 0x%02x is not a lock height", ErrUnrecognizedScript, ch.Op)
	}
	n, err := DecodeScriptNum(ch.Data, MaxScriptNumLen)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnrecognizedScript, err)
	}
	return n, nil
}

func rebuild(branches []Condition, params *chaincfg.Params) (*Contract, error) {
	if len(branches) == 1 {
		return BuildCLTV(branches[0].LockHeight, branches[0].PubKey, params)
	}
	a, b := branches[0], branches[1]
	switch {
	case a.HasHashLock() && !a.HasTimeLock() && !b.HasHashLock() && b.HasTimeLock():
		return BuildGuarantee(a.HashLock, a.PubKey, b.LockHeight, b.PubKey, params)
	case a.HasHashLock() && !a.HasTimeLock() && b.HasHashLock() && !b.HasTimeLock():
		return BuildDelivery(a.HashLock, a.PubKey, b.HashLock, b.PubKey, params)
	default:
		return BuildHTLC(a, b, params)
	}
}
