package network

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
)

// TxResult is the decoded form of a transaction as returned by
// getrawtransaction (verbose) and decoderawtransaction.
type TxResult struct {
	TxID          string `json:"txid"`
	Hash          string `json:"hash"`
	Version       int32  `json:"version"`
	Size          int    `json:"size"`
	LockTime      uint32 `json:"locktime"`
	Vin           []Vin  `json:"vin"`
	Vout          []Vout `json:"vout"`
	Hex           string `json:"hex,omitempty"`
	BlockHash     string `json:"blockhash,omitempty"`
	Confirmations int64  `json:"confirmations,omitempty"`
}

// Vin is a decoded transaction input.
type Vin struct {
	TxID      string     `json:"txid,omitempty"`
	Vout      uint32     `json:"vout"`
	Coinbase  string     `json:"coinbase,omitempty"`
	ScriptSig *ScriptSig `json:"scriptSig,omitempty"`
	Sequence  uint32     `json:"sequence"`
}

// ScriptSig is a decoded unlocking script.
type ScriptSig struct {
	Asm string `json:"asm"`
	Hex string `json:"hex"`
}

// Vout is a decoded transaction output.
type Vout struct {
	Value        decimal.Decimal `json:"value"`
	N            uint32          `json:"n"`
	ScriptPubKey ScriptPubKey    `json:"scriptPubKey"`
}

// ScriptPubKey is a decoded locking script. Older nodes report Addresses,
// newer ones Address.
type ScriptPubKey struct {
	Asm       string   `json:"asm"`
	Hex       string   `json:"hex"`
	Type      string   `json:"type"`
	Address   string   `json:"address,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

// PrimaryAddress returns the address the script pays, if any.
func (s ScriptPubKey) PrimaryAddress() string {
	if s.Address != "" {
		return s.Address
	}
	if len(s.Addresses) > 0 {
		return s.Addresses[0]
	}
	return ""
}

// Satoshis returns the output value in satoshis.
func (v Vout) Satoshis() (int64, error) { return BTCToSatoshi(v.Value) }

// FindOutput returns the index of the first output whose script is pkScript.
func (r *TxResult) FindOutput(pkScript []byte) (uint32, error) {
	want := hex.EncodeToString(pkScript)
	for _, out := range r.Vout {
		if out.ScriptPubKey.Hex == want {
			return out.N, nil
		}
	}
	return 0, fmt.Errorf("%w: %s has no output paying %s", ErrTxNotFound, r.TxID, want)
}

// MsgTx deserializes the raw hex carried by the result.
func (r *TxResult) MsgTx() (*wire.MsgTx, error) {
	if r.Hex == "" {
		return nil, fmt.Errorf("%w: result carries no hex", ErrInvalidResponse)
	}
	return DeserializeTx(r.Hex)
}

// DeserializeTx parses a hex-encoded transaction.
func DeserializeTx(rawHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tx hex: %w", ErrInvalidResponse, err)
	}
	var msg wire.MsgTx
	if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: deserialize tx: %w", ErrInvalidResponse, err)
	}
	return &msg, nil
}

// SerializeTx returns the hex encoding of msg.
func SerializeTx(msg *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return "", fmt.Errorf("network: serialize tx: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// DecodeMsgTx renders msg the way decoderawtransaction does.
func DecodeMsgTx(msg *wire.MsgTx, params *chaincfg.Params) *TxResult {
	rawHex, _ := SerializeTx(msg)
	res := &TxResult{
		TxID:     msg.TxHash().String(),
		Hash:     msg.WitnessHash().String(),
		Version:  msg.Version,
		Size:     msg.SerializeSize(),
		LockTime: msg.LockTime,
		Hex:      rawHex,
	}

	coinbase := blockchain.IsCoinBaseTx(msg)
	for _, in := range msg.TxIn {
		vin := Vin{Sequence: in.Sequence}
		if coinbase {
			vin.Coinbase = hex.EncodeToString(in.SignatureScript)
		} else {
			vin.TxID = in.PreviousOutPoint.Hash.String()
			vin.Vout = in.PreviousOutPoint.Index
			vin.ScriptSig = &ScriptSig{
				Asm: disasm(in.SignatureScript),
				Hex: hex.EncodeToString(in.SignatureScript),
			}
		}
		res.Vin = append(res.Vin, vin)
	}

	for i, out := range msg.TxOut {
		class, addrs, _, _ := txscript.ExtractPkScriptAddrs(out.PkScript, params)
		spk := ScriptPubKey{
			Asm:  disasm(out.PkScript),
			Hex:  hex.EncodeToString(out.PkScript),
			Type: class.String(),
		}
		for _, a := range addrs {
			spk.Addresses = append(spk.Addresses, a.EncodeAddress())
		}
		if len(spk.Addresses) == 1 {
			spk.Address = spk.Addresses[0]
		}
		res.Vout = append(res.Vout, Vout{
			Value:        SatoshiToBTC(out.Value),
			N:            uint32(i),
			ScriptPubKey: spk,
		})
	}
	return res
}

func disasm(script []byte) string {
	s, err := txscript.DisasmString(script)
	if err != nil {
		return "[error]"
	}
	return s
}
