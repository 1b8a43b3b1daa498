package solana

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	signatureLen = 64
	pubkeyLen    = 32
	// versionPrefix marks a versioned (v0+) message.
	versionPrefix = 0x80
)

// ErrSignerNotRequired is returned when the keypair is not among the required signers.
var ErrSignerNotRequired = errors.New("keypair is not a required signer")

// SignTransaction decodes a base64 wire transaction, places the keypair's
// signature in its signer slot, and returns the re-encoded transaction and the
// transaction id (base58 of the first signature).
func SignTransaction(encoded string, kp *Keypair) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", fmt.Errorf("decode transaction: %w", err)
	}

	signed, err := SignTransactionBytes(raw, kp)
	if err != nil {
		return "", "", err
	}

	txID := base58.Encode(signed.Signatures()[0])
	return base64.StdEncoding.EncodeToString(signed.raw), txID, nil
}

// WireTransaction is a parsed view over a serialized transaction.
type WireTransaction struct {
	raw        []byte
	numSigs    int
	sigOffset  int
	msgOffset  int
	numSigners int
	keys       [][]byte
}

// ParseWireTransaction parses signature slots and the static account keys of a
// legacy or versioned transaction.
func ParseWireTransaction(raw []byte) (*WireTransaction, error) {
	numSigs, n, err := decodeCompactU16(raw)
	if err != nil {
		return nil, fmt.Errorf("signature count: %w", err)
	}
	tx := &WireTransaction{raw: raw, numSigs: numSigs, sigOffset: n}
	tx.msgOffset = n + numSigs*signatureLen
	if tx.msgOffset > len(raw) {
		return nil, fmt.Errorf("truncated signatures")
	}

	pos := tx.msgOffset
	if pos < len(raw) && raw[pos]&versionPrefix != 0 {
		if version := raw[pos] &^ versionPrefix; version != 0 {
			return nil, fmt.Errorf("unsupported message version %d", version)
		}
		pos++
	}

	// header: numRequiredSignatures, numReadonlySigned, numReadonlyUnsigned
	if pos+3 > len(raw) {
		return nil, fmt.Errorf("truncated message header")
	}
	tx.numSigners = int(raw[pos])
	pos += 3

	numKeys, n, err := decodeCompactU16(raw[pos:])
	if err != nil {
		return nil, fmt.Errorf("account key count: %w", err)
	}
	pos += n
	if pos+numKeys*pubkeyLen > len(raw) {
		return nil, fmt.Errorf("truncated account keys")
	}
	tx.keys = make([][]byte, numKeys)
	for i := range tx.keys {
		tx.keys[i] = raw[pos : pos+pubkeyLen]
		pos += pubkeyLen
	}

	if tx.numSigners != tx.numSigs {
		return nil, fmt.Errorf("signature slots %d do not match required signers %d", tx.numSigs, tx.numSigners)
	}
	if tx.numSigners > numKeys {
		return nil, fmt.Errorf("required signers %d exceed account keys %d", tx.numSigners, numKeys)
	}
	return tx, nil
}

// Message returns the serialized message bytes that signatures cover.
func (t *WireTransaction) Message() []byte {
	return t.raw[t.msgOffset:]
}

// Signatures returns the signature slots in order.
func (t *WireTransaction) Signatures() [][]byte {
	out := make([][]byte, t.numSigs)
	for i := range out {
		off := t.sigOffset + i*signatureLen
		out[i] = t.raw[off : off+signatureLen]
	}
	return out
}

// SignTransactionBytes signs a serialized transaction in a copy of raw.
func SignTransactionBytes(raw []byte, kp *Keypair) (*WireTransaction, error) {
	buf := make([]byte, len(raw))
	copy(buf, raw)

	tx, err := ParseWireTransaction(buf)
	if err != nil {
		return nil, err
	}
	if tx.numSigs == 0 {
		return nil, fmt.Errorf("transaction has no signature slots")
	}

	pub := kp.PublicKeyBytes()
	idx := -1
	for i := 0; i < tx.numSigners; i++ {
		if bytes.Equal(tx.keys[i], pub) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrSignerNotRequired
	}

	sig := kp.Sign(tx.Message())
	copy(buf[tx.sigOffset+idx*signatureLen:], sig)
	return tx, nil
}

// decodeCompactU16 decodes Solana's compact-u16 length prefix.
func decodeCompactU16(b []byte) (int, int, error) {
	var val int
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("compact-u16: unexpected end of input")
		}
		elem := int(b[i])
		val |= (elem & 0x7f) << (7 * i)
		if elem&0x80 == 0 {
			return val, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("compact-u16: overlong encoding")
}
