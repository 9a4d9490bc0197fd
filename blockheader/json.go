package blockheader

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// headerJSON is the publisher's representation: 64-bit integers as decimal
// strings, fixed-width byte fields as hex. Pointers detect absent fields.
type headerJSON struct {
	Version          *uint16  `json:"version"`
	TransactionCount *uint16  `json:"transactionCount"`
	Number           *decimal `json:"number"`
	PreviousBlock    *string  `json:"previousBlock"`
	MerkleRoot       *string  `json:"merkleRoot"`
	Timestamp        *decimal `json:"timestamp"`
	Difficulty       *string  `json:"difficulty"`
	Nonce            *string  `json:"nonce"`
}

func (h *Header) UnmarshalJSON(data []byte) error {
	var aux headerJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch {
	case aux.Version == nil:
		return missing("version")
	case aux.TransactionCount == nil:
		return missing("transactionCount")
	case aux.Number == nil:
		return missing("number")
	case aux.PreviousBlock == nil:
		return missing("previousBlock")
	case aux.MerkleRoot == nil:
		return missing("merkleRoot")
	case aux.Timestamp == nil:
		return missing("timestamp")
	case aux.Difficulty == nil:
		return missing("difficulty")
	case aux.Nonce == nil:
		return missing("nonce")
	}

	h.Version = *aux.Version
	h.TransactionCount = *aux.TransactionCount
	h.Number = uint64(*aux.Number)
	h.Timestamp = uint64(*aux.Timestamp)
	if err := decodeFixed("previousBlock", *aux.PreviousBlock, h.PreviousBlock[:]); err != nil {
		return err
	}
	if err := decodeFixed("merkleRoot", *aux.MerkleRoot, h.MerkleRoot[:]); err != nil {
		return err
	}
	if err := decodeFixed("difficulty", *aux.Difficulty, h.Difficulty[:]); err != nil {
		return err
	}
	return decodeFixed("nonce", *aux.Nonce, h.Nonce[:])
}

func (h Header) MarshalJSON() ([]byte, error) {
	number := decimal(h.Number)
	timestamp := decimal(h.Timestamp)
	previousBlock := hex.EncodeToString(h.PreviousBlock[:])
	merkleRoot := hex.EncodeToString(h.MerkleRoot[:])
	difficulty := hex.EncodeToString(h.Difficulty[:])
	nonce := hex.EncodeToString(h.Nonce[:])
	return json.Marshal(headerJSON{
		Version:          &h.Version,
		TransactionCount: &h.TransactionCount,
		Number:           &number,
		PreviousBlock:    &previousBlock,
		MerkleRoot:       &merkleRoot,
		Timestamp:        &timestamp,
		Difficulty:       &difficulty,
		Nonce:            &nonce,
	})
}

func missing(field string) error {
	return fmt.Errorf("header: missing field %q", field)
}

func decodeFixed(field, s string, dst []byte) error {
	if hex.DecodedLen(len(s)) != len(dst) {
		return fmt.Errorf("header: %s: %d hex digits, want %d", field, len(s), 2*len(dst))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("header: %s: %w", field, err)
	}
	return nil
}

// decimal is a u64 carried as a decimal string; a bare JSON number is
// accepted as well.
type decimal uint64

func (d decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(d), 10))
}

func (d *decimal) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	if s == "" || s == "null" {
		return errors.New("empty decimal")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*d = decimal(n)
	return nil
}
