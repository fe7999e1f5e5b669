package events

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/hts/authsvc"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformedPayload marks a message that can never be decoded.
var ErrMalformedPayload = errors.New("malformed account event payload")

// Field numbers shared by both event messages:
//
//	message AccountCreatedEvent { int64 account_id = 1; string password = 2; }
//	message AccountDeletedEvent { int64 account_id = 1; }
const (
	fieldAccountID protowire.Number = 1
	fieldPassword  protowire.Number = 2
)

type wireEvent struct {
	accountID    int64
	hasAccountID bool
	password     string
}

// DecodeAccountCreated parses an AccountCreatedEvent payload. Unknown fields
// are skipped.
func DecodeAccountCreated(payload []byte) (authsvc.AccountEvent, error) {
	w, err := decodeWire(payload)
	if err != nil {
		return authsvc.AccountEvent{}, err
	}
	if !w.hasAccountID {
		return authsvc.AccountEvent{}, fmt.Errorf("%w: missing account_id", ErrMalformedPayload)
	}
	return authsvc.AccountCreated(w.accountID, w.password), nil
}

// DecodeAccountDeleted parses an AccountDeletedEvent payload. A password
// field, if present, is ignored.
func DecodeAccountDeleted(payload []byte) (authsvc.AccountEvent, error) {
	w, err := decodeWire(payload)
	if err != nil {
		return authsvc.AccountEvent{}, err
	}
	if !w.hasAccountID {
		return authsvc.AccountEvent{}, fmt.Errorf("%w: missing account_id", ErrMalformedPayload)
	}
	return authsvc.AccountDeleted(w.accountID), nil
}

func EncodeAccountCreated(accountID int64, password string) []byte {
	b := protowire.AppendTag(nil, fieldAccountID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(accountID))
	b = protowire.AppendTag(b, fieldPassword, protowire.BytesType)
	return protowire.AppendString(b, password)
}

func EncodeAccountDeleted(accountID int64) []byte {
	b := protowire.AppendTag(nil, fieldAccountID, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(accountID))
}

func decodeWire(b []byte) (wireEvent, error) {
	var w wireEvent
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldAccountID && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return wireEvent{}, fmt.Errorf("%w: account_id: %v", ErrMalformedPayload, protowire.ParseError(m))
			}
			w.accountID = int64(v)
			w.hasAccountID = true
			b = b[m:]
		case num == fieldPassword && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return wireEvent{}, fmt.Errorf("%w: password: %v", ErrMalformedPayload, protowire.ParseError(m))
			}
			if !utf8.Valid(v) {
				return wireEvent{}, fmt.Errorf("%w: password is not valid utf-8", ErrMalformedPayload)
			}
			w.password = string(v)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return wireEvent{}, fmt.Errorf("%w: field %d: %v", ErrMalformedPayload, num, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return w, nil
}
