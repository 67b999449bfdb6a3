// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fact

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
)

// SchemaVersion is the current binary layout written by Encode.
const SchemaVersion byte = 1

// headerLen is 1 schema byte plus a 4-byte CRC32.
const headerLen = 5

// ErrSerialization is matched by every encode/decode failure, so callers
// can tell a format problem from a disk problem.
var ErrSerialization = errors.New("fact serialization failed")

// CodecError describes a payload that could not be encoded or decoded.
type CodecError struct {
	Op  string // "encode" or "decode"
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s fact: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CodecError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrSerialization.
func (e *CodecError) Is(target error) bool {
	return target == ErrSerialization
}

// Encode serializes d to the compact binary form.
//
// Layout: [schema byte][CRC32 of body, big endian][gob body].
func Encode(d *Data) ([]byte, error) {
	if d == nil {
		return nil, &CodecError{Op: "encode", Err: errors.New("nil data")}
	}

	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(d); err != nil {
		return nil, &CodecError{Op: "encode", Err: fmt.Errorf("gob encode: %w", err)}
	}

	out := make([]byte, headerLen+body.Len())
	out[0] = SchemaVersion
	binary.BigEndian.PutUint32(out[1:headerLen], crc32.ChecksumIEEE(body.Bytes()))
	copy(out[headerLen:], body.Bytes())
	return out, nil
}

// Decode parses bytes written by Encode and verifies the checksum.
func Decode(raw []byte) (*Data, error) {
	if len(raw) <= headerLen {
		return nil, &CodecError{Op: "decode", Err: fmt.Errorf("payload too short (%d bytes)", len(raw))}
	}
	if raw[0] != SchemaVersion {
		return nil, &CodecError{Op: "decode", Err: fmt.Errorf("unsupported schema version %d", raw[0])}
	}

	stored := binary.BigEndian.Uint32(raw[1:headerLen])
	body := raw[headerLen:]
	if computed := crc32.ChecksumIEEE(body); stored != computed {
		return nil, &CodecError{Op: "decode", Err: fmt.Errorf("crc mismatch: stored=%08x computed=%08x", stored, computed)}
	}

	var d Data
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&d); err != nil {
		return nil, &CodecError{Op: "decode", Err: fmt.Errorf("gob decode: %w", err)}
	}
	return &d, nil
}

// MarshalJSON renders d the way export files are written: two-space
// indent and a trailing newline.
func MarshalJSON(d *Data) ([]byte, error) {
	if d == nil {
		return nil, &CodecError{Op: "encode", Err: errors.New("nil data")}
	}
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, &CodecError{Op: "encode", Err: fmt.Errorf("json encode: %w", err)}
	}
	return append(out, '\n'), nil
}

// UnmarshalJSON parses an export file.
func UnmarshalJSON(raw []byte) (*Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, &CodecError{Op: "decode", Err: fmt.Errorf("json decode: %w", err)}
	}
	return &d, nil
}
