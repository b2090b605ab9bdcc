// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

const (
	envelopeVersion uint8 = 1

	// tagSize is the length of the keyed BLAKE3 tag that ends every
	// envelope.
	tagSize = 32
)

// ========== Envelope Authentication ==========

// seal appends the tag of msg under the Context's envelope key.
func (c *Context) seal(msg []byte) ([]byte, error) {
	h, err := blake3.NewKeyed(c.sealKey)
	if err != nil {
		return nil, fmt.Errorf("seal envelope: %w", err)
	}
	h.Write(msg)
	return h.Sum(msg), nil
}

// open checks the trailing tag and returns the envelope without it. Nothing
// in an envelope is read before its tag verifies.
func (c *Context) open(data []byte) ([]byte, error) {
	if len(data) < tagSize {
		return nil, fmt.Errorf("%w: %d byte envelope", ErrInvalidEncoding, len(data))
	}
	msg, tag := data[:len(data)-tagSize], data[len(data)-tagSize:]

	h, err := blake3.NewKeyed(c.sealKey)
	if err != nil {
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	h.Write(msg)
	if subtle.ConstantTimeCompare(h.Sum(nil), tag) != 1 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, ErrEnvelopeTampered)
	}
	return msg, nil
}

// ========== Ciphertext Serialization ==========

type ciphertextHeader struct {
	Version uint8
	Kind    uint8
	Hops    uint16
	Length  uint32
	Target  KeyID
}

// MarshalBinary encodes the ciphertext with its lineage. The envelope is
// authenticated with the envelope key of the Context that produced ct.
func (ct *Ciphertext) MarshalBinary() ([]byte, error) {
	body, err := ct.handle.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize ciphertext: %w", err)
	}

	var buf bytes.Buffer
	hdr := ciphertextHeader{
		Version: envelopeVersion,
		Kind:    uint8(KindCiphertext),
		Hops:    uint16(ct.hops),
		Length:  uint32(ct.length),
		Target:  ct.target,
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("serialize ciphertext header: %w", err)
	}
	buf.Write(body)
	return ct.c.seal(buf.Bytes())
}

// UnmarshalCiphertext decodes a ciphertext produced by MarshalBinary.
// Envelopes sealed under another envelope key are rejected with
// ErrEnvelopeTampered.
func UnmarshalCiphertext(c *Context, data []byte) (*Ciphertext, error) {
	msg, err := c.open(data)
	if err != nil {
		return nil, fmt.Errorf("deserialize ciphertext: %w", err)
	}

	r := bytes.NewReader(msg)
	var hdr ciphertextHeader
	if err := readHeader(r, &hdr, &hdr.Version, &hdr.Kind, KindCiphertext); err != nil {
		return nil, fmt.Errorf("deserialize ciphertext: %w", err)
	}
	if int(hdr.Hops) > c.params.HopBudget {
		return nil, fmt.Errorf("deserialize ciphertext: %w", &HopBudgetError{Hops: int(hdr.Hops), Budget: c.params.HopBudget})
	}
	if int64(hdr.Length) > int64(c.params.RingDim) {
		return nil, fmt.Errorf("deserialize ciphertext: %w: length %d exceeds ring dimension %d",
			ErrInvalidEncoding, hdr.Length, c.params.RingDim)
	}

	h, err := c.backend.Unmarshal(KindCiphertext, msg[len(msg)-r.Len():])
	if err != nil {
		return nil, fmt.Errorf("deserialize ciphertext: %w", err)
	}
	return &Ciphertext{c: c, handle: h, hops: int(hdr.Hops), target: hdr.Target, length: int(hdr.Length)}, nil
}

// ========== EvalKey Serialization ==========

type evalKeyHeader struct {
	Version uint8
	Kind    uint8
	Source  KeyID
	Target  KeyID
}

// MarshalBinary encodes the re-encryption key with its direction.
func (evk *EvalKey) MarshalBinary() ([]byte, error) {
	body, err := evk.handle.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize eval key: %w", err)
	}

	var buf bytes.Buffer
	hdr := evalKeyHeader{
		Version: envelopeVersion,
		Kind:    uint8(KindEvalKey),
		Source:  evk.source,
		Target:  evk.target,
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("serialize eval key header: %w", err)
	}
	buf.Write(body)
	return evk.c.seal(buf.Bytes())
}

// UnmarshalEvalKey decodes a re-encryption key produced by MarshalBinary.
func UnmarshalEvalKey(c *Context, data []byte) (*EvalKey, error) {
	msg, err := c.open(data)
	if err != nil {
		return nil, fmt.Errorf("deserialize eval key: %w", err)
	}

	r := bytes.NewReader(msg)
	var hdr evalKeyHeader
	if err := readHeader(r, &hdr, &hdr.Version, &hdr.Kind, KindEvalKey); err != nil {
		return nil, fmt.Errorf("deserialize eval key: %w", err)
	}

	h, err := c.backend.Unmarshal(KindEvalKey, msg[len(msg)-r.Len():])
	if err != nil {
		return nil, fmt.Errorf("deserialize eval key: %w", err)
	}
	return &EvalKey{c: c, handle: h, source: hdr.Source, target: hdr.Target}, nil
}

func readHeader(r io.Reader, hdr any, version, kind *uint8, want HandleKind) error {
	if err := binary.Read(r, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("%w: read header: %v", ErrInvalidEncoding, err)
	}
	if *version != envelopeVersion {
		return fmt.Errorf("%w: envelope version %d", ErrInvalidEncoding, *version)
	}
	if HandleKind(*kind) != want {
		return fmt.Errorf("%w: envelope holds %s, want %s", ErrInvalidEncoding, HandleKind(*kind), want)
	}
	return nil
}
