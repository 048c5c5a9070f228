package gcs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/url"

	"github.com/klauspost/compress/flate"
)

// ChunkSize is the alignment of every resumable upload range except the last.
const ChunkSize = 256 * 1024

// stateVersion tags the binary layout of ResumableState.
const stateVersion byte = 1

// ResumableState is the caller-held resumption token of a resumable upload:
// the session URL, the committed chunk-aligned offset and the bytes written
// past it. Offset+len(Remainder) is the total number of bytes written.
//
// Binary layout: version byte, uvarint offset, uvarint-length-prefixed UTF-8
// session URL, then the flate-compressed remainder filling the rest.
type ResumableState struct {
	SessionURL string
	Offset     int64
	Remainder  []byte
}

// Written returns the total bytes written into the upload so far.
func (s ResumableState) Written() int64 {
	return s.Offset + int64(len(s.Remainder))
}

// MarshalBinary encodes the state.
func (s ResumableState) MarshalBinary() ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	buf.WriteByte(stateVersion)
	buf.Write(binary.AppendUvarint(nil, uint64(s.Offset)))
	buf.Write(binary.AppendUvarint(nil, uint64(len(s.SessionURL))))
	buf.WriteString(s.SessionURL)

	fw, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("gcs: creating remainder compressor: %w", err)
	}

	if _, err := fw.Write(s.Remainder); err != nil {
		return nil, fmt.Errorf("gcs: compressing remainder: %w", err)
	}

	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("gcs: compressing remainder: %w", err)
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary decodes and validates a state blob. Any truncation,
// corruption or violated invariant yields ErrMalformedState.
func (s *ResumableState) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformedState)
	}

	if data[0] != stateVersion {
		return fmt.Errorf("%w: unknown version %d", ErrMalformedState, data[0])
	}

	rest := data[1:]

	offset, n := binary.Uvarint(rest)
	if n <= 0 || offset > math.MaxInt64 {
		return fmt.Errorf("%w: bad offset", ErrMalformedState)
	}

	rest = rest[n:]

	urlLen, n := binary.Uvarint(rest)
	if n <= 0 || urlLen > uint64(len(rest)-n) {
		return fmt.Errorf("%w: bad session URL length", ErrMalformedState)
	}

	rest = rest[n:]
	sessionURL := string(rest[:urlLen])
	rest = rest[urlLen:]

	// bytes.Reader is an io.ByteReader, so the decompressor consumes exactly
	// the compressed stream and anything left over is trailing data.
	br := bytes.NewReader(rest)
	fr := flate.NewReader(br)
	defer fr.Close()

	remainder, err := io.ReadAll(io.LimitReader(fr, ChunkSize))
	if err != nil {
		return fmt.Errorf("%w: remainder: %w", ErrMalformedState, err)
	}

	if br.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedState, br.Len())
	}

	decoded := ResumableState{
		SessionURL: sessionURL,
		Offset:     int64(offset),
		Remainder:  remainder,
	}

	if err := decoded.validate(); err != nil {
		return err
	}

	*s = decoded

	return nil
}

// validate checks the state invariants.
func (s ResumableState) validate() error {
	if s.Offset < 0 || s.Offset%ChunkSize != 0 {
		return fmt.Errorf("%w: offset %d is not a multiple of %d", ErrMalformedState, s.Offset, ChunkSize)
	}

	if len(s.Remainder) >= ChunkSize {
		return fmt.Errorf("%w: remainder of %d bytes is not below chunk size", ErrMalformedState, len(s.Remainder))
	}

	u, err := url.Parse(s.SessionURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: invalid session URL", ErrMalformedState)
	}

	return nil
}

// DecodeResumableState decodes a state blob.
func DecodeResumableState(data []byte) (ResumableState, error) {
	var s ResumableState
	if err := s.UnmarshalBinary(data); err != nil {
		return ResumableState{}, err
	}

	return s, nil
}
