package process

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"gomemscan/codec"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "transfer"))

// ReadMemory reads size bytes at addr. Short OS transfers are retried from where they
// stopped; when the OS reports that nothing more is available the bytes read so far
// are returned. The result is never longer than size.
func ReadMemory(p Process, addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error) {
	if !p.IsOpen() {
		return nil, ErrProcessNotOpen
	}
	if size == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, size)
	got := 0
	for got < len(buf) {
		n, err := p.ReadMemoryAt(buf[got:], addr+ProcessMemoryAddress(got))
		if n < 0 || n > len(buf)-got {
			n = 0
		}
		got += n

		switch {
		case errors.Is(err, ErrPartialTransfer), err == nil && n == 0:
			if got > 0 {
				return buf[:got], nil
			}
			return nil, &TransferError{Op: "read", Address: addr, Length: size, Err: ErrPartialTransfer}
		case errors.Is(err, ErrProcessNotOpen):
			return nil, err
		case err != nil:
			return nil, &TransferError{Op: "read", Address: addr, Length: size, Err: err}
		}
	}
	return buf, nil
}

// WriteMemory writes data at addr. The range is made executable and writable for the
// duration of the write when the OS allows it; the previous protection is restored
// afterwards. Protection failures are logged and the write is attempted regardless.
func WriteMemory(p Process, addr ProcessMemoryAddress, data []byte) (int, error) {
	if !p.IsOpen() {
		return 0, ErrProcessNotOpen
	}
	if len(data) == 0 {
		return 0, nil
	}

	size := ProcessMemorySize(len(data))
	old, protErr := p.ProtectMemory(addr, size, PageExecuteReadWrite)
	if protErr != nil {
		log.Debugln("Unable to change protection at", addr.ToString(), protErr)
	} else {
		defer func() {
			if _, err := p.ProtectMemory(addr, size, old); err != nil {
				log.Warn("Failed to restore protection at ", addr.ToString(), ": ", err)
			}
		}()
	}

	written := 0
	for written < len(data) {
		n, err := p.WriteMemoryAt(addr+ProcessMemoryAddress(written), data[written:])
		if n < 0 || n > len(data)-written {
			n = 0
		}
		written += n

		switch {
		case errors.Is(err, ErrProcessNotOpen):
			return written, err
		case errors.Is(err, ErrPartialTransfer), err == nil && n == 0:
			if written > 0 {
				return written, nil
			}
			return 0, &TransferError{Op: "write", Address: addr, Length: size, Err: ErrPartialTransfer}
		case err != nil:
			return written, &TransferError{Op: "write", Address: addr, Length: size, Err: err}
		}
	}
	return written, nil
}

// Read decodes a numeric scalar of type t at addr.
func Read(p Process, addr ProcessMemoryAddress, t codec.ScalarType) (float64, error) {
	w, err := t.Width()
	if err != nil {
		return 0, err
	}

	data, err := ReadMemory(p, addr, ProcessMemorySize(w))
	if err != nil {
		return 0, err
	}
	if len(data) < w {
		return 0, &TransferError{Op: "read", Address: addr, Length: ProcessMemorySize(w), Err: ErrPartialTransfer}
	}
	return codec.Decode(t, data)
}

// Write encodes v as t and writes it at addr.
func Write(p Process, addr ProcessMemoryAddress, t codec.ScalarType, v float64) (int, error) {
	data, err := codec.Encode(t, v)
	if err != nil {
		return 0, err
	}
	return WriteMemory(p, addr, data)
}

// ReadString reads a NUL-terminated string of at most maxLen bytes. A string that runs
// into unreadable memory before its terminator fails with ErrPartialTransfer.
func ReadString(p Process, addr ProcessMemoryAddress, maxLen int) (string, error) {
	const step = 64

	var out []byte
	for len(out) < maxLen {
		n := min(step, maxLen-len(out))
		chunk, err := ReadMemory(p, addr+ProcessMemoryAddress(len(out)), ProcessMemorySize(n))
		if err != nil {
			return "", err
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return string(append(out, chunk[:i]...)), nil
		}
		out = append(out, chunk...)
		if len(chunk) < n {
			return "", &TransferError{Op: "read", Address: addr, Length: ProcessMemorySize(maxLen), Err: ErrPartialTransfer}
		}
	}
	return "", fmt.Errorf("%w: no terminator within %d bytes at %s", ErrStringTooLong, maxLen, addr.ToString())
}

// PointerWidth is 8 for targets whose address space extends past 4 GiB, else 4.
func PointerWidth(p Process) int {
	_, maxAddr := p.AddressBounds()
	if maxAddr > 0x100000000 {
		return 8
	}
	return 4
}

// ReadPointerPath follows a pointer path. It starts at base, adds the first offset,
// dereferences, adds the next offset, and so on. The last offset is added to the final
// pointer without dereferencing it, and the resulting address is returned.
func ReadPointerPath(p Process, base ProcessMemoryAddress, offsets ...int64) (ProcessMemoryAddress, error) {
	width := PointerWidth(p)

	current := base
	for i := 0; i < len(offsets)-1; i++ {
		at := ProcessMemoryAddress(int64(current) + offsets[i])

		raw, err := ReadMemory(p, at, ProcessMemorySize(width))
		if err != nil {
			return 0, fmt.Errorf("failed to read pointer at offset %d (addr %s): %w", i, at.ToString(), err)
		}
		if len(raw) < width {
			return 0, fmt.Errorf("short pointer read at %s: %w", at.ToString(), ErrPartialTransfer)
		}

		var next uint64
		if width == 8 {
			next = binary.LittleEndian.Uint64(raw)
		} else {
			next = uint64(binary.LittleEndian.Uint32(raw))
		}
		if next == 0 {
			return 0, fmt.Errorf("pointer at offset %d (addr %s) is null", i, at.ToString())
		}
		current = ProcessMemoryAddress(next)
	}

	if len(offsets) > 0 {
		current = ProcessMemoryAddress(int64(current) + offsets[len(offsets)-1])
	}
	return current, nil
}
