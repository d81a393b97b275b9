package bigint

import (
	"encoding/hex"
	"math/big"
	"strings"

	"go.uber.org/zap"

	jsbridge "github.com/Ciarands/jsbridge"
	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/errors"
	"github.com/Ciarands/jsbridge/hostval"
)

// maxDigits bounds the digit count read from a cell header. Anything above
// it is treated as corrupt rather than attempted.
const maxDigits = 1 << 24

// Codec reads and writes arbitrary-precision integers across the boundary
// by decoding engine bigint cells directly from linear memory and building
// engine bigints through the construction exports.
type Codec struct {
	layout Layout
	log    *zap.Logger
}

// NewCodec creates a codec for the given cell layout.
func NewCodec(layout Layout, log *zap.Logger) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	return &Codec{layout: layout, log: log}
}

// Decode reads the bigint cell at ref out of mem and returns its value.
// Every call returns a freshly allocated wrapper: decoding the same cell
// twice, or decoding zero, never aliases a prior result.
func (c *Codec) Decode(mem jsbridge.Memory, ref engine.Ref) (*hostval.Big, error) {
	if !hostLittleEndian {
		return nil, errors.Unsupported(errors.PhaseDecode,
			"bigint decoding requires a little-endian host")
	}

	l := c.layout
	flags, err := mem.ReadU32(uint32(ref) + l.FlagsOffset)
	if err != nil {
		return nil, err
	}
	count, err := mem.ReadU32(uint32(ref) + l.CountOffset)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return hostval.NewBigZero(), nil
	}
	if count > maxDigits {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Detail("digit count %d exceeds limit %d", count, maxDigits).
			Build()
	}

	// Small magnitudes live inline in the cell; larger ones behind a heap
	// pointer at the same offset.
	base := uint32(ref) + l.DigitsOffset
	if count > l.InlineMaxDigits {
		ptr, err := mem.ReadU32(base)
		if err != nil {
			return nil, err
		}
		if ptr == 0 {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Detail("bigint cell has %d digits but a null heap pointer", count).
				Build()
		}
		base = ptr
	}

	raw, err := mem.Read(base, count*l.DigitBytes)
	if err != nil {
		return nil, err
	}

	// Digits are least significant first, each little-endian, so the whole
	// run is the magnitude little-endian. SetBytes wants big-endian.
	buf := make([]byte, len(raw))
	for i, b := range raw {
		buf[len(raw)-1-i] = b
	}

	n := new(big.Int).SetBytes(buf)
	if n.Sign() == 0 {
		return hostval.NewBigZero(), nil
	}
	if flags&l.SignMask != 0 {
		n.Neg(n)
	}
	return hostval.NewBig(n), nil
}

// Encode builds an engine bigint holding n and returns its ref. The
// magnitude goes through the fast single-digit constructor when it fits,
// otherwise through hex parsing; the sign is then applied by setting the
// sign bit in the new cell's flags word.
func (c *Codec) Encode(eng engine.BigIntOps, mem jsbridge.Memory, n *hostval.Big) (engine.Ref, error) {
	if !hostLittleEndian {
		return 0, errors.Unsupported(errors.PhaseEncode,
			"bigint encoding requires a little-endian host")
	}
	if n == nil || n.Int == nil {
		return 0, errors.InvalidInput(errors.PhaseEncode, "nil bigint value")
	}

	l := c.layout
	digitBits := int(l.DigitBytes) * 8
	bitLen := n.Int.BitLen()
	digitCount := (bitLen + digitBits - 1) / digitBits
	if digitCount == 0 {
		digitCount = 1
	}

	abs := new(big.Int).Abs(n.Int)

	var ref engine.Ref
	var err error
	if digitCount == 1 && l.DigitBytes == 8 {
		ref, err = eng.BigIntFromUint64(abs.Uint64())
	} else {
		// Full-width hex: every digit rendered to its complete width so
		// the engine's parser reproduces the exact digit count.
		buf := make([]byte, digitCount*int(l.DigitBytes))
		abs.FillBytes(buf)
		ref, err = eng.ParseBigIntHex(strings.ToUpper(hex.EncodeToString(buf)))
	}
	if err != nil {
		return 0, err
	}
	if ref == 0 {
		return 0, errors.Conversion(errors.PhaseEncode, "engine rejected bigint construction", nil)
	}

	if n.Int.Sign() < 0 {
		flagsAt := uint32(ref) + l.FlagsOffset
		flags, err := mem.ReadU32(flagsAt)
		if err != nil {
			return 0, err
		}
		if err := mem.WriteU32(flagsAt, flags|l.SignMask); err != nil {
			return 0, err
		}
	}

	c.log.Debug("encoded bigint",
		zap.Int("bits", bitLen),
		zap.Int("digits", digitCount),
		zap.Bool("negative", n.Int.Sign() < 0))

	return ref, nil
}
