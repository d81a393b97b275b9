package bigint

// Layout describes where an engine build places the pieces of a bigint cell
// in linear memory. The layout is private to the engine build and is only
// valid for the ABI version the bridge was checked against at load time.
type Layout struct {
	// HeaderSize is the byte length of the cell header preceding digit
	// storage.
	HeaderSize uint32

	// FlagsOffset is the byte offset of the u32 flags word within the cell.
	FlagsOffset uint32

	// CountOffset is the byte offset of the u32 digit count within the cell.
	CountOffset uint32

	// DigitsOffset is the byte offset where digit storage, or the heap
	// pointer to it, begins.
	DigitsOffset uint32

	// DigitBytes is the byte width of one digit.
	DigitBytes uint32

	// InlineMaxDigits is the largest digit count stored inline in the cell.
	// Above it, DigitsOffset holds a u32 pointer to heap digit storage.
	InlineMaxDigits uint32

	// SignMask selects the negative-sign bit within the flags word.
	SignMask uint32
}

// DefaultLayout matches engine builds reporting the currently supported ABI
// version: an 8-byte header of flags and digit count, 64-bit digits stored
// least significant first, and at most one digit held inline.
var DefaultLayout = Layout{
	HeaderSize:      8,
	FlagsOffset:     0,
	CountOffset:     4,
	DigitsOffset:    8,
	DigitBytes:      8,
	InlineMaxDigits: 1,
	SignMask:        0b1000,
}
