// Package bigint moves arbitrary-precision integers across the runtime
// boundary without truncation.
//
// The engine exposes no export for reading a bigint's magnitude, so the
// decoder reaches into linear memory and takes the digits straight out of
// the engine's cell representation: a header carrying flags and a digit
// count, followed by 64-bit little-endian digits stored inline or behind a
// heap pointer. That layout is private to the engine build, which is why
// the bridge refuses to load an engine reporting an unknown ABI version.
//
// Encoding runs the other way through public construction exports, with
// one private poke: negative values are produced by setting the sign bit
// in the freshly built cell's flags word.
package bigint
