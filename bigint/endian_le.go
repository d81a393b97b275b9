//go:build 386 || amd64 || arm || arm64 || loong64 || mips64le || mipsle || ppc64le || riscv64 || wasm

package bigint

// Digit bytes are copied straight out of cell storage, so the host byte
// order must agree with the engine's little-endian digit layout.
const hostLittleEndian = true
