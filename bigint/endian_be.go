//go:build !(386 || amd64 || arm || arm64 || loong64 || mips64le || mipsle || ppc64le || riscv64 || wasm)

package bigint

// Big-endian hosts would reinterpret digit storage; the codec refuses to
// run rather than produce silently wrong magnitudes.
const hostLittleEndian = false
