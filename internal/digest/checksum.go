package digest

import (
	"fmt"
	"hash/adler32"
	"hash/crc32"
)

var (
	ieeeTable       = crc32.IEEETable
	castagnoliTable = crc32.MakeTable(crc32.Castagnoli)
)

// crc32Accumulator keeps the running value seeded at zero and re-fed on
// every update, so the result is independent of chunk boundaries.
type crc32Accumulator struct {
	name  string
	table *crc32.Table
	crc   uint32
}

func newCRC32(name string, table *crc32.Table) *crc32Accumulator {
	return &crc32Accumulator{name: name, table: table}
}

func (c *crc32Accumulator) Name() string { return c.name }

func (c *crc32Accumulator) Update(chunk []byte) {
	c.crc = crc32.Update(c.crc, c.table, chunk)
}

func (c *crc32Accumulator) Sum() string {
	return formatChecksum(c.crc)
}

// Value returns the running 32-bit value.
func (c *crc32Accumulator) Value() uint32 {
	return c.crc
}

type adler32Accumulator struct {
	h interface {
		Write([]byte) (int, error)
		Sum32() uint32
	}
}

func newAdler32() *adler32Accumulator {
	return &adler32Accumulator{h: adler32.New()}
}

func (a *adler32Accumulator) Name() string { return "Adler-32" }

func (a *adler32Accumulator) Update(chunk []byte) {
	_, _ = a.h.Write(chunk)
}

func (a *adler32Accumulator) Sum() string {
	return formatChecksum(a.h.Sum32())
}

func formatChecksum(v uint32) string {
	return fmt.Sprintf("%08x", v)
}
