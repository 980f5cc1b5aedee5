package protocol_test

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ramis/protocol"
)

var _ = Describe("Buffer", func() {
	It("uses the defaults for non-positive sizes", func() {
		buf := protocol.NewBuffer(0, 0, 0)
		Expect(buf.Cap()).To(Equal(protocol.DefaultBufferSize))
		Expect(buf.Len()).To(Equal(0))
	})

	It("keeps every written byte when it grows", func() {
		buf := protocol.NewBuffer(4, 4, 1024)

		var expected []byte
		for i := 0; i < 300; i++ {
			Expect(buf.WriteByte(byte(i))).To(Succeed())
			expected = append(expected, byte(i))
			Expect(buf.Bytes()).To(Equal(expected))
		}

		Expect(buf.Cap()).To(Equal(300))
	})

	It("grows by whole increments", func() {
		buf := protocol.NewBuffer(8, 8, 1024)

		Expect(buf.Write(bytes.Repeat([]byte("a"), 20))).To(Equal(20))
		Expect(buf.Cap()).To(Equal(24))

		Expect(buf.Grow()).To(Succeed())
		Expect(buf.Cap()).To(Equal(32))
		Expect(buf.Bytes()).To(Equal(bytes.Repeat([]byte("a"), 20)))
	})

	It("fails to grow past its limit and stays usable", func() {
		buf := protocol.NewBuffer(8, 8, 16)

		Expect(buf.WriteString("12345678")).To(Equal(8))
		Expect(buf.Grow()).To(Succeed())
		Expect(buf.Grow()).To(MatchError(protocol.ErrBufferLimit))

		_, err := buf.Write(make([]byte, 9))
		Expect(err).To(MatchError(protocol.ErrBufferLimit))

		Expect(string(buf.Bytes())).To(Equal("12345678"))
		Expect(buf.WriteString("9")).To(Equal(1))
	})

	It("is filled through Free and Advance", func() {
		buf := protocol.NewBuffer(8, 8, 64)

		n := copy(buf.Free(), "+OK\r\n")
		buf.Advance(n)

		Expect(string(buf.Bytes())).To(Equal("+OK\r\n"))
		Expect(buf.Available()).To(Equal(3))
		Expect(func() { buf.Advance(4) }).To(Panic())
	})

	It("moves leftover bytes to the front on Discard", func() {
		buf := protocol.NewBuffer(16, 16, 64)
		Expect(buf.WriteString("+OK\r\n:1\r\n")).To(Equal(10))

		buf.Discard(5)
		Expect(string(buf.Bytes())).To(Equal(":1\r\n"))

		buf.Discard(100)
		Expect(buf.Len()).To(Equal(0))
	})

	It("truncates back to a mark", func() {
		buf := protocol.NewBuffer(16, 16, 64)
		Expect(buf.WriteString("abcdef")).To(Equal(6))

		buf.Truncate(2)
		Expect(string(buf.Bytes())).To(Equal("ab"))

		buf.Truncate(10)
		Expect(string(buf.Bytes())).To(Equal("ab"))

		buf.Reset()
		Expect(buf.Len()).To(Equal(0))
		Expect(buf.Cap()).To(Equal(16))
	})
})
