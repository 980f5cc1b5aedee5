package protocol_test

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ramis/protocol"
)

// bulkTokens decodes a multi-bulk command back into its tokens.
func bulkTokens(wire []byte) []string {
	dec := protocol.NewDecoder(false)

	status, err := dec.Parse(wire, true)
	Expect(err).To(Succeed())
	Expect(status).To(Equal(protocol.Complete))
	Expect(dec.Consumed()).To(Equal(len(wire)))

	tokens := make([]string, 0, dec.Reply().Len())
	for _, item := range dec.Reply().Items {
		Expect(item.Kind).To(Equal(protocol.KindBulkString))
		tokens = append(tokens, item.Text())
	}
	return tokens
}

var _ = Describe("Encoder", func() {
	var (
		enc *protocol.Encoder
		out *protocol.Buffer
	)

	BeforeEach(func() {
		enc = protocol.NewEncoder(16, 1<<20)
		out = protocol.NewBuffer(16, 16, 1<<20)
	})

	Describe("Format()", func() {
		It("writes each token as a bulk string", func() {
			Expect(enc.Format(out, "SET %s %d", "n", 42)).To(Succeed())
			Expect(string(out.Bytes())).To(Equal("*3\r\n$3\r\nSET\r\n$1\r\nn\r\n$2\r\n42\r\n"))
		})

		It("writes templates without placeholders", func() {
			Expect(enc.Format(out, "SET foo bar")).To(Succeed())
			Expect(string(out.Bytes())).To(Equal("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))
		})

		It("collapses any run of whitespace between tokens", func() {
			Expect(enc.Format(out, "  GET\t\tkey \r\n")).To(Succeed())
			Expect(bulkTokens(out.Bytes())).To(Equal([]string{"GET", "key"}))
		})

		It("keeps whitespace that comes from an argument inside its token", func() {
			Expect(enc.Format(out, "SET %s %s", "greeting", "hello world")).To(Succeed())
			Expect(bulkTokens(out.Bytes())).To(Equal([]string{"SET", "greeting", "hello world"}))
		})

		It("joins literal text and substitutions in one token", func() {
			Expect(enc.Format(out, "GET user:%d:name", 7)).To(Succeed())
			Expect(bulkTokens(out.Bytes())).To(Equal([]string{"GET", "user:7:name"}))
		})

		It("writes %% as a literal percent sign", func() {
			Expect(enc.Format(out, "SET %s 100%%", "rate")).To(Succeed())
			Expect(bulkTokens(out.Bytes())).To(Equal([]string{"SET", "rate", "100%"}))
		})

		It("stops %s at the first NUL byte", func() {
			Expect(enc.Format(out, "SET k %s", "abc\x00def")).To(Succeed())
			Expect(bulkTokens(out.Bytes())).To(Equal([]string{"SET", "k", "abc"}))
		})

		It("writes %b values byte for byte", func() {
			value := []byte("a\x00b\r\nc")
			Expect(enc.Format(out, "SET k %b", value)).To(Succeed())
			Expect(string(out.Bytes())).To(HaveSuffix("$7\r\na\x00b\r\nc\r\n"))
		})

		It("writes signed and unsigned integers of every width", func() {
			Expect(enc.Format(out, "X %d %ld %lld %u %lu %llu",
				int8(-8), int32(-32), int64(math.MinInt64),
				uint8(8), uint32(32), uint64(math.MaxUint64))).To(Succeed())

			Expect(bulkTokens(out.Bytes())).To(Equal([]string{
				"X", "-8", "-32", "-9223372036854775808", "8", "32", "18446744073709551615",
			}))
		})

		It("writes %f with single precision and %lf with double precision", func() {
			Expect(enc.Format(out, "X %f %lf", float32(1.5), 0.1)).To(Succeed())

			tokens := bulkTokens(out.Bytes())
			Expect(tokens[1]).To(Equal("1.50000000e+00"))
			Expect(tokens[2]).To(Equal("1.0000000000000001e-01"))

			f, err := strconv.ParseFloat(tokens[2], 64)
			Expect(err).To(Succeed())
			Expect(f).To(Equal(0.1))
		})

		It("rejects unknown placeholders and leaves the output untouched", func() {
			Expect(out.WriteString("prefix")).To(Equal(6))

			err := enc.Format(out, "SET %s %x", "k", 1)
			Expect(err).To(MatchError(protocol.ErrUnknownPlaceholder))
			Expect(err.Error()).To(ContainSubstring("Invalid % code in command template"))
			Expect(string(out.Bytes())).To(Equal("prefix"))
		})

		It("rejects a trailing lone percent sign", func() {
			Expect(enc.Format(out, "GET key%")).To(MatchError(protocol.ErrUnknownPlaceholder))
			Expect(out.Len()).To(Equal(0))
		})

		It("rejects more than two l modifiers", func() {
			Expect(enc.Format(out, "GET %llld", int64(1))).To(MatchError(protocol.ErrUnknownPlaceholder))
		})

		It("rejects missing and extra arguments", func() {
			Expect(enc.Format(out, "SET %s %s", "k")).To(MatchError(protocol.ErrMissingArgument))
			Expect(enc.Format(out, "SET %s", "k", "v")).To(MatchError(protocol.ErrExtraArguments))
			Expect(out.Len()).To(Equal(0))
		})

		It("rejects arguments of the wrong type", func() {
			Expect(enc.Format(out, "GET %s", 12)).To(MatchError(protocol.ErrArgumentType))
			Expect(enc.Format(out, "GET %d", "12")).To(MatchError(protocol.ErrArgumentType))
			Expect(enc.Format(out, "GET %u", -1)).To(MatchError(protocol.ErrArgumentType))
			Expect(enc.Format(out, "GET %b", "12")).To(MatchError(protocol.ErrArgumentType))
		})

		It("rejects empty templates", func() {
			Expect(enc.Format(out, " \t ")).To(MatchError(protocol.ErrEmptyCommand))
		})

		It("reports a buffer limit instead of growing without bound", func() {
			small := protocol.NewBuffer(8, 8, 32)

			err := enc.Format(small, "SET k %s", strings.Repeat("v", 64))
			Expect(err).To(MatchError(protocol.ErrBufferLimit))
			Expect(small.Len()).To(Equal(0))
		})

		It("matches the reference token count and lengths for plain substitutions", func() {
			values := []interface{}{"alpha", -12345, uint(99), int64(1) << 40, "x", "y", uint64(7)}
			template := "CMD %s %d %u %lld %s%s %llu"

			Expect(enc.Format(out, template, values...)).To(Succeed())

			expected := []string{"CMD", "alpha", "-12345", "99", "1099511627776", "xy", "7"}
			tokens := bulkTokens(out.Bytes())
			Expect(tokens).To(HaveLen(len(expected)))
			for i, token := range tokens {
				Expect(len(token)).To(Equal(len(expected[i])))
				Expect(token).To(Equal(expected[i]))
			}

			headers := fmt.Sprintf("*%d\r\n", len(expected))
			Expect(string(out.Bytes())).To(HavePrefix(headers))
		})
	})

	Describe("Encode()", func() {
		It("writes typed arguments", func() {
			Expect(enc.Encode(out,
				protocol.Text("SET"),
				protocol.Bytes([]byte("k")),
				protocol.Int(-1),
				protocol.Uint(2),
				protocol.Double(0.5),
			)).To(Succeed())

			Expect(bulkTokens(out.Bytes())).To(Equal([]string{
				"SET", "k", "-1", "2", "5.0000000000000000e-01",
			}))
		})

		It("keeps whitespace inside text arguments", func() {
			Expect(enc.Encode(out, protocol.Args("SET", "k", "two words")...)).To(Succeed())
			Expect(bulkTokens(out.Bytes())).To(Equal([]string{"SET", "k", "two words"}))
		})

		It("rejects a command without arguments", func() {
			Expect(enc.Encode(out)).To(MatchError(protocol.ErrEmptyCommand))
		})
	})

	Describe("SplitTemplate()", func() {
		It("splits on whitespace", func() {
			Expect(protocol.SplitTemplate("a  b\tc\n")).To(Equal([]string{"a", "b", "c"}))
			Expect(protocol.SplitTemplate("   ")).To(BeEmpty())
		})
	})
})
