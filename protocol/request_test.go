package protocol_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ramis/protocol"
)

var _ = Describe("Request", func() {
	It("is read from a multi-bulk command", func() {
		reply, err := decode("*3\r\n$3\r\nset\r\n$1\r\nk\r\n$1\r\nv\r\n")
		Expect(err).To(Succeed())

		req, err := protocol.RequestFromReply(reply)
		Expect(err).To(Succeed())
		Expect(req.Command).To(Equal(protocol.SET))
		Expect(req.Args).To(Equal([][]byte{[]byte("k"), []byte("v")}))
		Expect(req.Arg(1)).To(Equal([]byte("v")))
		Expect(req.Arg(2)).To(BeNil())
	})

	It("is read from an inline command", func() {
		dec := protocol.NewDecoder(true)
		status, err := dec.Parse([]byte("ping\r\n"), true)
		Expect(err).To(Succeed())
		Expect(status).To(Equal(protocol.Complete))

		req, err := protocol.RequestFromReply(dec.Reply())
		Expect(err).To(Succeed())
		Expect(req.Command).To(Equal(protocol.PING))
		Expect(req.Args).To(BeEmpty())
	})

	It("rejects empty requests", func() {
		_, err := protocol.RequestFromReply(&protocol.Reply{})
		Expect(err).To(MatchError(protocol.ErrRequestEmpty))
	})

	It("rejects requests made of something other than strings", func() {
		reply, err := decode("*2\r\n$3\r\nGET\r\n*0\r\n")
		Expect(err).To(Succeed())

		_, err = protocol.RequestFromReply(reply)
		Expect(err).To(MatchError(protocol.ErrRequestNotStrings))
	})
})
