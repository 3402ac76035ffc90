package weft

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/weftsrv/weft/schema"
)

// httpResponse is a minimally-parsed response read off a raw connection,
// enough to assert status and body without pulling in net/http.
type httpResponse struct {
	status int
	body   string
}

func readResponses(r *bufio.Reader, n int) []httpResponse {
	out := make([]httpResponse, 0, n)
	for i := 0; i < n; i++ {
		statusLine, err := r.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		fields := strings.Fields(statusLine)
		Expect(len(fields)).To(BeNumerically(">=", 2))
		status, err := strconv.Atoi(fields[1])
		Expect(err).NotTo(HaveOccurred())

		contentLength := 0
		for {
			line, err := r.ReadString('\n')
			Expect(err).NotTo(HaveOccurred())
			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				break
			}
			if k, v, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(k), "content-length") {
				contentLength, err = strconv.Atoi(strings.TrimSpace(v))
				Expect(err).NotTo(HaveOccurred())
			}
		}
		body := make([]byte, contentLength)
		_, err = readFull(r, body)
		Expect(err).NotTo(HaveOccurred())
		out = append(out, httpResponse{status: status, body: string(body)})
	}
	return out
}

func readFull(r *bufio.Reader, dst []byte) (int, error) {
	total := 0
	for total < len(dst) {
		n, err := r.Read(dst[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func echoSchema() []schema.Desc {
	return []schema.Desc{{Index: 0, Name: "v", Kind: schema.KindString, Default: ""}}
}

func echoHandler(r *Request) int {
	r.WriteString(fmt.Sprintf("Hello, %s!", r.String(0)))
	return 200
}

var _ = Describe("connection pipeline queue", func() {
	var (
		eng        *Engine
		client     net.Conn
		server     net.Conn
		clientRead *bufio.Reader
		c          *conn
	)

	BeforeEach(func() {
		eng = NewEngine(1)
		Expect(eng.AddRoute("/echo", echoSchema(), echoHandler, nil)).To(Succeed())
		client, server = net.Pipe()
		clientRead = bufio.NewReader(client)
		c = newConn(eng, server)
		client.SetDeadline(time.Now().Add(5 * time.Second))
		go c.serve()
	})

	AfterEach(func() {
		client.Close()
		eng.Free()
	})

	It("answers a single request", func() {
		_, err := client.Write([]byte("GET /echo?v=a HTTP/1.1\r\nHost: x\r\n\r\n"))
		Expect(err).NotTo(HaveOccurred())

		resp := readResponses(clientRead, 1)
		Expect(resp[0].status).To(Equal(200))
		Expect(resp[0].body).To(Equal("Hello, a!"))
	})

	It("serves a pipelined pair of requests in FIFO order", func() {
		req := "GET /echo?v=a HTTP/1.1\r\nHost: x\r\n\r\n" +
			"GET /echo?v=b HTTP/1.1\r\nHost: x\r\n\r\n"
		_, err := client.Write([]byte(req))
		Expect(err).NotTo(HaveOccurred())

		resp := readResponses(clientRead, 2)
		Expect(resp[0].body).To(Equal("Hello, a!"))
		Expect(resp[1].body).To(Equal("Hello, b!"))
	})

	It("serves a pipelined burst of 100 requests in order", func() {
		var sb strings.Builder
		for i := 0; i < 100; i++ {
			fmt.Fprintf(&sb, "GET /echo?v=%d HTTP/1.1\r\nHost: x\r\n\r\n", i)
		}
		_, err := client.Write([]byte(sb.String()))
		Expect(err).NotTo(HaveOccurred())

		resp := readResponses(clientRead, 100)
		for i, r := range resp {
			Expect(r.body).To(Equal(fmt.Sprintf("Hello, %d!", i)))
		}
	})

	It("never runs two handler tasks for the same connection concurrently", func() {
		var running int32
		var sawConcurrency bool
		eng2 := NewEngine(1)
		defer eng2.Free()
		guardedHandler := func(r *Request) int {
			n := atomic.AddInt32(&running, 1)
			if n > 1 {
				sawConcurrency = true
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			r.WriteString(fmt.Sprintf("Hello, %s!", r.String(0)))
			return 200
		}
		Expect(eng2.AddRoute("/echo", echoSchema(), guardedHandler, nil)).To(Succeed())

		client2, server2 := net.Pipe()
		defer client2.Close()
		client2.SetDeadline(time.Now().Add(5 * time.Second))
		c2 := newConn(eng2, server2)
		go c2.serve()

		var sb strings.Builder
		for i := 0; i < 10; i++ {
			fmt.Fprintf(&sb, "GET /echo?v=%d HTTP/1.1\r\nHost: x\r\n\r\n", i)
		}
		_, err := client2.Write([]byte(sb.String()))
		Expect(err).NotTo(HaveOccurred())

		readResponses(bufio.NewReader(client2), 10)
		Expect(sawConcurrency).To(BeFalse())
	})

	It("dispatches a missing route to the general error handler", func() {
		_, err := client.Write([]byte("GET /nope HTTP/1.1\r\nHost: x\r\n\r\n"))
		Expect(err).NotTo(HaveOccurred())

		resp := readResponses(clientRead, 1)
		Expect(resp[0].status).To(Equal(500))
	})
})
