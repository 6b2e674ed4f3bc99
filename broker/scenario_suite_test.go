package broker

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/johnjansen/collabkit/config"
)

// TestScenarios is the single *testing.T entry point ginkgo hangs its specs
// off of; `go test` discovers it like any other test function.
func TestScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Broker Scenario Suite")
}

// ginkgoConn is the BDD suite's own connection helper: BeforeEach blocks
// don't carry a *testing.T, so it reports failures through gomega's
// Expect/HaveOccurred instead of testConn's t.Fatalf in broker_test.go.
type ginkgoConn struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialGinkgo(addr string) *ginkgoConn {
	conn, err := net.Dial("tcp", addr)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { _ = conn.Close() })
	return &ginkgoConn{conn: conn, r: bufio.NewReader(conn)}
}

func (c *ginkgoConn) send(msg map[string]any) {
	body, err := json.Marshal(msg)
	Expect(err).NotTo(HaveOccurred())
	body = append(body, '\n')
	_, err = c.conn.Write(body)
	Expect(err).NotTo(HaveOccurred())
}

func (c *ginkgoConn) recv(timeout time.Duration) (map[string]any, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	var msg map[string]any
	if err := json.Unmarshal(line[:len(line)-1], &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func startGinkgoBroker(cfg config.Config) (*Broker, string) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	b := New(cfg, nil)
	go func() { _ = b.Serve(ln) }()
	DeferCleanup(func() { _ = b.Close() })
	return b, ln.Addr().String()
}

var _ = Describe("joining a session", func() {
	var addr string

	BeforeEach(func() {
		_, addr = startGinkgoBroker(testConfig())
	})

	When("a second client handshakes after the first", func() {
		It("broadcasts user_joined to the first client", func() {
			c1 := dialGinkgo(addr)
			c1.send(map[string]any{"event": "handshake", "name": "alice"})

			c2 := dialGinkgo(addr)
			c2.send(map[string]any{"event": "handshake", "name": "bob"})

			msg, err := c1.recv(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg["event"]).To(Equal("user_joined"))
			Expect(msg["name"]).To(Equal("bob"))
			Expect(msg["is_host"]).To(Equal(false))
		})
	})
})

var _ = Describe("host-directed requests", func() {
	var addr string

	BeforeEach(func() {
		_, addr = startGinkgoBroker(testConfig())
	})

	When("a non-host sends a request event", func() {
		It("forwards it to the host and relays the matching response back", func() {
			host := dialGinkgo(addr)
			host.send(map[string]any{"event": "handshake", "name": "alice"})

			requester := dialGinkgo(addr)
			requester.send(map[string]any{"event": "handshake", "name": "bob"})
			_, err := host.recv(2 * time.Second) // user_joined
			Expect(err).NotTo(HaveOccurred())

			requester.send(map[string]any{"event": "request_files"})

			req, err := host.recv(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(req["event"]).To(Equal("request_files"))

			host.send(map[string]any{
				"event":      "response_files",
				"files":      []string{"a"},
				"request_id": req["request_id"],
			})

			resp, err := requester.recv(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp["event"]).To(Equal("response_files"))
		})
	})
})
