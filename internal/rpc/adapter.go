// Package rpc is the RPC distribution adapter: a synchronous Submit over a
// length-prefixed request/response codec on a plain TCP listener, for
// callers that want a direct call instead of a broker round-trip. It
// shares transport.Payload, transport.Result, and transport.Registry with
// the broker adapter so both transports dispatch into the same
// user-defined handlers.
package rpc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/samborba/taskflow/internal/transport"
)

// maxFrameSize bounds a single request/response body to guard against a
// malformed length prefix causing an unbounded allocation.
const maxFrameSize = 16 << 20 // 16 MiB

// Server accepts TCP connections and dispatches each framed request
// through a transport.Registry.
type Server struct {
	addr     string
	registry *transport.Registry
	ln       net.Listener
}

// NewServer creates a Server that will listen on addr once Start is called.
func NewServer(addr string, registry *transport.Registry) *Server {
	return &Server{addr: addr, registry: registry}
}

// Start opens the listener and begins accepting connections in a
// background goroutine. Call Close to stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln

	go s.acceptLoop()
	return nil
}

// Addr returns the listener's actual network address, useful when Server
// was started on an ephemeral port (":0").
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

// handleConn serves requests on conn until the peer disconnects or sends a
// frame this server refuses. One connection may carry many
// request/response round trips.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		body, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("rpc: read frame: %v", err)
			}
			return
		}

		var p transport.Payload
		if err := json.Unmarshal(body, &p); err != nil {
			log.Printf("rpc: malformed payload, closing connection: %v", err)
			return
		}

		result := s.registry.Dispatch(context.Background(), p)
		out, err := json.Marshal(result)
		if err != nil {
			log.Printf("rpc: marshal result for %s: %v", p.ID, err)
			return
		}
		if err := writeFrame(conn, out); err != nil {
			log.Printf("rpc: write frame: %v", err)
			return
		}
	}
}

// Client submits payloads to a single rpc Server over one long-lived
// connection. Submit serializes concurrent calls onto that connection by
// taking a round trip at a time; callers that need concurrent in-flight
// requests should use multiple Clients.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial opens a connection to an rpc Server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial rpc server %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Submit sends p and blocks for its Result, honoring ctx's deadline as a
// connection-level read/write deadline.
func (c *Client) Submit(ctx context.Context, p transport.Payload) (transport.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(dl)
	} else {
		c.conn.SetDeadline(time.Time{})
	}

	body, err := json.Marshal(p)
	if err != nil {
		return transport.Result{}, fmt.Errorf("marshal payload %s: %w", p.ID, err)
	}
	if err := writeFrame(c.conn, body); err != nil {
		return transport.Result{}, fmt.Errorf("write request %s: %w", p.ID, err)
	}

	respBody, err := readFrame(c.conn)
	if err != nil {
		return transport.Result{}, fmt.Errorf("read response for %s: %w", p.ID, err)
	}

	var result transport.Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return transport.Result{}, fmt.Errorf("unmarshal response for %s: %w", p.ID, err)
	}
	return result, nil
}

// writeFrame writes a 4-byte big-endian length prefix followed by body.
func writeFrame(w io.Writer, body []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// readFrame reads a 4-byte big-endian length prefix and the body it names.
func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame size %d exceeds maximum %d", n, maxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
