// Package cluster implements request routing across a static set of peer
// nodes: given a key, a stable hash modulo node count picks the owning
// node; a command whose owner is not the local node is forwarded over a
// fresh TCP connection, authenticated with the shared password.
//
// Ported from the reference ClusterManager's add_node/remove_node/
// get_node (std::hash<string> % nodes_.size()), generalized from a single
// process-wide node list to an explicit Router value so each engine
// instance owns its own view of the cluster.
package cluster

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"net"
	"time"
)

// Router holds the static list of cluster peers and the local node's own
// address, so it can tell when a key routes to itself.
type Router struct {
	nodes []string
	local string
}

// NewRouter builds a Router over nodes (each "host:port"), given the
// local node's own "host:port" address.
func NewRouter(nodes []string, local string) *Router {
	r := &Router{local: local}
	r.nodes = append(r.nodes, nodes...)
	return r
}

// Owner returns the node responsible for key.
func (r *Router) Owner(key string) (node string, ok bool) {
	if len(r.nodes) == 0 {
		return "", false
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	idx := h.Sum64() % uint64(len(r.nodes))
	return r.nodes[idx], true
}

// IsLocal reports whether key's owner is this node (or there are no
// cluster peers configured at all, in which case every key is local).
func (r *Router) IsLocal(key string) bool {
	node, ok := r.Owner(key)
	if !ok {
		return true
	}
	return node == r.local
}

// Nodes returns the configured peer list.
func (r *Router) Nodes() []string {
	out := make([]string, len(r.nodes))
	copy(out, r.nodes)
	return out
}

const dialTimeout = 2 * time.Second

// Forward opens a connection to node, authenticates with password (if
// non-empty), sends line verbatim, and returns the peer's single-line
// reply. Connection and auth failures are returned as errors; no local
// effect occurs on failure.
func Forward(node, password, line string) (string, error) {
	conn, err := net.DialTimeout("tcp", node, dialTimeout)
	if err != nil {
		return "", fmt.Errorf("dial cluster peer %s: %w", node, err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	if password != "" {
		if _, err := fmt.Fprintf(conn, "AUTH %s\n", password); err != nil {
			return "", fmt.Errorf("send auth to peer %s: %w", node, err)
		}
		reply, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read auth reply from peer %s: %w", node, err)
		}
		if len(reply) > 0 && reply[0] == '-' {
			return "", fmt.Errorf("peer %s rejected auth: %s", node, reply)
		}
	}

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return "", fmt.Errorf("forward command to peer %s: %w", node, err)
	}

	reply, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply from peer %s: %w", node, err)
	}
	return reply, nil
}
