package cluster

import (
	"bufio"
	"net"
	"testing"
)

func TestOwner_NoNodes(t *testing.T) {
	r := NewRouter(nil, "local:6380")
	if _, ok := r.Owner("k"); ok {
		t.Error("expected no owner with an empty node list")
	}
}

func TestOwner_Deterministic(t *testing.T) {
	r := NewRouter([]string{"a:1", "b:2", "c:3"}, "a:1")
	first, ok := r.Owner("mykey")
	if !ok {
		t.Fatal("expected an owner")
	}
	second, _ := r.Owner("mykey")
	if first != second {
		t.Errorf("Owner(mykey) not deterministic: %q vs %q", first, second)
	}
}

func TestOwner_DistributesAcrossNodes(t *testing.T) {
	r := NewRouter([]string{"a:1", "b:2", "c:3"}, "a:1")
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		node, _ := r.Owner(fmtKey(i))
		seen[node] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected keys to distribute across multiple nodes, got %v", seen)
	}
}

func fmtKey(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i%10))
}

func TestIsLocal_NoNodesConfigured(t *testing.T) {
	r := NewRouter(nil, "local:6380")
	if !r.IsLocal("anykey") {
		t.Error("expected every key local when no cluster peers are configured")
	}
}

func TestIsLocal_MatchesOwner(t *testing.T) {
	r := NewRouter([]string{"a:1"}, "a:1")
	if !r.IsLocal("anykey") {
		t.Error("expected key local to its only (self) node")
	}
}

func TestNodes_ReturnsCopy(t *testing.T) {
	r := NewRouter([]string{"a:1", "b:2"}, "a:1")
	nodes := r.Nodes()
	nodes[0] = "mutated"
	if r.nodes[0] == "mutated" {
		t.Error("expected Nodes() to return a copy, not the internal slice")
	}
}

func TestForward_SendsLineAndReturnsReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		line, _ := reader.ReadString('\n')
		if line == "GET k\n" {
			conn.Write([]byte("+OK\r\n"))
		}
	}()

	reply, err := Forward(ln.Addr().String(), "", "GET k")
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if reply != "+OK\r\n" {
		t.Errorf("reply = %q, want +OK\\r\\n", reply)
	}
}

func TestForward_AuthenticatesBeforeCommand(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		auth, _ := reader.ReadString('\n')
		if auth != "AUTH secret\n" {
			conn.Write([]byte("-ERR bad auth\r\n"))
			return
		}
		conn.Write([]byte("+OK\r\n"))
		cmd, _ := reader.ReadString('\n')
		if cmd == "PING\n" {
			conn.Write([]byte("+PONG\r\n"))
		}
	}()

	reply, err := Forward(ln.Addr().String(), "secret", "PING")
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if reply != "+PONG\r\n" {
		t.Errorf("reply = %q, want +PONG\\r\\n", reply)
	}
}

func TestForward_DialFailure(t *testing.T) {
	if _, err := Forward("127.0.0.1:1", "", "PING"); err == nil {
		t.Error("expected Forward to fail dialing a closed port")
	}
}

func TestForward_RejectedAuth(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		_, _ = reader.ReadString('\n')
		conn.Write([]byte("-ERR bad password\r\n"))
	}()

	_, err = Forward(ln.Addr().String(), "wrong", "PING")
	if err == nil {
		t.Error("expected Forward to fail on rejected auth")
	}
}
