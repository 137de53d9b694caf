package httpx

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
)

type testListener struct {
	addr net.TCPAddr
}

func (tl testListener) Accept() (net.Conn, error) { return nil, nil }
func (tl testListener) Close() error              { return nil }
func (tl testListener) Addr() net.Addr            { return &tl.addr }

func NewTCP(port int) Listener {
	return Listener{testListener{addr: net.TCPAddr{Port: port}}}
}

func TestMergeAddresses(t *testing.T) {
	tests := []struct {
		addr string
		ls   Listener
		rez  string
	}{
		{addr: "", rez: "localhost"},
		{addr: ":", ls: NewTCP(0), rez: "localhost"},
		{addr: "", ls: NewTCP(393), rez: "localhost:393"},
		{addr: ":8080", ls: NewTCP(8080), rez: "localhost:8080"},
		{addr: ":8080", ls: NewTCP(8081), rez: "localhost:8081"},
		{addr: "host:8080", ls: NewTCP(8080), rez: "host:8080"},
		{addr: "host:8080", ls: NewTCP(8081), rez: "host:8081"},
		{addr: ":80", ls: NewTCP(80), rez: "localhost"},
		{addr: "[::]", rez: "[::]"},
	}

	for _, test := range tests {
		if rez := mergeAddresses(test.addr, test.ls); rez != test.rez {
			t.Errorf("expected %v, got %v", test.rez, rez)
		}
	}
}

func TestListenerCreation(t *testing.T) {
	tests := []struct {
		addr   string
		random bool
		error  bool
	}{
		{addr: ":", random: true},
		{addr: ":0", random: true},
		{addr: "localhost:0", random: true},
		{addr: "localhost:abc1", error: true},
	}

	for _, test := range tests {
		ls, err := NewListener(test.addr, false, nil)
		if test.error {
			if err == nil {
				t.Errorf("expected error, but got none")
			}
			continue
		}
		if err != nil {
			t.Errorf("unexpected error %v", err)
			continue
		}
		if port := ls.GetPort(); port <= 0 {
			t.Errorf("expected a random port, got %v", port)
		}
		_ = ls.Close()
	}
}

func TestPortRoll(t *testing.T) {
	busy, err := NewListener("127.0.0.1:0", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	addr := busy.Addr().String()

	if _, err := NewListener(addr, false, nil); err == nil {
		t.Fatalf("expected the port to be taken")
	}
	ls, err := NewListener(addr, true, nil)
	if err != nil {
		t.Fatalf("no port roll: %v", err)
	}
	defer ls.Close()
	if ls.GetPort() <= busy.GetPort() {
		t.Errorf("expected a greater port, got %v", ls.GetPort())
	}
}

func TestServerMux(t *testing.T) {
	s, err := NewServer("localhost:0", func(*Server) Handler {
		return NewServeMux("/x").HandleFunc("/hi", func(w ResponseWriter, _ *Request) {
			_, _ = io.WriteString(w, "hi")
		})
	}, WithPortRoll(true))
	if err != nil {
		t.Fatal(err)
	}
	s.Run()
	defer func() { _ = s.Stop() }()
	if s.GetPort() <= 0 || !strings.HasSuffix(s.Addr, ":"+strconv.Itoa(s.GetPort())) {
		t.Errorf("address %v doesn't match the port %v", s.Addr, s.GetPort())
	}

	resp, err := http.Get("http://" + s.Addr + "/x/hi")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.EqualFold(string(b), "hi") {
		t.Errorf("unexpected body %q", b)
	}
}
