package app

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/sheep-cloud12138/MyWebServer/config"
)

// startFakeStore runs a minimal credential store for wiring tests.
func startFakeStore(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go func(nc net.Conn) {
				defer nc.Close()
				r := bufio.NewReader(nc)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					switch {
					case strings.HasPrefix(line, "AUTH"):
						fmt.Fprint(nc, "OK\n")
					case strings.HasPrefix(line, "GET alice"):
						fmt.Fprint(nc, "VAL secret\n")
					case strings.HasPrefix(line, "GET"):
						fmt.Fprint(nc, "NIL\n")
					case strings.HasPrefix(line, "SET"):
						fmt.Fprint(nc, "OK\n")
					default:
						fmt.Fprint(nc, "PONG\n")
					}
				}
			}(nc)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T, storePort int) *config.Config {
	t.Helper()
	return &config.Config{
		Port:        9006,
		RootDir:     t.TempDir(),
		Workers:     2,
		SQLHost:     "127.0.0.1",
		SQLPort:     storePort,
		SQLUser:     "webserver",
		SQLPassword: "webserver",
		SQLDatabase: "users",
		SQLPoolSize: 2,
	}
}

func TestNewEstablishesStorePool(t *testing.T) {
	port := startFakeStore(t)

	a, err := New(testConfig(t, port))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.closePool()

	if a.sqlPool == nil {
		t.Fatal("expected store pool to be created")
	}
	if a.sqlPool.Free() != 2 {
		t.Errorf("pool free = %d, want 2", a.sqlPool.Free())
	}
}

func TestNewSkipsPoolWhenDisabled(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.SQLPoolSize = 0

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.sqlPool != nil {
		t.Error("expected no store pool with sql-pool=0")
	}
}

func TestNewFailsWhenStoreUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	if _, err := New(testConfig(t, port)); err == nil {
		t.Error("expected New to fail with nothing listening on the store port")
	}
}

func TestHandleBodyLogin(t *testing.T) {
	port := startFakeStore(t)

	a, err := New(testConfig(t, port))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.closePool()

	// None of these may panic or leak a lease.
	a.HandleBody("POST", "/login.html", "user=alice&password=secret")
	a.HandleBody("POST", "/login.html", "user=alice&password=wrong")
	a.HandleBody("POST", "/login.html", "garbage")
	a.HandleBody("POST", "/register.html", "user=bob&password=x")
	a.HandleBody("GET", "/login.html", "")

	if free := a.sqlPool.Free(); free != 2 {
		t.Errorf("pool free after handlers = %d, want 2 (leaked lease)", free)
	}
}

func TestHandleBodyPredict(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.SQLPoolSize = 0

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	a.HandleBody("POST", "/predict", "42")
	a.HandleBody("POST", "/predict", "not a number")
	a.HandleBody("POST", "/predict", "1, 2, 3")
}

func TestParseForm(t *testing.T) {
	cases := []struct {
		body     string
		user, pw string
		ok       bool
	}{
		{"user=alice&password=secret", "alice", "secret", true},
		{"username=bob&passwd=x", "bob", "x", true},
		{"password=only", "", "only", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		user, pw, ok := parseForm(tc.body)
		if user != tc.user || pw != tc.pw || ok != tc.ok {
			t.Errorf("parseForm(%q) = %q, %q, %v; want %q, %q, %v",
				tc.body, user, pw, ok, tc.user, tc.pw, tc.ok)
		}
	}
}
