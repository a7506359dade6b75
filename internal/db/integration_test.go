//go:build integration

package db

import (
	"fmt"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/zulandar/plotcraft/internal/config"
)

// startDoltServer initializes a Dolt repo in a temp directory and starts
// dolt sql-server on a free port, returning a config pointing at it.
func startDoltServer(t *testing.T, database string) config.DatabaseConfig {
	t.Helper()

	dir := t.TempDir()
	for _, kv := range [][2]string{
		{"user.name", "Test Runner"},
		{"user.email", "test@plotcraft.dev"},
	} {
		cfg := exec.Command("dolt", "config", "--global", "--add", kv[0], kv[1])
		cfg.Dir = dir
		cfg.CombinedOutput() // ignore errors if already set
	}

	init := exec.Command("dolt", "init")
	init.Dir = dir
	if out, err := init.CombinedOutput(); err != nil {
		t.Fatalf("dolt init: %s\n%s", err, out)
	}

	port := freePort(t)
	cmd := exec.Command("dolt", "sql-server", "--port", fmt.Sprintf("%d", port), "--host", "127.0.0.1")
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		t.Fatalf("dolt sql-server start: %v", err)
	}
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	waitForServer(t, port)
	return config.DatabaseConfig{Driver: "mysql", Host: "127.0.0.1", Port: port, User: "root", Name: database}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func waitForServer(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("dolt sql-server not ready on port %d after 10s", port)
}

func TestIntegration_Prepare(t *testing.T) {
	cfg := startDoltServer(t, "plotcraft_migrate")

	gdb, err := Prepare(cfg)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	var tables []string
	if err := gdb.Raw("SHOW TABLES").Scan(&tables).Error; err != nil {
		t.Fatalf("SHOW TABLES: %v", err)
	}
	set := make(map[string]bool)
	for _, tbl := range tables {
		set[tbl] = true
	}
	for _, want := range []string{"story_sessions", "session_drafts", "session_messages"} {
		if !set[want] {
			t.Errorf("missing table %s (have %v)", want, tables)
		}
	}
}

func TestIntegration_DropDatabase(t *testing.T) {
	cfg := startDoltServer(t, "plotcraft_drop")
	admin, err := ConnectAdmin(cfg)
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	if err := CreateDatabase(admin, cfg.Name); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if err := DropDatabase(admin, cfg.Name); err != nil {
		t.Fatalf("DropDatabase: %v", err)
	}
}
