package logs

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestProfileLogPath_Sanitized(t *testing.T) {
	got := ProfileLogPath("/var/logs", "my vpn/../x")
	want := filepath.Join("/var/logs", "wireproxy_myvpnx.log")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestRotate_UnderCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wireproxy_vpn.log")
	if err := os.WriteFile(path, []byte("small"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := Rotate(path); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("Expected file under the cap to stay in place")
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("Expected no backup for a small file")
	}
}

func TestRotate_ShiftsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wireproxy_vpn.log")

	big := bytes.Repeat([]byte("x"), MaxLogSize+1)
	if err := os.WriteFile(path, big, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".1", []byte("old-1"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := Rotate(path); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected current log to move aside")
	}
	if info, err := os.Stat(path + ".1"); err != nil || info.Size() != int64(len(big)) {
		t.Error("Expected big log at .1")
	}
	if data, err := os.ReadFile(path + ".2"); err != nil || string(data) != "old-1" {
		t.Error("Expected old .1 shifted to .2")
	}
}

func TestRotate_MissingFile(t *testing.T) {
	if err := Rotate(filepath.Join(t.TempDir(), "absent.log")); err != nil {
		t.Errorf("Expected missing log to be fine, got: %v", err)
	}
}

func TestOpenProfileLog_WritesHeader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	f, err := OpenProfileLog(dir, "vpn-a", "/usr/bin/wireproxy -c /p/vpn-a_wireproxy.conf")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	f.Close()

	data, err := os.ReadFile(ProfileLogPath(dir, "vpn-a"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "=== Launching WireProxy at ") {
		t.Error("Expected launch header in log")
	}
	if !strings.Contains(string(data), "Cmd: /usr/bin/wireproxy -c /p/vpn-a_wireproxy.conf") {
		t.Error("Expected command line in log")
	}
}

func TestOpenProfileLog_Appends(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		f, err := OpenProfileLog(dir, "vpn-a", "cmd")
		if err != nil {
			t.Fatal(err)
		}
		f.Close()
	}

	data, err := os.ReadFile(ProfileLogPath(dir, "vpn-a"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "=== Launching WireProxy at "); got != 2 {
		t.Errorf("Expected 2 launch headers, got %d", got)
	}
}
