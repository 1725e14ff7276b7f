package version

import (
	"encoding/json"
	"testing"
)

func TestGet(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()
	Version = "1.2.3"

	info := Get()
	if info.Version != "1.2.3" {
		t.Errorf("Version = %q", info.Version)
	}
	if got := String(); got != "piecefinder 1.2.3 (unknown, built unknown)" {
		t.Errorf("String() = %q", got)
	}

	b, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"version":"1.2.3","git_sha":"unknown","build_time":"unknown"}` {
		t.Errorf("json = %s", b)
	}
}
