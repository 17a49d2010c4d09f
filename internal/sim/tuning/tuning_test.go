package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_RepoConfigMatchesDefaults(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(Defaults(), got); diff != "" {
		t.Fatalf("configs/tuning.yaml drifted from Defaults (-want +got):\n%s", diff)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("sectors: 8\nbounds_policy: clamp\npalette: [\"#000000\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Defaults()
	want.Sectors = 8
	want.BoundsPolicy = "clamp"
	want.Palette = []string{"#000000"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad_yaml.yaml":     "sectors: [",
		"bad_policy.yaml":   "bounds_policy: grow\n",
		"big_step.yaml":     "fall_step: 0.5\n",
		"too_high.yaml":     "start_height: 20\n",
		"zero_sectors.yaml": "sectors: 0\n",
	}
	for name, body := range cases {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected error", name)
		} else if !strings.Contains(err.Error(), "tuning.yaml") {
			t.Fatalf("%s: error not wrapped: %v", name, err)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("missing file: got %v", err)
	}
}

func TestStartLayer(t *testing.T) {
	if got := Defaults().StartLayer(); got != 8 {
		t.Fatalf("StartLayer=%d want 8", got)
	}
}
