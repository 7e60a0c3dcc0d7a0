package config

import (
	"strings"
	"testing"
)

func TestGlobalEnvLayering(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OS_ONLY", "osv")
	dotenv := writeFile(t, dir, ".env", "FILE_ONLY=fv\nCHAIN=${OS_ONLY}-x\nOVERRIDE=file\n")
	p := writeFile(t, dir, "c.yaml", "state_dir: "+dir+"\nenv_files: ["+dotenv+"]\nenv:\n  - OVERRIDE=top\n  - JACK=${FILE_ONLY}\n")
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	m := map[string]string{}
	for _, kv := range c.Env().Merge([]string{"UNIT=u"}) {
		k, v, _ := strings.Cut(kv, "=")
		m[k] = v
	}
	want := map[string]string{
		"OS_ONLY":   "osv",
		"FILE_ONLY": "fv",
		"CHAIN":     "osv-x",
		"OVERRIDE":  "top",
		"JACK":      "fv",
		"UNIT":      "u",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %q, want %q", k, m[k], v)
		}
	}
}
