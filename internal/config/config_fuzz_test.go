package config

import (
	"strings"
	"testing"
)

// FuzzUnitConfig builds a tiny YAML from fuzzed fields and ensures loading
// and building never panic.
func FuzzUnitConfig(f *testing.F) {
	f.Add("librespot", "librespot --backend jackaudio", "librespot:out_0", "loop:input_1")
	f.Add("", "", ":", "")
	f.Fuzz(func(t *testing.T, name, cmd, src, dst string) {
		clean := func(s string) string {
			return strings.Map(func(r rune) rune {
				if r == '\'' || r == '\n' || r == '\r' || r < 0x20 {
					return -1
				}
				return r
			}, s)
		}
		dir := t.TempDir()
		body := "state_dir: '" + dir + "'\nunits:\n  - name: '" + clean(name) + "'\n    command: '" + clean(cmd) +
			"'\n    watchdog:\n      edges:\n        - {src: '" + clean(src) + "', dst: '" + clean(dst) + "'}\n"
		c, err := Load(writeFile(t, dir, "f.yaml", body))
		if err != nil {
			return
		}
		_, _ = c.Units()
	})
}
