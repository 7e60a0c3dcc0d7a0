package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/loykin/pasys/internal/process"
)

func TestParseVerb(t *testing.T) {
	cases := map[string]Verb{
		"start": VerbStart, "on": VerbStart, "load": VerbStart, " ON ": VerbStart,
		"stop": VerbStop, "off": VerbStop, "unload": VerbStop,
	}
	for in, want := range cases {
		got, err := ParseVerb(in)
		if err != nil || got != want {
			t.Errorf("ParseVerb(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "restart", "status", "kill"} {
		if _, err := ParseVerb(in); !errors.Is(err, ErrUnknownVerb) {
			t.Errorf("ParseVerb(%q) err = %v", in, err)
		}
	}
}

func TestVerbString(t *testing.T) {
	if VerbStart.String() != "start" || VerbStop.String() != "stop" {
		t.Fatalf("unexpected names %s %s", VerbStart, VerbStop)
	}
	if Verb(9).String() != "Verb(9)" {
		t.Fatalf("got %s", Verb(9))
	}
}

func TestDoDispatches(t *testing.T) {
	s, err := New(Unit{Process: process.Spec{Name: "noop", Command: "true"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Do(context.Background(), VerbStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Do(context.Background(), Verb(0)); !errors.Is(err, ErrUnknownVerb) {
		t.Fatalf("err = %v", err)
	}
}
