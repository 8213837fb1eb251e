package model

import "testing"

func TestTaskKindValid(t *testing.T) {
	cases := []struct {
		in   TaskKind
		want bool
	}{
		{TaskKindIO, true},
		{TaskKindCPU, true},
		{"gpu", false},
		{"", false},
	}
	for _, c := range cases {
		if got := c.in.Valid(); got != c.want {
			t.Fatalf("kind %q valid => %v want %v", c.in, got, c.want)
		}
	}
}

func TestTaskStateTerminal(t *testing.T) {
	cases := []struct {
		in   TaskState
		want bool
	}{
		{TaskStatePending, false},
		{TaskStateRunning, false},
		{TaskStateCompleted, true},
		{TaskStateFailed, true},
		{TaskStateTimedOut, true},
		{TaskStateCancelled, true},
		{"unknown", false},
	}
	for _, c := range cases {
		if got := c.in.Terminal(); got != c.want {
			t.Fatalf("state %q terminal => %v want %v", c.in, got, c.want)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy("collect_all"); err != nil || p != PolicyCollectAll {
		t.Fatalf("parse collect_all => %q, %v", p, err)
	}
	if p, err := ParsePolicy("fail_fast"); err != nil || p != PolicyFailFast {
		t.Fatalf("parse fail_fast => %q, %v", p, err)
	}
	if _, err := ParsePolicy("first_wins"); err == nil {
		t.Fatalf("expected unknown policy to fail")
	}
	if _, err := ParsePolicy(""); err == nil {
		t.Fatalf("expected empty policy to fail")
	}
}
