package dispatch

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildCommandAllVerbsAndSites(t *testing.T) {
	catalog := DefaultCatalog()
	for _, verb := range Verbs() {
		for _, site := range catalog.Sites() {
			cmd, err := catalog.BuildCommand(verb, site, "")
			if err != nil {
				t.Fatalf("build %s %s: %v", verb, site, err)
			}
			want := "/" + string(verb) + " " + string(site)
			if cmd.Text() != want {
				t.Fatalf("expected %q, got %q", want, cmd.Text())
			}

			cmd, err = catalog.BuildCommand(verb, site, "42")
			if err != nil {
				t.Fatalf("build %s %s with extra: %v", verb, site, err)
			}
			if cmd.Text() != want+" 42" {
				t.Fatalf("expected %q, got %q", want+" 42", cmd.Text())
			}
		}
	}
}

func TestBuildCommandSleep(t *testing.T) {
	cmd, err := DefaultCatalog().BuildCommand(VerbSleep, "la_luz", "120")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cmd.Text() != "/sleep la_luz 120" {
		t.Fatalf("unexpected text %q", cmd.Text())
	}
}

func TestBuildCommandCanonicalVerb(t *testing.T) {
	catalog := DefaultCatalog()
	cases := map[Verb]string{
		"/reboot":   "/reboot la_luz",
		" get":      "/get la_luz",
		" /status ": "/status la_luz",
	}
	for verb, want := range cases {
		cmd, err := catalog.BuildCommand(verb, "la_luz", "")
		if err != nil {
			t.Fatalf("build %q: %v", verb, err)
		}
		if cmd.Text() != want {
			t.Fatalf("build %q: expected %q, got %q", verb, want, cmd.Text())
		}
		if _, ok := ParseVerb(string(cmd.Verb)); !ok || strings.ContainsAny(string(cmd.Verb), "/ ") {
			t.Fatalf("build %q: verb not canonical: %q", verb, cmd.Verb)
		}
	}
}

func TestBuildCommandRejectsUnknown(t *testing.T) {
	catalog := DefaultCatalog()
	if _, err := catalog.BuildCommand("shutdown", "la_luz", ""); !errors.Is(err, ErrUnknownVerb) {
		t.Fatalf("expected ErrUnknownVerb, got %v", err)
	}
	if _, err := catalog.BuildCommand(VerbGet, "atlantis", ""); !errors.Is(err, ErrUnknownSite) {
		t.Fatalf("expected ErrUnknownSite, got %v", err)
	}
}

func TestFormatAssignmentsKeepsSelectionOrder(t *testing.T) {
	got := FormatAssignments([]Assignment{
		{Name: "water_counter", Value: 5},
		{Name: "min_battery", Value: 20},
	})
	if got != "water_counter=5,min_battery=20" {
		t.Fatalf("unexpected extras %q", got)
	}

	got = FormatAssignments([]Assignment{
		{Name: "min_battery", Value: 20},
		{Name: "water_counter", Value: 5},
	})
	if got != "min_battery=20,water_counter=5" {
		t.Fatalf("unexpected extras %q", got)
	}
}

func TestCheckAssignments(t *testing.T) {
	catalog := DefaultCatalog()
	cases := []struct {
		name        string
		assignments []Assignment
		want        error
	}{
		{name: "ok", assignments: []Assignment{{Name: "WD_timeout", Value: 0}}},
		{name: "unknown", assignments: []Assignment{{Name: "voltage", Value: 1}}, want: ErrUnknownParameter},
		{name: "duplicate", assignments: []Assignment{{Name: "data_count", Value: 1}, {Name: "data_count", Value: 2}}, want: ErrDuplicateParameter},
		{name: "negative", assignments: []Assignment{{Name: "min_signal", Value: -1}}, want: ErrNegativeValue},
	}
	for _, tc := range cases {
		err := catalog.CheckAssignments(tc.assignments)
		if tc.want == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestParseAssignment(t *testing.T) {
	a, err := ParseAssignment(" read_interval = 30 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Name != "read_interval" || a.Value != 30 {
		t.Fatalf("unexpected assignment %+v", a)
	}
	if _, err := ParseAssignment("read_interval"); err == nil {
		t.Fatal("expected error for missing value")
	}
	if _, err := ParseAssignment("read_interval=abc"); err == nil {
		t.Fatal("expected error for non-numeric value")
	}
}

func TestParseVerbAcceptsSlash(t *testing.T) {
	verb, ok := ParseVerb("/reboot")
	if !ok || verb != VerbReboot {
		t.Fatalf("expected reboot, got %q (%t)", verb, ok)
	}
	if _, ok := ParseVerb("test"); ok {
		t.Fatal("expected test to be outside the vocabulary")
	}
}

func TestTopicRouting(t *testing.T) {
	if TopicFor(VerbReboot) != TopicReboots {
		t.Fatalf("reboot should route to reboots")
	}
	for _, verb := range []Verb{VerbGet, VerbSim, VerbStatus, VerbLatest, VerbSleep, VerbSet} {
		if TopicFor(verb) != TopicManager {
			t.Fatalf("%s should route to manager", verb)
		}
	}
	if _, err := ParseTopic("alerts"); !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
	topic, err := ParseTopic("data_loss")
	if err != nil || topic != TopicDataLoss {
		t.Fatalf("expected data_loss, got %q (%v)", topic, err)
	}
}

func TestNewCatalogValidation(t *testing.T) {
	if _, err := NewCatalog(nil, DefaultParameters); err == nil {
		t.Fatal("expected error for empty sites")
	}
	if _, err := NewCatalog([]Site{"a", "a"}, DefaultParameters); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate site error, got %v", err)
	}
	if _, err := NewCatalog([]Site{"la luz"}, DefaultParameters); err == nil {
		t.Fatal("expected error for site with whitespace")
	}
	if _, err := NewCatalog(DefaultSites, []string{"a=b"}); err == nil {
		t.Fatal("expected error for parameter containing '='")
	}
}

func TestWarning(t *testing.T) {
	if !IsWarning(ErrNoSites) {
		t.Fatal("ErrNoSites should be a warning")
	}
	if IsWarning(ErrUnknownSite) {
		t.Fatal("ErrUnknownSite should not be a warning")
	}
}
