package cache

import (
	"testing"
	"time"
)

func TestParseControl_MaxAge(t *testing.T) {
	ctl := ParseControl("max-age=300")
	if ctl.MaxAge == nil {
		t.Fatal("Expected max-age to be parsed")
	}
	if *ctl.MaxAge != 300*time.Second {
		t.Errorf("MaxAge mismatch: got %v", *ctl.MaxAge)
	}
	if ctl.NoStore {
		t.Error("NoStore should be false")
	}
}

func TestParseControl_CaseInsensitive(t *testing.T) {
	ctl := ParseControl("Max-Age=60")
	if ctl.MaxAge == nil || *ctl.MaxAge != 60*time.Second {
		t.Errorf("Case-insensitive max-age not parsed: %+v", ctl)
	}
}

func TestParseControl_MultipleDirectives(t *testing.T) {
	ctl := ParseControl("public, max-age=120, must-revalidate")
	if ctl.MaxAge == nil || *ctl.MaxAge != 120*time.Second {
		t.Errorf("max-age not parsed among other directives: %+v", ctl)
	}
}

func TestParseControl_NoStore(t *testing.T) {
	ctl := ParseControl("no-store")
	if !ctl.NoStore {
		t.Error("Expected NoStore")
	}
	if ctl.MaxAge != nil {
		t.Errorf("Unexpected MaxAge: %v", *ctl.MaxAge)
	}
}

func TestParseControl_Empty(t *testing.T) {
	ctl := ParseControl("")
	if ctl.MaxAge != nil || ctl.NoStore {
		t.Errorf("Empty header must parse to zero Control: %+v", ctl)
	}
}

func TestParseControl_Malformed(t *testing.T) {
	for _, header := range []string{"max-age=abc", "max-age=", "max-age=-5", "max-age"} {
		ctl := ParseControl(header)
		if ctl.MaxAge != nil {
			t.Errorf("Header %q: malformed max-age must be ignored, got %v", header, *ctl.MaxAge)
		}
	}
}

func TestControl_Metadata(t *testing.T) {
	ctl := ParseControl("max-age=30")
	meta := ctl.Metadata()
	if meta.MaxAge == nil || *meta.MaxAge != 30*time.Second {
		t.Errorf("Metadata mismatch: %+v", meta)
	}
}
