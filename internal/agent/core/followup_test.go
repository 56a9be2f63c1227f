package core

import (
	"testing"

	"github.com/mohammad-safakhou/pharmaverse/session"
)

func completedSession() *session.Session {
	s := session.New(session.Subject{Molecule: "Metformin", Indication: "IPF"})
	s.Status = session.StatusCompleted
	s.PutResult(session.WorkerResult{
		WorkerID:    WorkerPatent,
		DisplayName: "Patent Landscape Agent",
		Summary:     "Metformin has 2 active patents. The composition patent expired in 2002. Formulation patents run to 2031. FTO risk is low.",
	})
	s.PutResult(session.WorkerResult{WorkerID: WorkerTrade, DisplayName: "EXIM Trends Agent", Error: "timeout"})
	return s
}

func TestRouteKeywords(t *testing.T) {
	cases := map[string]string{
		"What about patent exclusivity?":      WorkerPatent,
		"How big are sales in Europe?":        WorkerMarket,
		"Which countries export the API?":     WorkerTrade,
		"Any phase 3 trials?":                 WorkerTrials,
		"What does our internal strategy say": WorkerInternal,
		"Latest guidelines?":                  WorkerWeb,
		"Is this important for us?":           "",
		"Tell me a joke":                      "",
		"Who are the main exporters?":         WorkerTrade,
		"Is it patented?":                     WorkerPatent,
		"Any importing risk?":                 WorkerTrade,
		"Were the studies phased?":            WorkerTrials,
		"Does IPF respond to metformin?":      "",
		"How strong is the IP position?":      WorkerPatent,
	}
	var r Router
	for q, want := range cases {
		if got := r.Route(q); got != want {
			t.Fatalf("%q: expected %q, got %q", q, want, got)
		}
	}
}

func TestAnswerProjectsFirstThreeSentences(t *testing.T) {
	s := completedSession()
	var r Router
	answer, id := r.Answer(s, "What about patent exclusivity?")
	want := "Metformin has 2 active patents. The composition patent expired in 2002. Formulation patents run to 2031."
	if answer != want || id != WorkerPatent {
		t.Fatalf("expected %q from patent, got %q from %q", want, answer, id)
	}
	again, _ := r.Answer(s, "What about patent exclusivity?")
	if again != answer {
		t.Fatalf("answers must be identical for the same question")
	}
}

func TestAnswerFallsBackOutsideData(t *testing.T) {
	s := completedSession()
	var r Router
	for _, q := range []string{"What is the weather?", "Any trade risks?", "How many trials?"} {
		if got, _ := r.Answer(s, q); got != OutsideDataMessage {
			t.Fatalf("%q: expected outside-data message, got %q", q, got)
		}
	}
}

func TestFirstSentences(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"Growth was 3.5% in 2024. Second! Third? Fourth.", 3, "Growth was 3.5% in 2024. Second. Third."},
		{"Only one sentence without a stop", 3, "Only one sentence without a stop."},
		{"", 3, ""},
		{"One. Two.", 5, "One. Two."},
	}
	for _, c := range cases {
		if got := FirstSentences(c.in, c.n); got != c.want {
			t.Fatalf("FirstSentences(%q, %d): expected %q, got %q", c.in, c.n, c.want, got)
		}
	}
}
