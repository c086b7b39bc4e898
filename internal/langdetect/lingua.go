package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// Options tune when a statement is classified at all.
type Options struct {
	// MinLetters is the shortest sample worth classifying. Shorter
	// statements stay unknown and never trip the language gate.
	MinLetters int
	// MinRelativeDistance makes lingua answer "unknown" when the top two
	// candidates are closer than this.
	MinRelativeDistance float64
}

// DefaultOptions suit one-sentence theme statements.
func DefaultOptions() Options {
	return Options{MinLetters: 12, MinRelativeDistance: 0.1}
}

// Detector classifies statements into ISO 639-1 codes. The lingua models
// are built on first use.
type Detector struct {
	opts  Options
	once  sync.Once
	inner lingua.LanguageDetector
}

func New(opts Options) *Detector {
	defaults := DefaultOptions()
	if opts.MinLetters <= 0 {
		opts.MinLetters = defaults.MinLetters
	}
	if opts.MinRelativeDistance < 0 || opts.MinRelativeDistance >= 1 {
		opts.MinRelativeDistance = defaults.MinRelativeDistance
	}
	return &Detector{opts: opts}
}

var shared = sync.OnceValue(func() *Detector { return New(DefaultOptions()) })

// Default returns the process-wide detector.
func Default() *Detector {
	return shared()
}

// DetectISO6391 returns the lowercase ISO 639-1 code of text, or "" when the
// sample is too short or lingua is not confident.
func (d *Detector) DetectISO6391(text string) string {
	sample := strings.TrimSpace(text)
	if countLetters(sample) < d.opts.MinLetters {
		return ""
	}

	language, ok := d.detector().DetectLanguageOf(sample)
	if !ok {
		return ""
	}
	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

func (d *Detector) detector() lingua.LanguageDetector {
	d.once.Do(func() {
		d.inner = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithMinimumRelativeDistance(d.opts.MinRelativeDistance).
			Build()
	})
	return d.inner
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
