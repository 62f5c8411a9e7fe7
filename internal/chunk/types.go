// Package chunk splits markdown documents into heading-scoped sections and
// bounded, overlapping chunks suitable for embedding.
package chunk

// Chunking defaults.
const (
	DefaultTargetLength   = 700 // target size in estimator units (~tokens)
	DefaultOverlapChars   = 180 // characters carried into the next chunk
	DefaultCharsPerUnit   = 4   // rough approximation: 4 chars = 1 token
	DefaultMinWindowChars = 400 // smallest character window for oversized paragraphs
	DefaultOutlierFactor  = 8   // paragraphs above factor*target are reported
	DefaultMaxLineTokens  = 300 // line-chunking budget for article corpora
)

// Section is a titled slice of a document introduced by a ## or ### heading.
type Section struct {
	Heading string
	Level   int // 2 or 3
	Content string
}

// Options configures the Chunker.
type Options struct {
	// TargetLength is the estimated length at which a buffer is flushed.
	TargetLength int

	// OverlapChars is the size of the overlap tail seeded into the next chunk.
	OverlapChars int

	// CharsPerUnit converts TargetLength into a character window for
	// paragraphs too large to fit a single chunk.
	CharsPerUnit int

	// MinWindowChars is the lower bound of that character window.
	MinWindowChars int

	// OutlierFactor flags paragraphs whose estimate exceeds
	// OutlierFactor*TargetLength. Zero uses the default; negative disables.
	OutlierFactor int

	// Estimator measures text length. Defaults to a CharEstimator using CharsPerUnit.
	Estimator LengthEstimator

	// OnOutlier is called for every flagged paragraph.
	OnOutlier func(Outlier)
}

// Outlier describes a paragraph much larger than the length heuristic assumes.
type Outlier struct {
	Heading   string
	Paragraph int // index within the section
	Estimate  int
	Chars     int
}

// DefaultOptions returns the standard chunking configuration.
func DefaultOptions() Options {
	return Options{
		TargetLength:   DefaultTargetLength,
		OverlapChars:   DefaultOverlapChars,
		CharsPerUnit:   DefaultCharsPerUnit,
		MinWindowChars: DefaultMinWindowChars,
		OutlierFactor:  DefaultOutlierFactor,
	}
}
