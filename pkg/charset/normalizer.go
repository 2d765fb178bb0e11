/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: normalizer.go
Description: Charset normalizer. Detects the text encoding of a byte stream from a
bounded leading sample and exposes the stream as UTF-8. Byte order marks win,
valid UTF-8 short-circuits detection, and low-confidence detections fall back to
UTF-8 with replacement characters instead of failing. The choice is made once and
held for the rest of the stream.
*/

package charset

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/saintfish/chardet"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// UTF8 is the canonical encoding name
const UTF8 = "utf-8"

// Peeker is a reader that can expose leading bytes without consuming them
type Peeker interface {
	io.Reader
	Peek(n int) ([]byte, error)
}

// Detector guesses the charset of a sample. Confidence is 0..100.
type Detector interface {
	Detect(sample []byte) (charset string, confidence int, err error)
}

type chardetDetector struct {
	detector *chardet.Detector
}

// NewDetector returns the statistical detector
func NewDetector() Detector {
	return &chardetDetector{detector: chardet.NewTextDetector()}
}

func (d *chardetDetector) Detect(sample []byte) (string, int, error) {
	res, err := d.detector.DetectBest(sample)
	if err != nil {
		return "", 0, err
	}
	return res.Charset, res.Confidence, nil
}

// Decision records how a stream was decoded
type Decision struct {
	Encoding   string `json:"encoding"`
	Detected   string `json:"detected,omitempty"`
	Confidence int    `json:"confidence"`
	BOM        bool   `json:"bom"`
	Fallback   bool   `json:"fallback"`
}

// Normalizer converts byte streams into UTF-8 text
type Normalizer struct {
	sampleSize    int
	minConfidence int
	detector      Detector
	opts          *interfaces.Options
	logger        logrus.FieldLogger
}

// NewNormalizer creates a normalizer from options
func NewNormalizer(opts *interfaces.Options, logger logrus.FieldLogger) *Normalizer {
	if opts == nil {
		opts = interfaces.DefaultOptions()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	size := opts.SampleSize
	if size <= 0 || size > interfaces.MaxSampleSize {
		size = interfaces.MaxSampleSize
	}
	return &Normalizer{
		sampleSize:    size,
		minConfidence: opts.MinConfidence,
		detector:      NewDetector(),
		opts:          opts,
		logger:        logger,
	}
}

// WithDetector replaces the statistical detector
func (n *Normalizer) WithDetector(d Detector) *Normalizer {
	n.detector = d
	return n
}

// Decide picks an encoding for a sample
func (n *Normalizer) Decide(sample []byte) (encoding.Encoding, Decision) {
	switch {
	case bytes.HasPrefix(sample, []byte{0xef, 0xbb, 0xbf}):
		return unicode.UTF8BOM, Decision{Encoding: UTF8, Confidence: 100, BOM: true}
	case bytes.HasPrefix(sample, []byte{0xff, 0xfe}):
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), Decision{Encoding: "utf-16le", Confidence: 100, BOM: true}
	case bytes.HasPrefix(sample, []byte{0xfe, 0xff}):
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), Decision{Encoding: "utf-16be", Confidence: 100, BOM: true}
	}

	if len(sample) == 0 || validUTF8Prefix(sample) {
		return unicode.UTF8, Decision{Encoding: UTF8, Confidence: 100}
	}

	name, confidence, err := n.detector.Detect(sample)
	if err != nil || confidence < n.minConfidence {
		return unicode.UTF8, Decision{Encoding: UTF8, Detected: name, Confidence: confidence, Fallback: true}
	}
	enc, err := lookup(name)
	if err != nil {
		return unicode.UTF8, Decision{Encoding: UTF8, Detected: name, Confidence: confidence, Fallback: true}
	}
	canonical, _ := htmlindex.Name(enc)
	if canonical == "" {
		canonical = strings.ToLower(name)
	}
	return enc, Decision{Encoding: canonical, Detected: name, Confidence: confidence}
}

// Normalize wraps r in a decoder producing UTF-8. name identifies the stream
// in fallback warnings. A short input is sampled as far as it goes.
func (n *Normalizer) Normalize(r Peeker, name string) (io.Reader, Decision, error) {
	sample, err := r.Peek(n.sampleSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, Decision{}, err
	}
	enc, decision := n.Decide(sample)

	if decision.Fallback {
		warning := interfaces.EncodingFallback{Source: name, Detected: decision.Detected, Confidence: decision.Confidence}
		n.logger.WithFields(logrus.Fields{
			"source":     name,
			"detected":   decision.Detected,
			"confidence": decision.Confidence,
		}).Warn("Charset detection not confident, assuming utf-8")
		n.opts.WarnFallback(warning)
	} else if decision.Encoding != UTF8 {
		n.logger.WithFields(logrus.Fields{
			"source":     name,
			"encoding":   decision.Encoding,
			"confidence": decision.Confidence,
		}).Debug("Transcoding input to utf-8")
	}

	return transform.NewReader(r, enc.NewDecoder()), decision, nil
}

// aliases maps detector names that the html index spells differently
var aliases = map[string]string{
	"gb-18030":     "gb18030",
	"iso-8859-8-i": "iso-8859-8",
}

func lookup(name string) (encoding.Encoding, error) {
	key := strings.ToLower(name)
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	return htmlindex.Get(key)
}

// validUTF8Prefix accepts a sample whose only invalid bytes are a rune cut
// off by the sample window
func validUTF8Prefix(b []byte) bool {
	if utf8.Valid(b) {
		return true
	}
	for cut := 1; cut <= utf8.UTFMax-1 && cut < len(b); cut++ {
		if utf8.Valid(b[:len(b)-cut]) && !utf8.FullRune(b[len(b)-cut:]) {
			return true
		}
	}
	return false
}
