// Package validation inspects upload candidates and produces structured
// accept/reject verdicts. All checks run against the candidate's metadata
// and at most the first 512 bytes of content; nothing here touches the
// network or mutates external state.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// sampleSize is the maximum number of bytes read for content sniffing.
const sampleSize = 512

// largeFileThreshold triggers an advisory warning, independent of the
// configured hard size ceiling.
const largeFileThreshold = 100 * 1024 * 1024

var (
	// filenameCharset permits letters, digits, dot, dash, underscore, space.
	filenameCharset = regexp.MustCompile(`^[A-Za-z0-9._\- ]+$`)

	// dangerousName matches executable/script extensions that are rejected
	// even when the allow-list would otherwise pass them.
	dangerousName = regexp.MustCompile(`(?i)\.(exe|bat|cmd|scr|pif|com|jar|php|asp|jsp|html|htm|sh|bash|ps1|vbs)$`)
)

// expectedExtensions maps a declared media type to the filename extensions
// it is normally paired with. A mismatch is advisory only.
var expectedExtensions = map[string][]string{
	"text/csv":   {"csv"},
	"text/plain": {"txt", "csv"},
	"application/json": {"json"},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {"xlsx"},
	"application/vnd.ms-excel": {"xls", "xlsx"},
	"application/octet-stream": {"parquet"},
}

// Config controls the validation limits and allow-lists.
type Config struct {
	MaxFileSize       int64    `json:"max_file_size" yaml:"max_file_size"`
	AllowedTypes      []string `json:"allowed_types" yaml:"allowed_types"`
	AllowedExtensions []string `json:"allowed_extensions" yaml:"allowed_extensions"`
	MaxNameLength     int      `json:"max_name_length" yaml:"max_name_length"`
}

// DefaultConfig returns the default validation limits.
func DefaultConfig() Config {
	return Config{
		MaxFileSize: 500 * 1024 * 1024,
		AllowedTypes: []string{
			"text/csv",
			"text/plain",
			"application/json",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/vnd.ms-excel",
			"application/octet-stream",
		},
		AllowedExtensions: []string{"csv", "xlsx", "xls", "json", "parquet", "txt"},
		MaxNameLength:     255,
	}
}

// Overrides is a partial Config. Nil fields keep the current value; slices
// replace the existing set wholesale.
type Overrides struct {
	MaxFileSize       *int64
	AllowedTypes      []string
	AllowedExtensions []string
	MaxNameLength     *int
}

// Merge applies the overrides to a copy of the config.
func (c Config) Merge(o Overrides) Config {
	merged := c.clone()
	if o.MaxFileSize != nil {
		merged.MaxFileSize = *o.MaxFileSize
	}
	if o.AllowedTypes != nil {
		merged.AllowedTypes = append([]string(nil), o.AllowedTypes...)
	}
	if o.AllowedExtensions != nil {
		merged.AllowedExtensions = append([]string(nil), o.AllowedExtensions...)
	}
	if o.MaxNameLength != nil {
		merged.MaxNameLength = *o.MaxNameLength
	}
	return merged
}

func (c Config) clone() Config {
	cp := c
	cp.AllowedTypes = append([]string(nil), c.AllowedTypes...)
	cp.AllowedExtensions = append([]string(nil), c.AllowedExtensions...)
	return cp
}

// Candidate is an in-memory, not-yet-transmitted file selected for upload.
// Open must return a fresh reader over the candidate's content; the
// validator reads at most the first 512 bytes of it.
type Candidate struct {
	Name         string
	DeclaredType string
	Size         int64
	Open         func() (io.ReadCloser, error)
}

// NewBytesCandidate builds a candidate over an in-memory byte slice.
func NewBytesCandidate(name, declaredType string, data []byte) Candidate {
	return Candidate{
		Name:         name,
		DeclaredType: declaredType,
		Size:         int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Descriptor is the normalized snapshot attached to a verdict.
type Descriptor struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	DeclaredType string `json:"declared_type"`
	Extension    string `json:"extension"`
}

// Verdict is the immutable outcome of validating one candidate.
// Accepted is true exactly when Errors is empty; warnings are advisory and
// never affect acceptance.
type Verdict struct {
	Accepted   bool       `json:"accepted"`
	Errors     []string   `json:"errors"`
	Warnings   []string   `json:"warnings"`
	Descriptor Descriptor `json:"descriptor"`
}

// Service validates upload candidates against an explicit configuration.
// The config is owned by the service; there is no process-wide state.
type Service struct {
	mu  sync.RWMutex
	cfg Config
}

// NewService creates a validation service. Overrides, if given, are merged
// over the defaults.
func NewService(overrides ...Overrides) *Service {
	cfg := DefaultConfig()
	for _, o := range overrides {
		cfg = cfg.Merge(o)
	}
	return &Service{cfg: cfg}
}

// Config returns a defensive copy of the current configuration.
func (s *Service) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// UpdateConfig merges the given partial configuration into the current one.
func (s *Service) UpdateConfig(o Overrides) Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = s.cfg.Merge(o)
	return s.cfg.clone()
}

// Validate inspects one candidate and returns its verdict. Every check runs
// regardless of earlier failures so the caller sees all problems at once.
// The only error path that short-circuits is a failure to read the content
// sample, which yields a verdict with a single synthetic error.
func (s *Service) Validate(c Candidate) Verdict {
	cfg := s.Config()

	desc := Descriptor{
		Name:         c.Name,
		Size:         c.Size,
		DeclaredType: c.DeclaredType,
		Extension:    extensionOf(c.Name),
	}

	sample, err := readSample(c)
	if err != nil {
		return Verdict{
			Accepted:   false,
			Errors:     []string{fmt.Sprintf("Failed to read file content: %v", err)},
			Warnings:   []string{},
			Descriptor: desc,
		}
	}

	var errs, warns []string

	// 1. Filename charset
	if !filenameCharset.MatchString(c.Name) ||
		strings.HasPrefix(c.Name, ".") || strings.HasSuffix(c.Name, ".") {
		errs = append(errs, "Filename contains invalid characters")
	}

	// 2. Filename length
	if len(c.Name) > cfg.MaxNameLength {
		errs = append(errs, fmt.Sprintf("Filename exceeds maximum length of %d characters", cfg.MaxNameLength))
	}

	// 3. Emptiness
	if c.Size == 0 {
		errs = append(errs, "File is empty")
	}

	// 4. Size ceiling
	if c.Size > cfg.MaxFileSize {
		errs = append(errs, fmt.Sprintf("File is too large (%s). Maximum allowed size is %s",
			FormatBytes(c.Size), FormatBytes(cfg.MaxFileSize)))
	}

	// 5. Declared media type allow-list
	if !contains(cfg.AllowedTypes, c.DeclaredType) {
		errs = append(errs, fmt.Sprintf("File type %q is not allowed", c.DeclaredType))
	}

	// 6. Extension allow-list (empty extension counts as a value)
	if !contains(cfg.AllowedExtensions, desc.Extension) {
		errs = append(errs, fmt.Sprintf("File extension %q is not allowed. Allowed extensions: %s",
			desc.Extension, strings.Join(cfg.AllowedExtensions, ", ")))
	}

	// 7. Declared type vs extension consistency (advisory)
	if expected, ok := expectedExtensions[c.DeclaredType]; ok && !contains(expected, desc.Extension) {
		warns = append(warns, fmt.Sprintf("File extension %q does not match declared type %q",
			desc.Extension, c.DeclaredType))
	}

	// 8. Content sniffing on the sampled prefix
	if len(sample) > 0 {
		errs = append(errs, sniffContent(desc.Extension, c.DeclaredType, sample)...)
	}

	// 9. Dangerous filename (defense in depth, independent of allow-list)
	if dangerousName.MatchString(c.Name) {
		errs = append(errs, "File type is potentially dangerous and not allowed")
	}

	// 10. Multiple extensions (advisory)
	if strings.Count(c.Name, ".") > 1 {
		warns = append(warns, "Filename contains multiple extensions")
	}

	// 11. Large file advisory
	if c.Size > largeFileThreshold {
		warns = append(warns, "Large file detected; processing may take longer")
	}

	if errs == nil {
		errs = []string{}
	}
	if warns == nil {
		warns = []string{}
	}

	return Verdict{
		Accepted:   len(errs) == 0,
		Errors:     errs,
		Warnings:   warns,
		Descriptor: desc,
	}
}

// ValidateAll validates candidates concurrently. Results are returned in
// input order; candidates share no mutable state.
func (s *Service) ValidateAll(candidates []Candidate) []Verdict {
	verdicts := make([]Verdict, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, c Candidate) {
			defer wg.Done()
			verdicts[i] = s.Validate(c)
		}(i, c)
	}
	wg.Wait()
	return verdicts
}

// readSample reads at most sampleSize bytes from the candidate.
func readSample(c Candidate) ([]byte, error) {
	if c.Open == nil {
		return nil, errors.New("candidate has no readable content")
	}
	r, err := c.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	sample := make([]byte, sampleSize)
	n, err := io.ReadFull(r, sample)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return sample[:n], nil
}

// sniffContent checks the byte sample against the format implied by the
// extension (or, failing that, the declared type). Formats without a
// sniffing rule pass unconditionally.
func sniffContent(ext, declaredType string, sample []byte) []string {
	switch sniffFormat(ext, declaredType) {
	case "csv":
		return sniffCSV(sample)
	case "excel":
		return sniffExcel(sample)
	case "json":
		return sniffJSON(sample)
	default:
		return nil
	}
}

func sniffFormat(ext, declaredType string) string {
	switch ext {
	case "csv":
		return "csv"
	case "xlsx", "xls":
		return "excel"
	case "json":
		return "json"
	case "parquet", "txt":
		return ""
	}
	switch declaredType {
	case "text/csv":
		return "csv"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel":
		return "excel"
	case "application/json":
		return "json"
	}
	return ""
}

func sniffCSV(sample []byte) []string {
	var errs []string
	text := string(sample)
	if !strings.Contains(text, ",") && !strings.Contains(text, ";") {
		errs = append(errs, "CSV file does not appear to contain delimited data")
	}
	// Best-effort content-injection screen; easily bypassed, kept blocking
	// to match the upload contract.
	if strings.Contains(text, "<script") || strings.Contains(text, "<?php") {
		errs = append(errs, "File contains potentially malicious content")
	}
	return errs
}

var (
	zipSignature = []byte{0x50, 0x4B, 0x03, 0x04}
	oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

func sniffExcel(sample []byte) []string {
	if bytes.HasPrefix(sample, zipSignature) || bytes.HasPrefix(sample, oleSignature) {
		return nil
	}
	return []string{"File does not appear to be a valid Excel spreadsheet"}
}

func sniffJSON(sample []byte) []string {
	trimmed := bytes.TrimSpace(sample)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return nil
	}
	if lenientJSONCheck(trimmed) {
		return nil
	}
	return []string{"File does not appear to contain valid JSON"}
}

// lenientJSONCheck tolerates truncation: large files are sampled, so the
// prefix may stop mid-value. Only a definite syntax error fails.
func lenientJSONCheck(sample []byte) bool {
	dec := json.NewDecoder(bytes.NewReader(sample))
	for {
		_, err := dec.Token()
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return true
		}
		if err != nil {
			return false
		}
	}
}

// FormatBytes renders a byte count with binary (1024) units and up to two
// decimal places: 512 -> "512 Bytes", 500*1024*1024 -> "500 MB".
func FormatBytes(b int64) string {
	if b == 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB", "TB"}
	v := float64(b)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + units[i]
}

// extensionOf returns the lower-cased suffix after the last dot, or the
// empty string when the name has no dot.
func extensionOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
