package transcript

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotFound reports that a requested transcript file does not exist in the
// source directory.
var ErrNotFound = errors.New("transcript not found")

// Record is one row of a recorded call transcript.
type Record struct {
	Time     string `json:"time"`
	Speaker  string `json:"speaker"`
	Sentence string `json:"sentence"`
}

// File pairs a transcript filename with its parsed records.
type File struct {
	Filename string   `json:"filename"`
	Records  []Record `json:"records"`
}

// Source reads transcripts from a directory of CSV files with a
// time,speaker,sentence header.
type Source struct {
	dir string
}

func NewSource(dir string) *Source {
	return &Source{dir: dir}
}

// Load reads one transcript file into its ordered records. A missing file is
// reported as ErrNotFound; a malformed row fails the whole load.
func (s *Source) Load(filename string) ([]Record, error) {
	// The filename comes straight from a query parameter; refuse anything
	// that would escape the transcript directory.
	if filename == "" || filepath.Base(filename) != filename {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, filename)
	}

	f, err := os.Open(filepath.Join(s.dir, filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, filename)
		}
		return nil, err
	}
	defer f.Close()

	records, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return records, nil
}

// List returns every parseable .csv transcript in the source directory.
// Unreadable or malformed files are skipped rather than failing the listing.
// A missing directory yields an empty list.
func (s *Source) List() ([]File, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		records, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		files = append(files, File{Filename: e.Name(), Records: records})
	}
	return files, nil
}

func parse(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New("empty transcript")
		}
		return nil, err
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"time", "speaker", "sentence"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed row: %w", err)
		}
		records = append(records, Record{
			Time:     row[cols["time"]],
			Speaker:  row[cols["speaker"]],
			Sentence: row[cols["sentence"]],
		})
	}
	return records, nil
}

// ParseClock converts a transcript clock value ("HH:MM:SS", "MM:SS" or plain
// seconds) into total seconds. Unparsable segments count as zero.
func ParseClock(clock string) int {
	parts := strings.Split(clock, ":")

	atoi := func(s string) int {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0
		}
		return n
	}

	switch len(parts) {
	case 3:
		return atoi(parts[0])*3600 + atoi(parts[1])*60 + atoi(parts[2])
	case 2:
		return atoi(parts[0])*60 + atoi(parts[1])
	case 1:
		return atoi(parts[0])
	default:
		return 0
	}
}
