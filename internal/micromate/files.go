// Package micromate reads Instantel Micromate vibration-histogram exports
// dropped by the instrument's FTP uplink as *-H.json files.
package micromate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// FlexFloat decodes a JSON number that vendor exports sometimes quote.
type FlexFloat float64

// UnmarshalJSON accepts both 0.1 and "0.1".
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// Reading is one histogram sample from a vendor export file.
type Reading struct {
	Time         string    `json:"Time"`
	Longitudinal FlexFloat `json:"Longitudinal"`
	Transverse   FlexFloat `json:"Transverse"`
	Vertical     FlexFloat `json:"Vertical"`
	SourceFile   string    `json:"source_file,omitempty"`
}

// FileInfo describes one processed export file.
type FileInfo struct {
	Name          string `json:"file"`
	ReadingsCount int    `json:"readings_count"`
}

type histogramFile struct {
	VibrationHistograms []Reading `json:"VibrationHistograms"`
}

// Store reads Micromate export files from a directory.
type Store struct {
	dir string
}

// NewStore constructs a file store.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("micromate: empty directory")
	}
	return &Store{dir: dir}, nil
}

// Readings parses every *-H.json file in the directory and returns the
// combined histogram readings in file-name order, plus per-file counts.
// Files that fail to parse are reported but do not abort the scan.
func (s *Store) Readings() ([]Reading, []FileInfo, []error) {
	paths, err := s.listFiles()
	if err != nil {
		return nil, nil, []error{err}
	}

	var (
		all      []Reading
		files    []FileInfo
		failures []error
	)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			failures = append(failures, fmt.Errorf("micromate: read %s: %w", filepath.Base(path), err))
			continue
		}
		var parsed histogramFile
		if err := json.Unmarshal(data, &parsed); err != nil {
			failures = append(failures, fmt.Errorf("micromate: parse %s: %w", filepath.Base(path), err))
			continue
		}
		name := filepath.Base(path)
		for _, r := range parsed.VibrationHistograms {
			r.SourceFile = name
			all = append(all, r)
		}
		files = append(files, FileInfo{Name: name, ReadingsCount: len(parsed.VibrationHistograms)})
	}
	return all, files, failures
}

// Files lists the export files present without parsing them.
func (s *Store) Files() ([]string, error) {
	paths, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(paths))
	for _, path := range paths {
		names = append(names, filepath.Base(path))
	}
	return names, nil
}

func (s *Store) listFiles() ([]string, error) {
	if s == nil || s.dir == "" {
		return nil, errors.New("micromate: nil store")
	}
	if _, err := os.Stat(s.dir); err != nil {
		return nil, fmt.Errorf("micromate: directory %s: %w", s.dir, err)
	}
	paths, err := filepath.Glob(filepath.Join(s.dir, "*-H.json"))
	if err != nil {
		return nil, err
	}
	// File names embed the export timestamp; name order is time order.
	sort.Strings(paths)
	return paths, nil
}
