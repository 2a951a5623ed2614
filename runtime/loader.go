package runtime

import (
	"bufio"
	"bytes"
	"chat-relay/errors"
	"io/fs"
	"path"
	"strings"
)

// CensoredData carries the result of the loading process including metadata for logging.
type CensoredData struct {
	Words     []string
	Languages []string
}

// CensoredLoader is responsible for reading and parsing blacklisted words from a filesystem.
type CensoredLoader struct {
	fs fs.FS
}

// NewCensoredLoader creates a new instance of CensoredLoader with the provided filesystem,
// typically os.DirFS of the configured directory.
func NewCensoredLoader(f fs.FS) *CensoredLoader {
	return &CensoredLoader{fs: f}
}

// LoadAll scans dir, identifying .txt files as language dictionaries and parsing
// their contents into a unique list of words.
func (l *CensoredLoader) LoadAll(dir string) (*CensoredData, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	var languages []string
	var words []string
	seen := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		// Track the language based on the filename (e.g., "fr.txt" -> "fr")
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(l.fs, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		// Use a scanner to handle different line endings (\n vs \r\n) correctly
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			words = append(words, line)
		}

		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(words) == 0 {
		return nil, errors.ErrEmptyWords
	}

	return &CensoredData{
		Words:     words,
		Languages: languages,
	}, nil
}
