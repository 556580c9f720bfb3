package ocr

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Dictionary answers word-membership queries against a flat wordlist.
// The engines expose no per-word dictionary verdict, so the list is the
// arbiter of whether a recognized token looks like language.
type Dictionary struct {
	words map[string]struct{}
}

// LoadDictionary reads a one-word-per-line file, lowercased. An empty
// path yields an empty dictionary: every ratio comes out zero and the
// language choice falls through to text length.
func LoadDictionary(path string) (*Dictionary, error) {
	d := &Dictionary{words: make(map[string]struct{})}
	if path == "" {
		return d, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wordlist: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		w := strings.ToLower(strings.TrimSpace(sc.Text()))
		if w != "" {
			d.words[w] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading wordlist: %w", err)
	}
	return d, nil
}

func (d *Dictionary) Contains(word string) bool {
	_, ok := d.words[strings.ToLower(word)]
	return ok
}

func (d *Dictionary) Size() int {
	return len(d.words)
}
