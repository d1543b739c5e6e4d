package auction

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadItemFile reads the listing queue: one item id per line, consumed
// front-to-back as active listings expire. Blank lines and #-comments are
// skipped.
func LoadItemFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		ids  []string
		seen = make(map[string]bool)
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			return nil, fmt.Errorf("item file %s: duplicate item %q", path, line)
		}
		seen[line] = true
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("item file %s: no items", path)
	}
	return ids, nil
}
