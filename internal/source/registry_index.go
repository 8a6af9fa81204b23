package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// IndexRecord is one line of a registry index file. Only the fields
// the resolver consumes are declared; the JSON decoder ignores any
// other field, so a record whose schema has grown new fields in a
// newer registry format still parses.
type IndexRecord struct {
	Name     string                 `json:"name"`
	Vers     string                 `json:"vers"`
	Deps     []IndexDependency      `json:"deps"`
	Cksum    string                 `json:"cksum"`
	Features map[string][]string    `json:"features"`
	Yanked   bool                   `json:"yanked"`
	Links    string                 `json:"links"`
}

type IndexDependency struct {
	Name            string `json:"name"`
	Req             string `json:"req"`
	Features        []string `json:"features"`
	DefaultFeatures bool   `json:"default_features"`
	Target          string `json:"target"`
	Optional        bool   `json:"optional"`
	Kind            string `json:"kind"`
	Registry        string `json:"registry"`
}

// ParseIndexFile parses a newline-delimited sequence of JSON records.
// Lines whose schema is unrecognized are skipped with a trace-level
// diagnostic rather than aborting the whole file; blank lines are
// skipped silently.
func ParseIndexFile(data []byte, log *logrus.Entry) []IndexRecord {
	var out []IndexRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	// registry index lines can be long; raise the default 64KiB cap.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec IndexRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			if log != nil {
				log.WithField("line", lineNo).Tracef("skipping unrecognized index record: %v", err)
			}
			continue
		}
		if rec.Name == "" || rec.Vers == "" {
			if log != nil {
				log.WithField("line", lineNo).Trace("skipping index record missing name/vers")
			}
			continue
		}
		out = append(out, rec)
	}
	return out
}

// IndexPath computes the sharded path a package's index file lives at,
// keyed by the lowercased name and sharded by prefix length: "1/<name>", "2/<name>", "3/<first-char>/<name>", or
// "<first-two>/<second-two>/<name>".
func IndexPath(name string) string {
	lower := strings.ToLower(name)
	switch len(lower) {
	case 0:
		return ""
	case 1:
		return "1/" + lower
	case 2:
		return "2/" + lower
	case 3:
		return fmt.Sprintf("3/%s/%s", lower[:1], lower)
	default:
		return fmt.Sprintf("%s/%s/%s", lower[:2], lower[2:4], lower)
	}
}

const maxHyphenSwitches = 15

// UncanonicalizedNames yields every combination of '-'/'_' substitution
// for name, starting with name itself, up to a bounded limit (cargo's
// own index allows old clients that don't canonicalize hyphens and
// underscores to still find a package), mirroring cargo's
// UncanonicalizedIter.
func UncanonicalizedNames(name string) []string {
	positions := make([]int, 0)
	for i, c := range name {
		if c == '-' || c == '_' {
			positions = append(positions, i)
		}
	}
	n := uint(len(positions))
	if n > maxHyphenSwitches {
		n = maxHyphenSwitches
	}

	total := 1 << n
	out := make([]string, 0, total)
	seen := make(map[string]struct{}, total)
	for combo := 0; combo < total; combo++ {
		b := []byte(name)
		for bit := uint(0); bit < n; bit++ {
			pos := positions[bit]
			switchBit := combo&(1<<bit) != 0
			isUnderscore := name[pos] == '_'
			if isUnderscore != switchBit {
				b[pos] = '_'
			} else {
				b[pos] = '-'
			}
		}
		s := string(b)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
