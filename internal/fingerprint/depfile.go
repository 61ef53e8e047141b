package fingerprint

import (
	"bufio"
	"bytes"
	"strings"
)

// ParseDepFile extracts the prerequisite paths from a Make-style
// dependency file ("out.o: src.c a.h b.h \" with backslash
// continuations), the format GCC-style compilers emit under -MMD -MF.
// The target before the colon is skipped; duplicates are collapsed
// preserving first occurrence. Escaped spaces ("\ ") inside paths are
// honored.
func ParseDepFile(data []byte) []string {
	var joined strings.Builder
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		line = strings.TrimSuffix(line, "\\")
		joined.WriteString(line)
		joined.WriteByte(' ')
	}

	text := joined.String()
	// A Windows drive letter ("C:\...") is not a rule separator: the first
	// colon followed by whitespace ends the target list. Without such a
	// colon, the first colon of any kind is taken.
	sep := -1
	for i := 0; i < len(text); i++ {
		if text[i] == ':' && (i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\t') {
			sep = i
			break
		}
	}
	if sep < 0 {
		sep = strings.Index(text, ":")
	}
	if sep >= 0 {
		text = text[sep+1:]
	}

	var (
		deps    []string
		seen    = map[string]bool{}
		current strings.Builder
	)
	flush := func() {
		p := current.String()
		current.Reset()
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		deps = append(deps, p)
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\' && i+1 < len(text) && text[i+1] == ' ':
			current.WriteByte(' ')
			i++
		case c == ' ' || c == '\t':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return deps
}
