package subtitle

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// SRTEntry is one rendered subtitle entry.
type SRTEntry struct {
	StartMs int
	EndMs   int
	Text    string
}

// FormatSRT renders entries in SubRip form. Entries with blank text are
// dropped.
func FormatSRT(entries []SRTEntry) string {
	var b strings.Builder
	n := 0
	for _, e := range entries {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			n, srtTimecode(e.StartMs), srtTimecode(e.EndMs), e.Text)
	}
	return b.String()
}

// ModelSRT projects a model's cues into SRT entries in document order.
func ModelSRT(m *Model) string {
	var entries []SRTEntry
	for _, u := range m.Utterances {
		for _, c := range u.Cues {
			entries = append(entries, SRTEntry{StartMs: c.StartMs, EndMs: c.EndMs, Text: c.Source.Text})
		}
	}
	return FormatSRT(entries)
}

// ParseSRT reads SubRip text back into entries.
func ParseSRT(data string) ([]SRTEntry, error) {
	var entries []SRTEntry
	scanner := bufio.NewScanner(strings.NewReader(data))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var lines []string
	flush := func() error {
		if len(lines) < 2 {
			lines = nil
			return nil
		}
		// lines[0] is the index, lines[1] the timing, the rest is text.
		timing := strings.Split(lines[1], " --> ")
		if len(timing) != 2 {
			return fmt.Errorf("parse srt: bad timing line %q", lines[1])
		}
		start, err := parseTimecode(strings.TrimSpace(timing[0]))
		if err != nil {
			return err
		}
		end, err := parseTimecode(strings.TrimSpace(timing[1]))
		if err != nil {
			return err
		}
		entries = append(entries, SRTEntry{
			StartMs: start,
			EndMs:   end,
			Text:    strings.Join(lines[2:], "\n"),
		})
		lines = nil
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		lines = append(lines, line)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return entries, scanner.Err()
}

func srtTimecode(ms int) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

func parseTimecode(tc string) (int, error) {
	parts := strings.FieldsFunc(tc, func(r rune) bool { return r == ':' || r == ',' })
	if len(parts) != 4 {
		return 0, fmt.Errorf("parse srt: bad timecode %q", tc)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("parse srt: bad timecode %q: %w", tc, err)
		}
		vals[i] = v
	}
	return vals[0]*3600000 + vals[1]*60000 + vals[2]*1000 + vals[3], nil
}
