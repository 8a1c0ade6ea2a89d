package ldt

import (
	"slices"
	"strings"
)

// Source names the tier that produced an identifier.
type Source string

const (
	SourcePositional  Source = "positional"
	SourcePatternScan Source = "pattern_scan"
	SourceHint        Source = "hint"
	SourceNone        Source = "none"
)

const (
	bsnrScanLength = 8
	lanrScanLength = 7
	headerLength   = 7
)

// Hints are identifier values already known to the transport, for example from webhook headers.
type Hints struct {
	BSNR string `json:"bsnr,omitempty"`
	LANR string `json:"lanr,omitempty"`
}

type Identifiers struct {
	BSNR       *string `json:"bsnr,omitempty"`
	LANR       *string `json:"lanr,omitempty"`
	BSNRSource Source  `json:"bsnr_source"`
	LANRSource Source  `json:"lanr_source"`
}

func (ids Identifiers) Complete() bool {
	return ids.BSNR != nil && ids.LANR != nil
}

// ResolveIdentifiers determines BSNR and LANR for one message. Each identifier is
// resolved independently: the value captured by the assembler wins; otherwise the raw
// text is scanned for standalone digit runs of the identifier's width, taking the run
// equal to the hint if there is one and the first run otherwise. An 8-digit LANR scans
// like a BSNR; such a run becomes the LANR only when it equals the LANR hint, and is then
// no longer a BSNR candidate. It never fails.
func ResolveIdentifiers(fm FieldMap, raw string, hints Hints) Identifiers {
	ids := Identifiers{BSNRSource: SourceNone, LANRSource: SourceNone}

	if fm.BSNR != nil {
		ids.BSNR, ids.BSNRSource = copyString(*fm.BSNR), SourcePositional
	}
	if fm.LANR != nil {
		ids.LANR, ids.LANRSource = copyString(*fm.LANR), SourcePositional
	}
	if ids.Complete() {
		return ids
	}

	bsnrCandidates, lanrCandidates := scanCandidates(raw)
	bsnrHint, lanrHint := strings.TrimSpace(hints.BSNR), strings.TrimSpace(hints.LANR)
	if ids.LANR == nil {
		if len(lanrHint) == bsnrScanLength && slices.Contains(bsnrCandidates, lanrHint) {
			ids.LANR, ids.LANRSource = copyString(lanrHint), SourceHint
			if lanrHint != bsnrHint {
				bsnrCandidates = slices.DeleteFunc(bsnrCandidates, func(c string) bool { return c == lanrHint })
			}
		} else {
			ids.LANR, ids.LANRSource = pick(lanrCandidates, lanrHint)
		}
	}
	if ids.BSNR == nil {
		ids.BSNR, ids.BSNRSource = pick(bsnrCandidates, bsnrHint)
	}
	return ids
}

func pick(candidates []string, hint string) (*string, Source) {
	if len(candidates) == 0 {
		return nil, SourceNone
	}
	if hint != "" {
		for _, c := range candidates {
			if c == hint {
				return copyString(c), SourceHint
			}
		}
	}
	return copyString(candidates[0]), SourcePatternScan
}

// scanCandidates collects digit runs in order of appearance. The length and record
// type columns of a record line are not identifier text and are skipped.
func scanCandidates(raw string) (bsnr, lanr []string) {
	for _, line := range strings.Split(raw, "\n") {
		for _, run := range digitRuns(recordText(strings.TrimSuffix(line, "\r"))) {
			switch len(run) {
			case bsnrScanLength:
				bsnr = append(bsnr, run)
			case lanrScanLength:
				lanr = append(lanr, run)
			}
		}
	}
	return bsnr, lanr
}

func recordText(line string) string {
	runes := []rune(line)
	if len(runes) < headerLength {
		return line
	}
	for _, r := range runes[:headerLength] {
		if r < '0' || r > '9' {
			return line
		}
	}
	return string(runes[headerLength:])
}

func digitRuns(s string) []string {
	var runs []string
	start := -1
	for i, r := range s {
		isDigit := r >= '0' && r <= '9'
		switch {
		case isDigit && start < 0:
			start = i
		case !isDigit && start >= 0:
			runs = append(runs, s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, s[start:])
	}
	return runs
}

func copyString(s string) *string {
	return &s
}
